package types

// Common response types

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// CodeResponse is returned by GET /code.
type CodeResponse struct {
	Code      string `json:"code"`
	Number    string `json:"number"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	IsDemo    bool   `json:"isDemo"`
	Reason    string `json:"reason,omitempty"`
}

// CodeHealthResponse is returned by GET /code/health.
type CodeHealthResponse struct {
	Status    string `json:"status"`
	Sessions  int    `json:"sessions"`
	Timestamp string `json:"timestamp"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	// Uptime is in seconds.
	Uptime float64 `json:"uptime"`
}
