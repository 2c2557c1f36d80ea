package pairing

// OutcomeKind tags an Outcome.
type OutcomeKind string

const (
	OutcomeReal         OutcomeKind = "real"
	OutcomeDemo         OutcomeKind = "demo"
	OutcomeClientError  OutcomeKind = "client_error"
	OutcomeServiceError OutcomeKind = "service_error"
	// OutcomeAbandoned means the caller went away before resolution. Nothing
	// is sent for it.
	OutcomeAbandoned OutcomeKind = "abandoned"
)

// ErrorKind is the error code reported on the wire.
type ErrorKind string

const (
	ErrorInvalidNumber     ErrorKind = "INVALID_NUMBER"
	ErrorInvalidFormat     ErrorKind = "INVALID_FORMAT"
	ErrorAlreadyRegistered ErrorKind = "ALREADY_REGISTERED"
	ErrorService           ErrorKind = "SERVICE_ERROR"
	ErrorTimeout           ErrorKind = "TIMEOUT"
	ErrorConnectionClosed  ErrorKind = "CONNECTION_CLOSED"
)

// Demo reasons.
const (
	ReasonTimeout          = "timeout"
	ReasonFallback         = "fallback timer elapsed"
	ReasonConnectionClosed = "connection closed"
	ReasonConnectFailed    = "connection failed"
	ReasonCodeTimeout      = "pairing code request timed out"
	ReasonCodeFailed       = "pairing code request failed"
)

// Outcome is the single result of a pairing attempt.
type Outcome struct {
	Kind      OutcomeKind
	Code      string
	Number    string
	SessionID string
	// Reason explains a demo code.
	Reason string
	// Error is set for client and service errors.
	Error ErrorKind
}

// IsDemo reports whether the code was generated locally.
func (o Outcome) IsDemo() bool { return o.Kind == OutcomeDemo }

func realOutcome(s State, code string) Outcome {
	return Outcome{Kind: OutcomeReal, Code: code, Number: s.Number, SessionID: s.SessionID}
}

func demoOutcome(s State, reason string) Outcome {
	return Outcome{
		Kind:      OutcomeDemo,
		Code:      FallbackCode(s.Number),
		Number:    s.Number,
		SessionID: s.SessionID,
		Reason:    reason,
	}
}

func clientErrorOutcome(s State, kind ErrorKind) Outcome {
	return Outcome{Kind: OutcomeClientError, Number: s.Number, SessionID: s.SessionID, Error: kind}
}

func serviceErrorOutcome(s State, kind ErrorKind) Outcome {
	return Outcome{Kind: OutcomeServiceError, Number: s.Number, SessionID: s.SessionID, Error: kind}
}

// Message returns the human readable text for the outcome.
func (o Outcome) Message() string {
	switch o.Kind {
	case OutcomeReal:
		return "Code generated successfully"
	case OutcomeDemo:
		return "Demo code generated"
	}
	switch o.Error {
	case ErrorInvalidNumber:
		return "Phone number is required"
	case ErrorInvalidFormat:
		return "Invalid phone number format"
	case ErrorAlreadyRegistered:
		return "Phone number is already registered"
	case ErrorTimeout:
		return "Pairing timed out"
	case ErrorConnectionClosed:
		return "Connection closed before a code was issued"
	default:
		return "Service temporarily unavailable"
	}
}
