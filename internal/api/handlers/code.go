package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mrarosh/Pear-code/internal/logger"
	"github.com/mrarosh/Pear-code/internal/pairing"
	"github.com/mrarosh/Pear-code/pkg/types"
	"github.com/skip2/go-qrcode"
)

// timestampLayout matches the ISO-8601 form browsers produce.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Pairer runs pairing attempts.
type Pairer interface {
	Run(ctx context.Context, req pairing.Request) (pairing.Outcome, error)
	Sessions() int
}

type CodeHandler struct {
	pairer Pairer
	now    func() time.Time
}

func NewCodeHandler(pairer Pairer) *CodeHandler {
	return &CodeHandler{pairer: pairer, now: time.Now}
}

// GetCode handles GET /code
func (h *CodeHandler) GetCode(c *gin.Context) {
	req, err := pairing.ParseRequest(c.Query("number"))
	if err != nil {
		var reqErr *pairing.RequestError
		if errors.As(err, &reqErr) {
			writeError(c, pairing.Outcome{Kind: pairing.OutcomeClientError, Error: reqErr.Kind})
			return
		}
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}

	outcome, err := h.pairer.Run(c.Request.Context(), req)
	if outcome.Kind == pairing.OutcomeAbandoned {
		// The client is gone; there is nobody to answer.
		logger.Debugf("[code] session %s abandoned: %v", outcome.SessionID, err)
		c.Abort()
		return
	}

	switch outcome.Kind {
	case pairing.OutcomeReal, pairing.OutcomeDemo:
		resp := types.CodeResponse{
			Code:      outcome.Code,
			Number:    outcome.Number,
			Message:   outcome.Message(),
			SessionID: outcome.SessionID,
			IsDemo:    outcome.IsDemo(),
		}
		if outcome.IsDemo() {
			resp.Reason = outcome.Reason
		}
		c.JSON(http.StatusOK, resp)
	default:
		writeError(c, outcome)
	}
}

// GetHealth handles GET /code/health
func (h *CodeHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, types.CodeHealthResponse{
		Status:    "OK",
		Sessions:  h.pairer.Sessions(),
		Timestamp: h.now().UTC().Format(timestampLayout),
	})
}

// GetQR handles GET /code/qr
func (h *CodeHandler) GetQR(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "code is required"})
		return
	}
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		logger.Warnf("[code] render qr: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "Failed to render QR code"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func writeError(c *gin.Context, outcome pairing.Outcome) {
	c.JSON(StatusFor(outcome), types.ErrorResponse{
		Error: outcome.Message(),
		Code:  string(outcome.Error),
	})
}

// StatusFor maps an outcome to its HTTP status.
func StatusFor(outcome pairing.Outcome) int {
	switch outcome.Kind {
	case pairing.OutcomeReal, pairing.OutcomeDemo:
		return http.StatusOK
	case pairing.OutcomeClientError:
		return http.StatusBadRequest
	}
	if outcome.Error == pairing.ErrorTimeout {
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}
