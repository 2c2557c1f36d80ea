package protocol

import (
	"fmt"
	"strings"
)

// Transport names accepted by NewFactory.
const (
	TransportSocketIO  = "socketio"
	TransportWebSocket = "websocket"
)

// NewFactory returns a Factory that builds gateway clients for the given
// transport.
func NewFactory(gatewayURL, transport string, signer *TokenSigner) (Factory, error) {
	if strings.TrimSpace(gatewayURL) == "" {
		return nil, fmt.Errorf("gateway url is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("token signer is required")
	}
	switch transport {
	case "", TransportSocketIO:
		return func(sessionID string, h Handlers) (Client, error) {
			return NewSocketIOClient(gatewayURL, sessionID, signer, h), nil
		}, nil
	case TransportWebSocket:
		return func(sessionID string, h Handlers) (Client, error) {
			return NewWSClient(gatewayURL, sessionID, signer, h), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown gateway transport %q", transport)
	}
}
