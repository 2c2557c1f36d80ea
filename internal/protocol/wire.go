package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Gateway event names. Both transports use the same vocabulary.
const (
	eventConnectionUpdate   = "connection.update"
	eventCredsUpdate        = "creds.update"
	eventMessagesUpsert     = "messages.upsert"
	eventRequestPairingCode = "request-pairing-code"
	eventSendMessage        = "send-message"
)

// parseConnectionUpdate reads {"connection": "connecting|open|close", "reason": "..."}.
func parseConnectionUpdate(data map[string]any) (ConnectionUpdate, bool) {
	raw, _ := data["connection"].(string)
	reason, _ := data["reason"].(string)
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "connecting":
		return ConnectionUpdate{State: StateConnecting}, true
	case "open":
		return ConnectionUpdate{State: StateOpen}, true
	case "close", "closed":
		return ConnectionUpdate{State: StateClosed, Reason: reason}, true
	default:
		return ConnectionUpdate{}, false
	}
}

// parseCredentials reads {"creds": "<base64>", "keys": "<base64>"}.
func parseCredentials(data map[string]any) (Credentials, error) {
	var out Credentials
	if s, ok := data["creds"].(string); ok && s != "" {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Credentials{}, fmt.Errorf("decode creds: %w", err)
		}
		out.Creds = b
	}
	if s, ok := data["keys"].(string); ok && s != "" {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Credentials{}, fmt.Errorf("decode keys: %w", err)
		}
		out.Keys = b
	}
	return out, nil
}

// parseMessage reads {"from": "...", "text": "..."}.
func parseMessage(data map[string]any) (Message, bool) {
	from, _ := data["from"].(string)
	text, _ := data["text"].(string)
	if from == "" {
		return Message{}, false
	}
	return Message{From: from, Text: text}, true
}

// parseCodeAck reads the pairing-code acknowledgement: {"code": "..."} on
// success, {"error": "already-registered"} or {"error": "<message>"} on failure.
func parseCodeAck(data map[string]any) (string, error) {
	if data == nil {
		return "", errors.New("missing ack")
	}
	if msg, ok := data["error"].(string); ok && msg != "" {
		switch strings.ToLower(msg) {
		case "already-registered", "already_registered":
			return "", ErrAlreadyRegistered
		default:
			return "", fmt.Errorf("gateway: %s", msg)
		}
	}
	code, _ := data["code"].(string)
	code = strings.TrimSpace(code)
	if code == "" {
		return "", errors.New("empty pairing code")
	}
	return code, nil
}

// parseSendAck reads {"ok": true} or {"error": "..."}.
func parseSendAck(data map[string]any) error {
	if data == nil {
		return errors.New("missing ack")
	}
	if msg, ok := data["error"].(string); ok && msg != "" {
		return fmt.Errorf("gateway: %s", msg)
	}
	return nil
}

func authPayload(token string, auth AuthState) map[string]any {
	payload := map[string]any{
		"token":     token,
		"sessionId": auth.SessionID,
	}
	if len(auth.Creds) > 0 {
		payload["creds"] = base64.StdEncoding.EncodeToString(auth.Creds)
	}
	if len(auth.Keys) > 0 {
		payload["keys"] = base64.StdEncoding.EncodeToString(auth.Keys)
	}
	return payload
}
