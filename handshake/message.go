// Package handshake implements the popup OAuth handshake: a typed
// cross-window message protocol plus the opener-side flow that opens the
// popup, waits for the callback's message, and detects manual cancellation.
package handshake

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-calendar-sync/core"
)

// MessagePrefix reserves the handshake's message namespace. Anything without
// the prefix is unrelated window traffic and is ignored, never an error.
const MessagePrefix = "calendar-oauth-"

const (
	TypeSuccess = MessagePrefix + "success"
	TypeError   = MessagePrefix + "error"
)

// ErrNotHandshakeMessage marks payloads outside the reserved prefix.
var ErrNotHandshakeMessage = errors.New("handshake: not a handshake message")

// Message is the tagged union carried between the popup and its opener.
// SuccessMessage and ErrorMessage are the only variants.
type Message interface {
	MessageType() string
}

type SuccessMessage struct {
	Provider    core.Provider    `json:"provider"`
	Code        string           `json:"code"`
	Integration core.Integration `json:"integration"`
}

func (SuccessMessage) MessageType() string {
	return TypeSuccess
}

type ErrorMessage struct {
	Reason string `json:"error"`
}

func (ErrorMessage) MessageType() string {
	return TypeError
}

type messageEnvelope struct {
	Type        string            `json:"type"`
	Provider    core.Provider     `json:"provider,omitempty"`
	Code        string            `json:"code,omitempty"`
	Integration *core.Integration `json:"integration,omitempty"`
	Reason      string            `json:"error,omitempty"`
}

// Encode serializes a message into its wire form with the type tag inlined.
func Encode(msg Message) ([]byte, error) {
	switch typed := msg.(type) {
	case SuccessMessage:
		integration := typed.Integration
		return json.Marshal(messageEnvelope{
			Type:        TypeSuccess,
			Provider:    typed.Provider,
			Code:        typed.Code,
			Integration: &integration,
		})
	case ErrorMessage:
		return json.Marshal(messageEnvelope{Type: TypeError, Reason: typed.Reason})
	default:
		return nil, fmt.Errorf("handshake: unsupported message type %T", msg)
	}
}

// Decode parses wire data back into a message. Payloads outside the reserved
// prefix return ErrNotHandshakeMessage; prefixed payloads with an unknown
// suffix are a protocol error.
func Decode(data []byte) (Message, error) {
	var envelope messageEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotHandshakeMessage, err)
	}

	messageType := strings.TrimSpace(envelope.Type)
	if !strings.HasPrefix(messageType, MessagePrefix) {
		return nil, ErrNotHandshakeMessage
	}

	switch messageType {
	case TypeSuccess:
		msg := SuccessMessage{
			Provider: envelope.Provider,
			Code:     envelope.Code,
		}
		if envelope.Integration != nil {
			msg.Integration = *envelope.Integration
		}
		return msg, nil
	case TypeError:
		return ErrorMessage{Reason: envelope.Reason}, nil
	default:
		return nil, fmt.Errorf("handshake: unknown message type %q", messageType)
	}
}
