package handshake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-calendar-sync/core"
)

// DefaultPollInterval is how often the flow checks whether the user closed
// the popup without finishing consent.
const DefaultPollInterval = time.Second

// Handshake drives the opener side of a connect flow: open the consent
// popup, wait for the callback page to post its terminal message, and watch
// for the popup being closed early.
type Handshake struct {
	Opener       Opener
	Broker       *Broker
	PollInterval time.Duration
}

func NewHandshake(opener Opener, broker *Broker) (*Handshake, error) {
	if opener == nil {
		return nil, fmt.Errorf("handshake: opener is required")
	}
	if broker == nil {
		return nil, fmt.Errorf("handshake: broker is required")
	}
	return &Handshake{
		Opener:       opener,
		Broker:       broker,
		PollInterval: DefaultPollInterval,
	}, nil
}

// Connect opens the consent popup for authURL and blocks until one terminal
// outcome: a success message resolves to the connected integration, an error
// message or an early popup close rejects, a blocked popup fails immediately.
// Every exit removes the flow's broker listener.
func (h *Handshake) Connect(ctx context.Context, authURL string) (core.Integration, error) {
	if h == nil || h.Opener == nil || h.Broker == nil {
		return core.Integration{}, fmt.Errorf("handshake: flow is not configured")
	}
	authURL = strings.TrimSpace(authURL)
	if authURL == "" {
		return core.Integration{}, fmt.Errorf("handshake: auth url is required")
	}

	// Open before subscribing so a blocked popup leaves no listener behind.
	popup, err := h.Opener.Open(authURL, PopupName, PopupWidth, PopupHeight)
	if err != nil {
		return core.Integration{}, fmt.Errorf("handshake: open consent window: %w", core.ErrPopupBlocked)
	}
	if popup == nil {
		return core.Integration{}, fmt.Errorf("handshake: consent window did not open: %w", core.ErrPopupBlocked)
	}

	messages, cancel := h.Broker.Subscribe()
	defer cancel()

	interval := h.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = popup.Close()
			return core.Integration{}, fmt.Errorf("handshake: connect aborted: %w", ctx.Err())
		case msg := <-messages:
			switch m := msg.(type) {
			case SuccessMessage:
				return m.Integration, nil
			case ErrorMessage:
				reason := strings.TrimSpace(m.Reason)
				if reason == "" {
					reason = "provider reported an error"
				}
				return core.Integration{}, fmt.Errorf("handshake: %s", reason)
			}
		case <-ticker.C:
			if popup.Closed() {
				return core.Integration{}, fmt.Errorf("handshake: consent window closed: %w", core.ErrFlowCancelled)
			}
		}
	}
}
