package core

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultOAuthStateTTL = 15 * time.Minute

// StatePayload travels through the provider's `state` parameter. It names
// the originating provider explicitly so the callback never has to guess by
// trial token exchange (a single-use code cannot survive a wrong guess), and
// carries the user id so the popup can authenticate the caller without
// sharing the opener's session storage.
type StatePayload struct {
	Provider Provider  `json:"p"`
	UserID   string    `json:"u"`
	Nonce    string    `json:"n"`
	IssuedAt time.Time `json:"iat"`
}

type StateCodec struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func NewStateCodec(secret string, ttl time.Duration) *StateCodec {
	if ttl <= 0 {
		ttl = defaultOAuthStateTTL
	}
	return &StateCodec{
		Secret: []byte(strings.TrimSpace(secret)),
		TTL:    ttl,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

func (c *StateCodec) Encode(payload StatePayload) (string, error) {
	if c == nil {
		return "", fmt.Errorf("core: state codec is not configured")
	}
	if _, err := ParseProvider(string(payload.Provider)); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.Nonce) == "" {
		nonce, err := generateStateNonce()
		if err != nil {
			return "", err
		}
		payload.Nonce = nonce
	}
	if payload.IssuedAt.IsZero() {
		payload.IssuedAt = c.now()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("core: encode oauth state: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(body)
	return encoded + "." + c.sign(encoded), nil
}

func (c *StateCodec) Decode(state string) (StatePayload, error) {
	if c == nil {
		return StatePayload{}, fmt.Errorf("core: state codec is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return StatePayload{}, fmt.Errorf("core: oauth state is required")
	}
	parts := strings.SplitN(state, ".", 2)
	if len(parts) != 2 {
		return StatePayload{}, fmt.Errorf("core: oauth state is malformed")
	}
	if !hmac.Equal([]byte(c.sign(parts[0])), []byte(parts[1])) {
		return StatePayload{}, fmt.Errorf("core: oauth state signature mismatch")
	}

	body, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return StatePayload{}, fmt.Errorf("core: oauth state is malformed: %w", err)
	}
	var payload StatePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return StatePayload{}, fmt.Errorf("core: oauth state is malformed: %w", err)
	}
	if _, err := ParseProvider(string(payload.Provider)); err != nil {
		return StatePayload{}, fmt.Errorf("core: oauth state provider: %w", err)
	}

	ttl := c.TTL
	if ttl <= 0 {
		ttl = defaultOAuthStateTTL
	}
	if !payload.IssuedAt.IsZero() && c.now().After(payload.IssuedAt.Add(ttl)) {
		return StatePayload{}, fmt.Errorf("core: oauth state expired")
	}
	return payload, nil
}

func (c *StateCodec) sign(encoded string) string {
	mac := hmac.New(sha256.New, c.Secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (c *StateCodec) now() time.Time {
	if c != nil && c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

// OAuthStateStore provides one-shot replay protection on top of the signed
// payload: a state is consumable exactly once.
type OAuthStateStore interface {
	Save(ctx context.Context, state string, payload StatePayload) error
	Consume(ctx context.Context, state string) (StatePayload, error)
}

type MemoryOAuthStateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryStateEntry
}

type memoryStateEntry struct {
	payload   StatePayload
	expiresAt time.Time
}

func NewMemoryOAuthStateStore(ttl time.Duration) *MemoryOAuthStateStore {
	if ttl <= 0 {
		ttl = defaultOAuthStateTTL
	}
	return &MemoryOAuthStateStore{
		ttl:     ttl,
		entries: map[string]memoryStateEntry{},
	}
}

func (s *MemoryOAuthStateStore) Save(_ context.Context, state string, payload StatePayload) error {
	if s == nil {
		return fmt.Errorf("core: oauth state store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return fmt.Errorf("core: oauth state is required")
	}

	s.mu.Lock()
	s.entries[state] = memoryStateEntry{
		payload:   payload,
		expiresAt: time.Now().UTC().Add(s.ttl),
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryOAuthStateStore) Consume(_ context.Context, state string) (StatePayload, error) {
	if s == nil {
		return StatePayload{}, fmt.Errorf("core: oauth state store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return StatePayload{}, fmt.Errorf("core: oauth state is required")
	}

	s.mu.Lock()
	entry, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
	}
	s.mu.Unlock()

	if !ok {
		return StatePayload{}, fmt.Errorf("core: oauth state not found")
	}
	if time.Now().UTC().After(entry.expiresAt) {
		return StatePayload{}, fmt.Errorf("core: oauth state expired")
	}
	return entry.payload, nil
}

func generateStateNonce() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate oauth state nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
