// Package identity provides the anonymous identity capability.
//
// The original product signed users in anonymously and keyed all persisted
// records by the resulting opaque identifier. Here the identifier is minted
// locally once and stored beside the database; callers receive an immutable
// Session capability by injection instead of reading ambient global state.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"triage/internal/logging"
)

const identityFileName = "identity.json"

// Session is the opaque user identity handed to collaborators. It is
// immutable once issued.
type Session struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Provider loads or mints the anonymous identity for this installation.
type Provider struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	session *Session
}

// NewProvider creates a provider storing identity in dataDir.
func NewProvider(dataDir string, logger *slog.Logger) *Provider {
	return &Provider{
		path:   filepath.Join(dataDir, identityFileName),
		logger: logging.NewComponentLogger(logger, "identity"),
	}
}

// Session returns the stored identity, creating and persisting one on first use.
func (p *Provider) Session() (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		return *p.session, nil
	}

	loaded, err := p.load()
	if err == nil {
		p.session = &loaded
		return loaded, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("identity file unreadable, minting a new identity", logging.Error(err))
	}

	created := Session{
		UserID:    uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	if err := p.save(created); err != nil {
		return Session{}, fmt.Errorf("persist identity: %w", err)
	}
	p.logger.Debug("created anonymous identity", logging.String(logging.FieldUserID, created.UserID))
	p.session = &created
	return created, nil
}

func (p *Provider) load() (Session, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return Session{}, err
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return Session{}, fmt.Errorf("decode identity file: %w", err)
	}
	if strings.TrimSpace(session.UserID) == "" {
		return Session{}, errors.New("identity file has no user id")
	}
	return session, nil
}

func (p *Provider) save(session Session) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create identity directory: %w", err)
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write identity file: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("replace identity file: %w", err)
	}
	return nil
}
