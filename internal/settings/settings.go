package settings

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kmorozov/tabreaper/internal/store"
	"github.com/kmorozov/tabreaper/pkg/models"
)

// ErrInvalidMinutes is returned when a caller tries to save a non-positive
// inactivity threshold.
var ErrInvalidMinutes = errors.New("minutes must be a positive integer")

// ErrInvalidDomain is returned for empty whitelist entries.
var ErrInvalidDomain = errors.New("domain is required")

// Store owns the settings document (threshold minutes + domain whitelist).
// The sweep engine only ever calls Load; all mutation comes from the UI
// surface.
type Store struct {
	mu  sync.Mutex
	doc store.Document
}

// NewStore creates a settings store backed by doc.
func NewStore(doc store.Document) *Store {
	return &Store{doc: doc}
}

// Load returns the saved settings, falling back to defaults when nothing has
// ever been saved. Loaded values are normalized so downstream code never sees
// a nil whitelist or a zero threshold.
func (s *Store) Load() (models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (models.Settings, error) {
	var cfg models.Settings
	if err := s.doc.Load(&cfg); err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return models.DefaultSettings(), nil
		}
		return models.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	if cfg.Minutes <= 0 {
		cfg.Minutes = models.DefaultMinutes
	}
	if cfg.Whitelist == nil {
		cfg.Whitelist = []string{}
	}
	return cfg, nil
}

// Save validates and replaces the settings document.
func (s *Store) Save(cfg models.Settings) error {
	if cfg.Minutes <= 0 {
		return ErrInvalidMinutes
	}
	// Normalize into a fresh slice; the caller keeps its own untouched.
	normalized := make([]string, 0, len(cfg.Whitelist))
	for _, domain := range cfg.Whitelist {
		normalized = append(normalized, normalizeDomain(domain))
	}
	cfg.Whitelist = normalized

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.doc.Save(cfg); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// AddToWhitelist adds a hostname to the whitelist. Adding a hostname that is
// already present is a no-op.
func (s *Store) AddToWhitelist(domain string) (models.Settings, error) {
	domain = normalizeDomain(domain)
	if domain == "" {
		return models.Settings{}, ErrInvalidDomain
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.load()
	if err != nil {
		return models.Settings{}, err
	}

	for _, existing := range cfg.Whitelist {
		if existing == domain {
			return cfg, nil
		}
	}

	cfg.Whitelist = append(cfg.Whitelist, domain)
	if err := s.doc.Save(cfg); err != nil {
		return models.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return cfg, nil
}

// RemoveFromWhitelist removes a hostname from the whitelist if present.
func (s *Store) RemoveFromWhitelist(domain string) (models.Settings, error) {
	domain = normalizeDomain(domain)
	if domain == "" {
		return models.Settings{}, ErrInvalidDomain
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.load()
	if err != nil {
		return models.Settings{}, err
	}

	kept := cfg.Whitelist[:0]
	for _, existing := range cfg.Whitelist {
		if existing != domain {
			kept = append(kept, existing)
		}
	}
	cfg.Whitelist = kept

	if err := s.doc.Save(cfg); err != nil {
		return models.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return cfg, nil
}

func normalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}
