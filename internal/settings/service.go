package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Environment variables that override the persisted credentials. They are
// re-applied on every load and replace so secrets never have to live in the
// settings file.
const (
	EnvSessData      = "BILI_SESSDATA"
	EnvBiliJct       = "BILI_JCT"
	EnvRAGServiceURL = "RAG_SERVICE_URL"
)

// Service loads, caches, and persists the runtime settings file.
type Service struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	current Settings
}

// NewService reads the settings file at path, falling back to defaults when it
// does not exist, and applies environment overrides.
func NewService(log *slog.Logger, path string) (*Service, error) {
	s := &Service{
		path:   path,
		logger: log.With(slog.String("service", "settings")),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) load() error {
	current := Defaults()

	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
		s.logger.Info("settings file missing, using defaults", slog.String("path", s.path))
	case err != nil:
		return fmt.Errorf("read settings: %w", err)
	default:
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("parse settings %s: %w", s.path, err)
		}
		s.logger.Info("settings loaded", slog.String("path", s.path))
	}

	applyEnv(&current)

	s.mu.Lock()
	s.current = current
	s.mu.Unlock()
	return nil
}

// Get returns a snapshot of the current settings.
func (s *Service) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Replace installs next as the current settings, re-applies environment
// overrides, and persists the result.
func (s *Service) Replace(next Settings) error {
	applyEnv(&next)

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	return s.save(next)
}

func (s *Service) save(current Settings) error {
	data, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	s.logger.Info("settings saved", slog.String("path", s.path))
	return nil
}

func applyEnv(s *Settings) {
	if v := os.Getenv(EnvSessData); v != "" {
		s.SessData = v
	}
	if v := os.Getenv(EnvBiliJct); v != "" {
		s.BiliJct = v
	}
	if v := os.Getenv(EnvRAGServiceURL); v != "" {
		s.RAGServiceURL = v
	}
}
