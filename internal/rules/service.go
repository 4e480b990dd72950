package rules

import (
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// reindexSchedule keeps the compiled index fresh even when no API mutation
// happens, mirroring the loop's 5-minute maintenance cadence.
const reindexSchedule = "@every 5m"

// Service ties the store and the index together: it owns the cached rule list,
// rebuilds the index on every mutation, and reloads from disk periodically.
type Service struct {
	store  *Store
	index  *Index
	cron   *cron.Cron
	logger *slog.Logger

	mu    sync.RWMutex
	rules []Rule
}

// NewService creates the rule service. Call Bootstrap before use.
func NewService(log *slog.Logger, store *Store, index *Index) *Service {
	return &Service{
		store:  store,
		index:  index,
		cron:   cron.New(),
		logger: log.With(slog.String("service", "rules")),
	}
}

// Bootstrap loads the rules from disk, builds the index, and starts the
// periodic reload job.
func (s *Service) Bootstrap() error {
	if err := s.Reload(); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(reindexSchedule, func() {
		if err := s.Reload(); err != nil {
			s.logger.Warn("periodic rule reload failed", slog.Any("error", err))
		}
	}); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the periodic reload job.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Reload re-reads the rule file and rebuilds the index.
func (s *Service) Reload() error {
	rules, err := s.store.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.rules = rules
	s.mu.Unlock()
	s.index.Rebuild(rules)
	return nil
}

// Replace persists a new rule list and reloads it, so the cached list and the
// index reflect the standardized form of what was stored.
func (s *Service) Replace(rules []Rule) error {
	if err := s.store.Save(rules); err != nil {
		return err
	}
	if err := s.Reload(); err != nil {
		return err
	}
	s.logger.Info("rules replaced", slog.Int("count", len(rules)))
	return nil
}

// List returns a copy of the cached rule list.
func (s *Service) List() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Index exposes the compiled index for the polling loop.
func (s *Service) Index() *Index {
	return s.index
}
