package rules

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Store persists the rule list as a JSON array (keywords.json).
type Store struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore creates a file-backed rule store at path.
func NewStore(log *slog.Logger, path string) *Store {
	return &Store{
		path:   path,
		logger: log.With(slog.String("service", "rules")),
	}
}

// ruleJSON is the on-disk shape. Enabled is a pointer so a missing field
// defaults to true, matching how imported rule files are interpreted.
type ruleJSON struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Keyword    string `json:"keyword"`
	Reply      string `json:"reply"`
	ReplyType  string `json:"reply_type"`
	ReplyImage string `json:"reply_image"`
	Enabled    *bool  `json:"enabled"`
	UseRegex   bool   `json:"use_regex"`
	CreatedAt  string `json:"created_at"`
}

// Load reads and standardizes the rule list. A missing file yields an empty
// list; entries without a name or keyword are dropped.
func (s *Store) Load() ([]Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Info("rules file missing", slog.String("path", s.path))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	var raw []ruleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", s.path, err)
	}

	rules := standardize(raw)
	s.logger.Info("rules loaded",
		slog.Int("total", len(rules)),
		slog.Int("enabled", countEnabled(rules)),
	)
	return rules, nil
}

// Save writes the rule list back to disk.
func (s *Store) Save(rules []Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write rules: %w", err)
	}
	s.logger.Info("rules saved", slog.Int("count", len(rules)), slog.String("path", s.path))
	return nil
}

func standardize(raw []ruleJSON) []Rule {
	rules := make([]Rule, 0, len(raw))
	for i, r := range raw {
		if strings.TrimSpace(r.Name) == "" || strings.TrimSpace(r.Keyword) == "" {
			continue
		}
		rule := Rule{
			ID:         r.ID,
			Name:       r.Name,
			Keyword:    r.Keyword,
			Reply:      r.Reply,
			ReplyType:  r.ReplyType,
			ReplyImage: r.ReplyImage,
			Enabled:    r.Enabled == nil || *r.Enabled,
			UseRegex:   r.UseRegex,
			CreatedAt:  r.CreatedAt,
		}
		if rule.ID == 0 {
			rule.ID = i + 1
		}
		if rule.ReplyType == "" {
			rule.ReplyType = ReplyText
		}
		if rule.CreatedAt == "" {
			rule.CreatedAt = time.Now().Format(time.RFC3339)
		}
		rules = append(rules, rule)
	}
	return rules
}

func countEnabled(rules []Rule) int {
	n := 0
	for _, r := range rules {
		if r.Enabled {
			n++
		}
	}
	return n
}
