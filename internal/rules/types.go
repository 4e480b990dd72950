// Package rules holds the keyword reply rules, their JSON file store, and the
// compiled index used for matching inbound messages.
package rules

import "strings"

// Reply kinds a rule can carry.
const (
	ReplyText  = "text"
	ReplyImage = "image"
)

// Rule is one keyword reply rule. Keyword may hold several keywords separated
// by full-width or half-width commas.
type Rule struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Keyword    string `json:"keyword"`
	Reply      string `json:"reply"`
	ReplyType  string `json:"reply_type"`
	ReplyImage string `json:"reply_image"`
	Enabled    bool   `json:"enabled"`
	UseRegex   bool   `json:"use_regex"`
	CreatedAt  string `json:"created_at"`
}

// Keywords splits the raw keyword string on full-width and half-width commas,
// case-folds and trims each token, and discards empty ones.
func (r Rule) Keywords() []string {
	raw := strings.ReplaceAll(r.Keyword, "，", ",")
	parts := strings.Split(raw, ",")
	keywords := make([]string, 0, len(parts))
	for _, part := range parts {
		kw := strings.ToLower(strings.TrimSpace(part))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}
