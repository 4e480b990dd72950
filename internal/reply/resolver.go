// Package reply decides what, if anything, to answer for an incoming private
// message: keyword rule first, then the AI service, then the configured
// default reply.
package reply

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Wu-ChengLiang/BiliGo/internal/rules"
	"github.com/Wu-ChengLiang/BiliGo/internal/settings"
)

// Reply sources, in resolution priority order.
const (
	SourceRule    = "rule"
	SourceAI      = "ai"
	SourceDefault = "default"
)

// Reply is a resolved outgoing answer.
type Reply struct {
	Text      string
	Kind      string
	ImagePath string
	Source    string
}

// Matcher resolves a keyword rule for a message text.
type Matcher interface {
	Match(text string) (rules.Match, bool)
}

// Resolver runs the reply decision chain. A nil result means stay silent.
type Resolver struct {
	index    Matcher
	ai       Responder
	settings func() settings.Settings
	logger   *slog.Logger
}

// NewResolver builds a resolver. ai may be nil when no AI service is wired.
func NewResolver(log *slog.Logger, index Matcher, ai Responder, settingsFn func() settings.Settings) *Resolver {
	return &Resolver{
		index:    index,
		ai:       ai,
		settings: settingsFn,
		logger:   log.With(slog.String("service", "reply")),
	}
}

// Resolve picks a reply for one incoming message. Rule hits win outright.
// The AI service is consulted next when enabled and reachable; an AI error or
// empty answer falls through to the default reply, unless fallback is
// disabled, in which case the message stays unanswered. The default reply is
// last, and only when enabled.
func (r *Resolver) Resolve(ctx context.Context, senderUID int64, senderName, text string) *Reply {
	cfg := r.settings()

	if m, ok := r.index.Match(text); ok {
		r.logger.Info("rule matched",
			slog.String("keyword", m.Keyword),
			slog.String("rule", m.Rule.Name),
		)
		return ruleReply(m.Rule)
	}

	if cfg.AIEnabled && r.ai != nil && r.ai.Available(ctx) {
		answer, err := r.ai.Reply(ctx, text, strconv.FormatInt(senderUID, 10), senderName)
		if err != nil {
			r.logger.Warn("ai reply failed", slog.Any("error", err))
			if !cfg.AIUseFallback {
				return nil
			}
		} else if answer != "" {
			return &Reply{Text: answer, Kind: settings.ReplyTypeText, Source: SourceAI}
		}
	}

	return r.defaultReply(cfg)
}

func (r *Resolver) defaultReply(cfg settings.Settings) *Reply {
	if !cfg.DefaultReplyEnabled {
		return nil
	}
	if cfg.DefaultReplyType == settings.ReplyTypeImage && cfg.DefaultReplyImage != "" {
		return &Reply{
			Kind:      settings.ReplyTypeImage,
			ImagePath: cfg.DefaultReplyImage,
			Text:      cfg.DefaultReplyMessage,
			Source:    SourceDefault,
		}
	}
	if strings.TrimSpace(cfg.DefaultReplyMessage) == "" {
		return nil
	}
	return &Reply{
		Kind:   settings.ReplyTypeText,
		Text:   cfg.DefaultReplyMessage,
		Source: SourceDefault,
	}
}

func ruleReply(rule rules.Rule) *Reply {
	if rule.ReplyType == rules.ReplyImage && rule.ReplyImage != "" {
		return &Reply{
			Kind:      rules.ReplyImage,
			ImagePath: rule.ReplyImage,
			Text:      rule.Reply,
			Source:    SourceRule,
		}
	}
	return &Reply{
		Kind:   rules.ReplyText,
		Text:   rule.Reply,
		Source: SourceRule,
	}
}
