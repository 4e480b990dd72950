package reply

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/Wu-ChengLiang/BiliGo/internal/rules"
	"github.com/Wu-ChengLiang/BiliGo/internal/settings"
)

type stubMatcher struct {
	match rules.Match
	ok    bool
}

func (s stubMatcher) Match(string) (rules.Match, bool) { return s.match, s.ok }

type stubResponder struct {
	reply     string
	err       error
	available bool
	calls     int
}

func (s *stubResponder) Reply(context.Context, string, string, string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func (s *stubResponder) Available(context.Context) bool { return s.available }

func baseSettings() settings.Settings {
	cfg := settings.Defaults()
	cfg.DefaultReplyEnabled = true
	cfg.DefaultReplyMessage = "稍后回复"
	return cfg
}

func newResolver(m Matcher, ai Responder, cfg settings.Settings) *Resolver {
	return NewResolver(slog.Default(), m, ai, func() settings.Settings { return cfg })
}

func TestRuleHitWinsOverAI(t *testing.T) {
	m := stubMatcher{
		match: rules.Match{Rule: rules.Rule{Name: "price", Reply: "798元", ReplyType: rules.ReplyText}, Keyword: "价格"},
		ok:    true,
	}
	ai := &stubResponder{reply: "ai answer", available: true}
	cfg := baseSettings()
	cfg.AIEnabled = true

	got := newResolver(m, ai, cfg).Resolve(context.Background(), 42, "u", "问一下价格")
	if got == nil || got.Source != SourceRule || got.Text != "798元" {
		t.Fatalf("got %+v, want rule reply", got)
	}
	if ai.calls != 0 {
		t.Fatalf("ai consulted despite rule hit (%d calls)", ai.calls)
	}
}

func TestAIUsedWhenNoRuleMatches(t *testing.T) {
	ai := &stubResponder{reply: "generated", available: true}
	cfg := baseSettings()
	cfg.AIEnabled = true

	got := newResolver(stubMatcher{}, ai, cfg).Resolve(context.Background(), 42, "u", "hello")
	if got == nil || got.Source != SourceAI || got.Text != "generated" {
		t.Fatalf("got %+v, want ai reply", got)
	}
}

func TestAIErrorFallsThroughToDefault(t *testing.T) {
	ai := &stubResponder{err: errors.New("service down"), available: true}
	cfg := baseSettings()
	cfg.AIEnabled = true
	cfg.AIUseFallback = true

	got := newResolver(stubMatcher{}, ai, cfg).Resolve(context.Background(), 42, "u", "hello")
	if got == nil || got.Source != SourceDefault || got.Text != "稍后回复" {
		t.Fatalf("got %+v, want default reply", got)
	}
}

func TestAIErrorWithoutFallbackStaysSilent(t *testing.T) {
	ai := &stubResponder{err: errors.New("service down"), available: true}
	cfg := baseSettings()
	cfg.AIEnabled = true
	cfg.AIUseFallback = false

	if got := newResolver(stubMatcher{}, ai, cfg).Resolve(context.Background(), 42, "u", "hello"); got != nil {
		t.Fatalf("got %+v, want silence", got)
	}
}

func TestAIEmptyAnswerFallsThrough(t *testing.T) {
	ai := &stubResponder{reply: "", available: true}
	cfg := baseSettings()
	cfg.AIEnabled = true
	cfg.AIUseFallback = false

	// Empty answer is a decline, not a failure: the fallback flag does not
	// apply and the default reply is used.
	got := newResolver(stubMatcher{}, ai, cfg).Resolve(context.Background(), 42, "u", "hello")
	if got == nil || got.Source != SourceDefault {
		t.Fatalf("got %+v, want default reply", got)
	}
}

func TestAISkippedWhenUnavailable(t *testing.T) {
	ai := &stubResponder{reply: "generated", available: false}
	cfg := baseSettings()
	cfg.AIEnabled = true

	got := newResolver(stubMatcher{}, ai, cfg).Resolve(context.Background(), 42, "u", "hello")
	if got == nil || got.Source != SourceDefault {
		t.Fatalf("got %+v, want default reply", got)
	}
	if ai.calls != 0 {
		t.Fatal("unavailable ai service was called")
	}
}

func TestDefaultDisabledMeansSilence(t *testing.T) {
	cfg := baseSettings()
	cfg.DefaultReplyEnabled = false

	if got := newResolver(stubMatcher{}, nil, cfg).Resolve(context.Background(), 42, "u", "hello"); got != nil {
		t.Fatalf("got %+v, want silence", got)
	}
}

func TestDefaultImageReply(t *testing.T) {
	cfg := baseSettings()
	cfg.DefaultReplyType = settings.ReplyTypeImage
	cfg.DefaultReplyImage = "/data/menu.png"

	got := newResolver(stubMatcher{}, nil, cfg).Resolve(context.Background(), 42, "u", "hello")
	if got == nil || got.Kind != settings.ReplyTypeImage || got.ImagePath != "/data/menu.png" {
		t.Fatalf("got %+v, want image default reply", got)
	}
}

func TestRuleImageReply(t *testing.T) {
	m := stubMatcher{
		match: rules.Match{Rule: rules.Rule{
			Name: "menu", Reply: "见图", ReplyType: rules.ReplyImage, ReplyImage: "/data/menu.png",
		}},
		ok: true,
	}

	got := newResolver(m, nil, baseSettings()).Resolve(context.Background(), 42, "u", "菜单")
	if got == nil || got.Kind != rules.ReplyImage || got.ImagePath != "/data/menu.png" {
		t.Fatalf("got %+v, want image rule reply", got)
	}
}
