package rules

import (
	"reflect"
	"testing"
)

func TestKeywordsSplitting(t *testing.T) {
	tests := []struct {
		name    string
		keyword string
		want    []string
	}{
		{"full-width commas", "价格，多少钱，售价", []string{"价格", "多少钱", "售价"}},
		{"half-width commas", "price, cost", []string{"price", "cost"}},
		{"mixed commas and empties", "你好，, Hello ，", []string{"你好", "hello"}},
		{"single keyword folded", "  HELLO ", []string{"hello"}},
		{"all empty", "，，,", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rule{Keyword: tt.keyword}.Keywords()
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Keywords(%q) = %v, want %v", tt.keyword, got, tt.want)
			}
		})
	}
}

func TestRebuildSkipsDisabledAndEmpty(t *testing.T) {
	ix := NewIndex()
	ix.Rebuild([]Rule{
		{Name: "a", Keyword: "hi", Enabled: true},
		{Name: "b", Keyword: "yo", Enabled: false},
		{Name: "c", Keyword: "，，", Enabled: true},
	})
	if ix.Size() != 1 {
		t.Errorf("Size = %d, want 1", ix.Size())
	}
	if _, ok := ix.Match("yo"); ok {
		t.Error("disabled rule should not match")
	}
}

func TestLongestKeywordWinsAcrossRules(t *testing.T) {
	ix := NewIndex()
	ix.Rebuild([]Rule{
		{Name: "short", Keyword: "hi", Reply: "A", Enabled: true},
		{Name: "long", Keyword: "hi there", Reply: "B", Enabled: true},
	})
	m, ok := ix.Match("hi there")
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Rule.Reply != "B" {
		t.Errorf("reply = %q, want B (longest keyword precedence)", m.Rule.Reply)
	}
	if m.Keyword != "hi there" {
		t.Errorf("keyword = %q", m.Keyword)
	}
}

func TestLongestKeywordWinsWithinRule(t *testing.T) {
	ix := NewIndex()
	ix.Rebuild([]Rule{
		{Name: "r", Keyword: "价格，问一下价格", Reply: "798元", Enabled: true},
	})
	m, ok := ix.Match("问一下价格")
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Keyword != "问一下价格" {
		t.Errorf("keyword = %q, want the longer one", m.Keyword)
	}
}

func TestKeywordLengthComparedInCharacters(t *testing.T) {
	ix := NewIndex()
	ix.Rebuild([]Rule{
		{Name: "cjk", Keyword: "价格", Reply: "A", Enabled: true},
		{Name: "ascii", Keyword: "abcde", Reply: "B", Enabled: true},
	})
	m, ok := ix.Match("xx价格abcdexx")
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Rule.Reply != "B" {
		t.Errorf("reply = %q, want B (5 characters outrank 2, regardless of byte width)", m.Rule.Reply)
	}
}

func TestTieGoesToEarlierRule(t *testing.T) {
	ix := NewIndex()
	ix.Rebuild([]Rule{
		{Name: "first", Keyword: "abc", Reply: "1", Enabled: true},
		{Name: "second", Keyword: "xyz", Reply: "2", Enabled: true},
	})
	m, ok := ix.Match("abc xyz")
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Rule.Reply != "1" {
		t.Errorf("reply = %q, want the earlier rule on equal keyword length", m.Rule.Reply)
	}
}

func TestMatchCaseFoldsAndTrims(t *testing.T) {
	ix := NewIndex()
	ix.Rebuild([]Rule{{Name: "r", Keyword: "Price", Reply: "ok", Enabled: true}})
	if _, ok := ix.Match("  what is the PRICE?  "); !ok {
		t.Error("expected case-insensitive substring match")
	}
	if _, ok := ix.Match("   "); ok {
		t.Error("blank input must not match")
	}
}
