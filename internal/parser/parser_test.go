package parser

import (
	"math/rand"
	"strings"
	"testing"
)

func TestParse_Leading(t *testing.T) {
	r := Parse("!W cats and dogs", "!")
	if !r.Found || r.Token != "w" {
		t.Fatalf("token = %q found=%v, want w", r.Token, r.Found)
	}
	if r.Remainder != "cats and dogs" {
		t.Errorf("remainder = %q", r.Remainder)
	}
}

func TestParse_Trailing(t *testing.T) {
	r := Parse("cats   and dogs !gh", "!")
	if !r.Found || r.Token != "gh" {
		t.Fatalf("token = %q found=%v, want gh", r.Token, r.Found)
	}
	if r.Remainder != "cats and dogs" {
		t.Errorf("remainder = %q", r.Remainder)
	}
}

func TestParse_LeadingWins(t *testing.T) {
	r := Parse("!a middle !b", "!")
	if r.Token != "a" || r.Remainder != "middle !b" {
		t.Errorf("got %+v", r)
	}
}

func TestParse_BangOnly(t *testing.T) {
	r := Parse("!w", "!")
	if !r.Found || r.Token != "w" || r.Remainder != "" {
		t.Errorf("got %+v", r)
	}
}

func TestParse_NoBang(t *testing.T) {
	for _, q := range []string{"", "   ", "cats", "cats dogs", "a!b c", "  padded  query "} {
		r := Parse(q, "!")
		if r.Found {
			t.Errorf("Parse(%q) found token %q", q, r.Token)
		}
		if r.Remainder != q {
			t.Errorf("Parse(%q) remainder = %q, want unchanged", q, r.Remainder)
		}
	}
}

func TestParse_SymbolOnlyTermIsNotABang(t *testing.T) {
	r := Parse("! cats", "!")
	if r.Found {
		t.Fatalf("bare symbol should not be a bang, got %+v", r)
	}
	r = Parse("!! cats !w", "!")
	if r.Token != "w" || r.Remainder != "!! cats" {
		t.Errorf("got %+v", r)
	}
}

func TestParse_CustomSymbol(t *testing.T) {
	r := Parse("??yt lo-fi", "??")
	if !r.Found || r.Token != "yt" || r.Remainder != "lo-fi" {
		t.Fatalf("got %+v", r)
	}
	r = Parse("!yt lo-fi", "??")
	if r.Found {
		t.Errorf("default symbol should not match when another is configured")
	}
}

func TestParse_EmptySymbolDefaults(t *testing.T) {
	if r := Parse("!w x", ""); r.Token != "w" {
		t.Errorf("got %+v", r)
	}
}

func TestNormalizeToken(t *testing.T) {
	tests := []struct {
		in, symbol, want string
	}{
		{"!W", "!", "w"},
		{"w!", "!", "w"},
		{"!!GH!!", "!", "gh"},
		{"@@maps@@", "@@", "maps"},
		{" !Yt ", "!", "yt"},
		{"a!b", "!", "a!b"},
	}
	for _, tt := range tests {
		if got := NormalizeToken(tt.in, tt.symbol); got != tt.want {
			t.Errorf("NormalizeToken(%q, %q) = %q, want %q", tt.in, tt.symbol, got, tt.want)
		}
	}
}

func randomWords(r *rand.Rand, n int) []string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_.é"
	letterRunes := []rune(letters)
	words := make([]string, n)
	for i := range words {
		l := 1 + r.Intn(8)
		b := make([]rune, l)
		for j := range b {
			b[j] = letterRunes[r.Intn(len(letterRunes))]
		}
		words[i] = string(b)
	}
	return words
}

func TestParse_PropertyNoSymbol(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		q := strings.Join(randomWords(r, r.Intn(6)), strings.Repeat(" ", 1+r.Intn(2)))
		got := Parse(q, "!")
		if got.Found || got.Remainder != q {
			t.Fatalf("Parse(%q) = %+v", q, got)
		}
	}
}

func TestParse_PropertyLeadingAndTrailing(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 500; i++ {
		token := randomWords(r, 1)[0]
		rest := randomWords(r, 1+r.Intn(4))
		restStr := strings.Join(rest, " ")

		lead := Parse("!"+token+" "+restStr, "!")
		if lead.Token != strings.ToLower(token) || lead.Remainder != restStr {
			t.Fatalf("leading: token %q rest %q -> %+v", token, restStr, lead)
		}
		trail := Parse(restStr+" !"+token, "!")
		if trail.Token != strings.ToLower(token) || trail.Remainder != restStr {
			t.Fatalf("trailing: token %q rest %q -> %+v", token, restStr, trail)
		}
	}
}
