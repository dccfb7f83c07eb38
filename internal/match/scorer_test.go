package match

import (
	"strings"
	"testing"

	"github.com/hyeonsu-k/saju-matcher/internal/store"
)

func user(id uint64, mbti, summary string) store.User {
	return store.User{ID: id, Name: "user", MBTI: mbti, TraitSummary: summary}
}

func TestScoreENFPWithINFP(t *testing.T) {
	// ENFP and INFP share the N, F and P axes: 50 + 15 + 10 + 10 = 85.
	// Two shared trait keywords: 60 + 16 = 76.
	// Final: round(0.6*85 + 0.4*76) = 81.
	a := user(1, "ENFP", "연주: 무인 | traits: adaptable, intuitive")
	b := user(2, "INFP", "연주: 기묘 | traits: adaptable, intuitive")

	score, reason := Score(a, b)
	if score != 81 {
		t.Fatalf("expected score 81, got %d", score)
	}
	if !strings.Contains(reason, "complement each other well") {
		t.Fatalf("expected the 75-84 band reason, got %q", reason)
	}
	if !strings.Contains(reason, "ENFP") || !strings.Contains(reason, "INFP") {
		t.Fatalf("reason should reference both type labels: %q", reason)
	}
}

func TestScoreIdenticalTypes(t *testing.T) {
	// All four axes shared: 50 + 50 = 100. Two shared keywords: 76.
	// Final: round(0.6*100 + 0.4*76) = 90, top band.
	a := user(1, "INTJ", "traits: disciplined, precise")
	b := user(2, "INTJ", "traits: disciplined, precise")

	score, reason := Score(a, b)
	if score != 90 {
		t.Fatalf("expected score 90, got %d", score)
	}
	if !strings.Contains(reason, "rare find") {
		t.Fatalf("expected the top band reason, got %q", reason)
	}
}

func TestScoreNoOverlap(t *testing.T) {
	// Opposite on every axis and no shared keywords:
	// type = 50, trait = 60 - 10 = 50, final = 50.
	a := user(1, "ENFP", "traits: passionate, expressive")
	b := user(2, "ISTJ", "traits: steady, grounded")

	score, reason := Score(a, b)
	if score != 50 {
		t.Fatalf("expected score 50, got %d", score)
	}
	if !strings.Contains(reason, "different directions") {
		t.Fatalf("expected the bottom band reason, got %q", reason)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	a := user(1, "ESTP", "traits: adaptable, creative")
	b := user(2, "INFJ", "traits: intuitive, creative")

	firstScore, firstReason := Score(a, b)
	for i := 0; i < 10; i++ {
		score, reason := Score(a, b)
		if score != firstScore || reason != firstReason {
			t.Fatalf("score is not deterministic: (%d,%q) vs (%d,%q)", firstScore, firstReason, score, reason)
		}
	}
}

func TestScoreIsSymmetricInValue(t *testing.T) {
	a := user(1, "ENTP", "traits: creative, expressive")
	b := user(2, "ISFJ", "traits: steady, creative")

	ab, _ := Score(a, b)
	ba, _ := Score(b, a)
	if ab != ba {
		t.Fatalf("score should not depend on argument order: %d vs %d", ab, ba)
	}
}

func TestScoreAlwaysInBounds(t *testing.T) {
	types := []string{"ENFP", "INFP", "ISTJ", "ENTJ", "INTP", "ESFJ", "", "XXXX", "enfp"}
	summaries := []string{
		"",
		"traits: adaptable",
		"traits: adaptable, intuitive, creative, growth-seeking, passionate, expressive, steady, grounded, disciplined, precise",
		"no keywords at all",
	}

	for _, ta := range types {
		for _, tb := range types {
			for _, sa := range summaries {
				for _, sb := range summaries {
					score, reason := Score(user(1, ta, sa), user(2, tb, sb))
					if score < 20 || score > 100 {
						t.Fatalf("score %d out of [20,100] for %q/%q", score, ta, tb)
					}
					if reason == "" {
						t.Fatalf("empty reason for %q/%q", ta, tb)
					}
				}
			}
		}
	}
}

func TestScoreManySharedKeywordsClamped(t *testing.T) {
	// All ten keywords shared: trait sub-score 60+80=140 clamps to 100.
	// Identical types: type = 100. Final = 100.
	all := "traits: adaptable, intuitive, creative, growth-seeking, passionate, expressive, steady, grounded, disciplined, precise"
	score, _ := Score(user(1, "ENFJ", all), user(2, "ENFJ", all))
	if score != 100 {
		t.Fatalf("expected clamped maximum score 100, got %d", score)
	}
}
