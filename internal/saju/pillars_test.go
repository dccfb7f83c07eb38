package saju

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestEncodeKnownDates(t *testing.T) {
	cases := []struct {
		year, month, day, hour int
		want                   FourPillars
	}{
		{1998, 3, 14, 9, FourPillars{"무인", "을축", "임인", "을사"}},
		{2000, 1, 9, 14, FourPillars{"경진", "정해", "무신", "기미"}},
		{1996, 12, 4, 23, FourPillars{"병자", "무술", "정사", "경자"}},
		{1999, 7, 2, 0, FourPillars{"기묘", "기사", "정유", "경자"}},
		{1999, 7, 2, 21, FourPillars{"기묘", "기사", "정유", "신해"}},
		{1997, 11, 23, 6, FourPillars{"정축", "기유", "신해", "신묘"}},
		{2001, 9, 18, 11, FourPillars{"신사", "을미", "병인", "갑오"}},
	}

	for _, tc := range cases {
		got, err := Encode(tc.year, tc.month, tc.day, tc.hour)
		if err != nil {
			t.Fatalf("Encode(%d,%d,%d,%d): unexpected error: %v", tc.year, tc.month, tc.day, tc.hour, err)
		}
		if got != tc.want {
			t.Fatalf("Encode(%d,%d,%d,%d) = %+v, want %+v", tc.year, tc.month, tc.day, tc.hour, got, tc.want)
		}
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	first, err := Encode(1998, 3, 14, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Encode(1998, 3, 14, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("same input produced different pillars: %+v vs %+v", first, second)
	}
}

func TestEncodePillarShape(t *testing.T) {
	p, err := Encode(2001, 9, 18, 11)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, pillar := range []string{p.Year, p.Month, p.Day, p.Hour} {
		if utf8.RuneCountInString(pillar) != 2 {
			t.Fatalf("pillar %q is not two characters", pillar)
		}
	}
}

func TestEncodeRejectsBadInput(t *testing.T) {
	cases := []struct {
		name                   string
		year, month, day, hour int
	}{
		{"month too large", 2000, 13, 1, 0},
		{"day too large", 2001, 2, 29, 0},
		{"hour negative", 2000, 1, 1, -1},
		{"hour too large", 2000, 1, 1, 24},
		{"year zero", 0, 1, 1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Encode(tc.year, tc.month, tc.day, tc.hour); err == nil {
				t.Fatalf("expected error for (%d,%d,%d,%d)", tc.year, tc.month, tc.day, tc.hour)
			}
		})
	}
}

func TestEncodeAcceptsLeapDay(t *testing.T) {
	if _, err := Encode(2000, 2, 29, 12); err != nil {
		t.Fatalf("2000-02-29 should be valid: %v", err)
	}
}

func TestTraitSummaryContainsPillarsAndTraits(t *testing.T) {
	p, err := Encode(1998, 3, 14, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	summary := TraitSummary(p)
	for _, pillar := range []string{p.Year, p.Month, p.Day, p.Hour} {
		if !strings.Contains(summary, pillar) {
			t.Fatalf("summary %q does not mention pillar %q", summary, pillar)
		}
	}
	if !strings.Contains(summary, "traits:") {
		t.Fatalf("summary %q has no trait keywords", summary)
	}
	if summary != TraitSummary(p) {
		t.Fatalf("trait summary is not deterministic")
	}
}
