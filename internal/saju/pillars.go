package saju

import (
	"fmt"
	"strings"
)

// The ten heavenly stems and twelve earthly branches of the traditional
// Korean sexagenary calendar.
var (
	stems    = []string{"갑", "을", "병", "정", "무", "기", "경", "신", "임", "계"}
	branches = []string{"자", "축", "인", "묘", "진", "사", "오", "미", "신", "유", "술", "해"}

	// Month pillars count from the tiger month: the solar year starts in
	// month 4 of the civil calendar for this simplified encoding.
	monthOrder    = []int{4, 5, 6, 7, 8, 9, 10, 11, 12, 1, 2, 3}
	monthBranches = []string{"인", "묘", "진", "사", "오", "미", "신", "유", "술", "해", "자", "축"}
)

// FourPillars is the calendrical encoding of a birth moment: one
// stem+branch pair each for the year, month, day and hour.
type FourPillars struct {
	Year  string
	Month string
	Day   string
	Hour  string
}

func (p FourPillars) String() string {
	return fmt.Sprintf("연주: %s, 월주: %s, 일주: %s, 시주: %s", p.Year, p.Month, p.Day, p.Hour)
}

// stemGroupOffset returns the month/hour stem offset for the five stem
// pairs (갑기, 을경, 병신, 정임, 무계).
func stemGroupOffset(stemIndex int) int {
	return (stemIndex % 5) * 2
}

func isLeap(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

// Encode derives the four pillars for the given birth date and hour.
// Deterministic; fails only on out-of-range input.
func Encode(year, month, day, hour int) (FourPillars, error) {
	if year < 1 {
		return FourPillars{}, fmt.Errorf("year %d out of range", year)
	}
	if month < 1 || month > 12 {
		return FourPillars{}, fmt.Errorf("month %d out of range", month)
	}
	if day < 1 || day > daysInMonth(year, month) {
		return FourPillars{}, fmt.Errorf("day %d out of range for %d-%02d", day, year, month)
	}
	if hour < 0 || hour > 23 {
		return FourPillars{}, fmt.Errorf("hour %d out of range", hour)
	}

	yearStem := (year - 4) % 10
	yearBranch := (year - 4) % 12
	yearPillar := stems[yearStem] + branches[yearBranch]

	monthIndex := indexOf(monthOrder, month)
	monthStem := (stemGroupOffset(yearStem) + monthIndex + 2) % 10
	monthPillar := stems[monthStem] + monthBranches[monthIndex]

	total := 0
	for y := 1; y < year; y++ {
		if isLeap(y) {
			total += 366
		} else {
			total += 365
		}
	}
	for m := 1; m < month; m++ {
		total += daysInMonth(year, m)
	}
	total += day

	dayStem := (total + 6) % 10
	dayBranch := (total + 8) % 12
	dayPillar := stems[dayStem] + branches[dayBranch]

	// Each branch spans two hours, with 자 straddling 23:00-00:59.
	hourBranch := ((hour + 1) % 24) / 2
	hourStem := (stemGroupOffset(dayStem) + hourBranch) % 10
	hourPillar := stems[hourStem] + branches[hourBranch]

	return FourPillars{
		Year:  yearPillar,
		Month: monthPillar,
		Day:   dayPillar,
		Hour:  hourPillar,
	}, nil
}

func daysInMonth(year, month int) int {
	days := []int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
	if month == 2 && isLeap(year) {
		return 29
	}
	return days[month-1]
}

func indexOf(list []int, v int) int {
	for i, item := range list {
		if item == v {
			return i
		}
	}
	return 0
}

// element names the five-element association of a stem or branch character.
func element(char string) string {
	switch char {
	case "갑", "을", "인", "묘":
		return "wood"
	case "병", "정", "사", "오":
		return "fire"
	case "무", "기", "진", "술", "축", "미":
		return "earth"
	case "경", "신", "유":
		return "metal"
	case "임", "계", "해", "자":
		return "water"
	}
	return ""
}

var elementTraits = map[string][]string{
	"wood":  {"creative", "growth-seeking"},
	"fire":  {"passionate", "expressive"},
	"earth": {"steady", "grounded"},
	"metal": {"disciplined", "precise"},
	"water": {"adaptable", "intuitive"},
}

// TraitSummary renders the pillars plus their dominant-element trait
// keywords into the opaque text the compatibility scorer consumes.
// Deterministic for a given set of pillars.
func TraitSummary(p FourPillars) string {
	counts := map[string]int{}
	for _, pillar := range []string{p.Year, p.Month, p.Day, p.Hour} {
		for _, r := range pillar {
			if e := element(string(r)); e != "" {
				counts[e]++
			}
		}
	}

	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}

	var traits []string
	for _, e := range []string{"wood", "fire", "earth", "metal", "water"} {
		if counts[e] == max && max > 0 {
			traits = append(traits, elementTraits[e]...)
		}
	}

	return fmt.Sprintf("%s | traits: %s", p.String(), strings.Join(traits, ", "))
}
