package match

import (
	"fmt"
	"math"
	"strings"

	"github.com/hyeonsu-k/saju-matcher/internal/store"
	"github.com/hyeonsu-k/saju-matcher/internal/utils"
)

// MBTI axis bonuses. The attitude axes (E/I, N/S) weigh more than the
// decision axes (T/F, J/P).
var axisBonuses = [4]int{15, 15, 10, 10}

// axisValue extracts the value of one of the four MBTI axes from a type
// label. Axis 0 is E/I, 1 is N/S, 2 is T/F, 3 is J/P.
func axisValue(mbti string, axis int) byte {
	mbti = strings.ToUpper(strings.TrimSpace(mbti))
	if len(mbti) != 4 {
		return 0
	}
	return mbti[axis]
}

// traitKeywords are the summary fragments the trait sub-score looks for.
// They are the vocabulary internal/saju emits, so two users with the same
// dominant element share at least two of them.
var traitKeywords = []string{
	"creative", "growth-seeking",
	"passionate", "expressive",
	"steady", "grounded",
	"disciplined", "precise",
	"adaptable", "intuitive",
}

const (
	typeBase       = 50
	traitBase      = 60
	traitBonus     = 8
	traitPenalty   = 10
	typeWeight     = 0.6
	traitWeight    = 0.4
	scoreFloor     = 20
	scoreCeil      = 100
	traitSubFloor  = 30
	traitSubCeil   = 100
)

// Score computes the deterministic rule-based compatibility score for two
// users, in [20,100], plus a canned explanation. Pure; called O(n*m)
// times per batch, so it must stay allocation-light.
func Score(a, b store.User) (int, string) {
	typeScore := typeBase
	for axis := 0; axis < 4; axis++ {
		av, bv := axisValue(a.MBTI, axis), axisValue(b.MBTI, axis)
		if av != 0 && av == bv {
			typeScore += axisBonuses[axis]
		}
	}

	shared := sharedKeywords(a.TraitSummary, b.TraitSummary)
	traitScore := traitBase
	if shared > 0 {
		traitScore += shared * traitBonus
	} else {
		traitScore -= traitPenalty
	}
	traitScore = utils.Clamp(traitScore, traitSubFloor, traitSubCeil)

	final := int(math.Round(typeWeight*float64(typeScore) + traitWeight*float64(traitScore)))
	final = utils.Clamp(final, scoreFloor, scoreCeil)

	return final, reasonFor(final, a.MBTI, b.MBTI)
}

func sharedKeywords(summaryA, summaryB string) int {
	la, lb := strings.ToLower(summaryA), strings.ToLower(summaryB)
	count := 0
	for _, kw := range traitKeywords {
		if strings.Contains(la, kw) && strings.Contains(lb, kw) {
			count++
		}
	}
	return count
}

// reasonFor picks the canned explanation band for a final score.
func reasonFor(score int, mbtiA, mbtiB string) string {
	mbtiA, mbtiB = strings.ToUpper(strings.TrimSpace(mbtiA)), strings.ToUpper(strings.TrimSpace(mbtiB))
	switch {
	case score >= 85:
		return fmt.Sprintf("%s and %s are a rare find: their saju energies reinforce each other and their temperaments click naturally.", mbtiA, mbtiB)
	case score >= 75:
		return fmt.Sprintf("%s and %s complement each other well; their saju charts share a strong common current.", mbtiA, mbtiB)
	case score >= 65:
		return fmt.Sprintf("%s and %s have solid common ground, with saju traits that balance each other out.", mbtiA, mbtiB)
	case score >= 55:
		return fmt.Sprintf("%s and %s can work with some effort; their saju readings overlap in places but diverge in others.", mbtiA, mbtiB)
	default:
		return fmt.Sprintf("%s and %s pull in different directions; their saju charts suggest contrasting rhythms.", mbtiA, mbtiB)
	}
}
