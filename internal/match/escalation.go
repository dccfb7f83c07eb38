package match

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hyeonsu-k/saju-matcher/internal/ai"
	"github.com/hyeonsu-k/saju-matcher/internal/logger"
	"github.com/hyeonsu-k/saju-matcher/internal/store"
	"github.com/hyeonsu-k/saju-matcher/internal/utils"
)

const (
	// DefaultEscalationThreshold is the minimum rule-based score required
	// before the expensive AI path is taken.
	DefaultEscalationThreshold = 70

	defaultCallTimeout = 10 * time.Second
	aiMaxTokens        = 500
	aiTemperature      = 0.7

	priorWeight = 0.7
	aiWeight    = 0.3

	reasonMaxRunes = 140

	// requiredKeyword must appear in every reason the escalator returns.
	requiredKeyword = "saju"

	defaultMaxLogLength = 200
)

var (
	scoreLine = regexp.MustCompile(`(?im)^.*?score\s*[:：]`)
	firstInt  = regexp.MustCompile(`\d+`)

	// Reason label patterns, tried in order.
	reasonPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?im)^\s*reason\s*[:：]\s*(.+)$`),
		regexp.MustCompile(`(?im)^\s*matching\s+reason\s*[:：]\s*(.+)$`),
		regexp.MustCompile(`(?im)^\s*analysis\s*[:：]\s*(.+)$`),
		regexp.MustCompile(`(?im)^\s*explanation\s*[:：]\s*(.+)$`),
	}

	markupChars = strings.NewReplacer("*", "", "#", "", "`", "", "_", "")
	htmlTag     = regexp.MustCompile(`<[^>]*>`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// Escalator refines a rule-based score with one AI call per pair. It
// never fails: on any error, timeout, or unusable response it falls back
// to the prior score and reason.
type Escalator struct {
	generator ai.Generator
	threshold int
	timeout   time.Duration
	logger    *zap.Logger
	maxLogLen int
}

// EscalatorOption tweaks Escalator behavior.
type EscalatorOption func(*Escalator)

func WithThreshold(threshold int) EscalatorOption {
	return func(e *Escalator) { e.threshold = threshold }
}

func WithCallTimeout(d time.Duration) EscalatorOption {
	return func(e *Escalator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func NewEscalator(generator ai.Generator, log *zap.Logger, opts ...EscalatorOption) *Escalator {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Escalator{
		generator: generator,
		threshold: DefaultEscalationThreshold,
		timeout:   defaultCallTimeout,
		logger:    log,
		maxLogLen: defaultMaxLogLength,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the minimum prior score that triggers an AI call.
func (e *Escalator) Threshold() int { return e.threshold }

type generation struct {
	gen *ai.Generation
	err error
}

// Escalate returns the final (score, reason) for a pair whose rule-based
// result is (prior, priorReason). Below the threshold, or on any failure
// of the AI path, the prior result is returned unchanged except that the
// reason keyword contract still holds.
func (e *Escalator) Escalate(ctx context.Context, a, b store.User, prior int, priorReason string) (int, string) {
	if e.generator == nil || prior < e.threshold {
		return prior, ensureKeyword(priorReason)
	}

	prompt := buildPrompt(a, b)

	e.logger.Debug("escalation request",
		zap.Uint64("user_a", a.ID),
		zap.Uint64("user_b", b.ID),
		zap.Int("prior_score", prior),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, e.maxLogLen)),
	)

	// The transport may ignore its own timeout, so the call runs on its
	// own goroutine and is abandoned once the deadline passes. The
	// buffered channel lets the late goroutine finish and be collected.
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ch := make(chan generation, 1)
	go func() {
		gen, err := e.generator.Generate(callCtx, prompt, aiMaxTokens, aiTemperature)
		ch <- generation{gen: gen, err: err}
	}()

	var result generation
	select {
	case <-callCtx.Done():
		e.logger.Warn("escalation call abandoned",
			zap.Uint64("user_a", a.ID),
			zap.Uint64("user_b", b.ID),
			zap.Duration("timeout", e.timeout),
		)
		return prior, fallbackReason(priorReason)
	case result = <-ch:
	}

	if result.err != nil {
		e.logger.Warn("escalation call failed",
			zap.Uint64("user_a", a.ID),
			zap.Uint64("user_b", b.ID),
			zap.Error(result.err),
		)
		return prior, fallbackReason(priorReason)
	}

	text := strings.TrimSpace(result.gen.Text)

	e.logger.Debug("escalation response",
		zap.Uint64("user_a", a.ID),
		zap.Uint64("user_b", b.ID),
		zap.Int("response_length", utf8.RuneCountInString(text)),
		zap.String("response_preview", logger.TruncateForLog(text, e.maxLogLen)),
	)

	if !result.gen.Finished {
		e.logger.Warn("escalation response did not finish normally; discarding",
			zap.Uint64("user_a", a.ID),
			zap.Uint64("user_b", b.ID),
		)
		return prior, fallbackReason(priorReason)
	}

	if looksLikeHTML(text) {
		e.logger.Warn("escalation response looks like an html error page; discarding",
			zap.Uint64("user_a", a.ID),
			zap.Uint64("user_b", b.ID),
		)
		return prior, fallbackReason(priorReason)
	}

	aiScore, ok := parseScore(text)
	if !ok {
		e.logger.Warn("no parseable score in escalation response",
			zap.Uint64("user_a", a.ID),
			zap.Uint64("user_b", b.ID),
		)
		return prior, fallbackReason(priorReason)
	}

	reason := parseReason(text)
	if reason == "" {
		reason = priorReason
	}

	final := int(math.Round(priorWeight*float64(prior) + aiWeight*float64(aiScore)))
	final = utils.Clamp(final, scoreFloor, scoreCeil)

	return final, ensureKeyword(sanitizeReason(reason))
}

func buildPrompt(a, b store.User) string {
	return fmt.Sprintf(`You are a consultant fluent in both saju (Four Pillars) reading and MBTI typology.
Assess the romantic compatibility of the two people below.

[Person 1]
Name: %s
MBTI: %s
Saju: %s

[Person 2]
Name: %s
MBTI: %s
Saju: %s

Respond with exactly two lines and nothing else:
Score: <integer between 1 and 100>
Reason: <one-sentence explanation of the compatibility>`,
		a.Name, a.MBTI, a.TraitSummary,
		b.Name, b.MBTI, b.TraitSummary,
	)
}

// parseScore finds the first integer on a score-labelled line, clamped to
// the [1,100] band the prompt requests.
func parseScore(text string) (int, bool) {
	for _, line := range strings.Split(text, "\n") {
		if !scoreLine.MatchString(line) {
			continue
		}
		after := scoreLine.ReplaceAllString(line, "")
		digits := firstInt.FindString(after)
		if digits == "" {
			continue
		}
		score, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		return utils.Clamp(score, 1, 100), true
	}
	return 0, false
}

// parseReason tries the ordered label patterns, then falls back to the
// longest non-label line when the response ignored the requested format.
func parseReason(text string) string {
	for _, pattern := range reasonPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			if reason := strings.TrimSpace(m[1]); len(reason) >= 5 {
				return reason
			}
		}
	}

	best := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || scoreLine.MatchString(line) {
			continue
		}
		if len(line) > len(best) {
			best = line
		}
	}
	if utf8.RuneCountInString(best) >= 10 {
		return best
	}
	return ""
}

func looksLikeHTML(text string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(text))
	return strings.HasPrefix(trimmed, "<!doctype") || strings.Contains(trimmed, "<html")
}

// sanitizeReason strips markup and bounds the reason to reasonMaxRunes,
// cutting at the nearest sentence boundary when one exists.
func sanitizeReason(reason string) string {
	reason = htmlTag.ReplaceAllString(reason, "")
	reason = markupChars.Replace(reason)
	reason = strings.TrimSpace(whitespace.ReplaceAllString(reason, " "))

	runes := []rune(reason)
	if len(runes) <= reasonMaxRunes {
		return reason
	}

	cut := string(runes[:reasonMaxRunes])
	if idx := strings.LastIndexAny(cut, ".!?"); idx > reasonMaxRunes/2 {
		return strings.TrimSpace(cut[:idx+1])
	}
	return strings.TrimSpace(cut) + "…"
}

// ensureKeyword guarantees the topical keyword appears in the reason.
func ensureKeyword(reason string) string {
	if strings.Contains(strings.ToLower(reason), requiredKeyword) {
		return reason
	}
	reason = strings.TrimSpace(reason)
	if reason != "" && !strings.HasSuffix(reason, ".") && !strings.HasSuffix(reason, "!") && !strings.HasSuffix(reason, "?") && !strings.HasSuffix(reason, "…") {
		reason += "."
	}
	if reason == "" {
		return "Their saju charts point in the same direction."
	}
	return reason + " Their saju charts point in the same direction."
}

func fallbackReason(priorReason string) string {
	return ensureKeyword(priorReason)
}
