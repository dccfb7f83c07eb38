package match

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyeonsu-k/saju-matcher/internal/store"
	"github.com/hyeonsu-k/saju-matcher/internal/utils"
)

const (
	// DefaultTopK bounds the expensive phase to the best K candidates per
	// subject instead of the full candidate set.
	DefaultTopK = 3

	defaultStallWindow   = 7 * time.Second
	defaultThrottleEvery = 5
	defaultThrottlePause = 2 * time.Second
)

// Candidate is one directed scoring result produced by a batch run. The
// session controller canonicalizes and deduplicates pairs afterwards.
type Candidate struct {
	A      store.User
	B      store.User
	Score  int
	Reason string
}

// Orchestrator runs the two-phase batch over two user groups: an
// exhaustive rule-based pass with top-K selection, then selective AI
// escalation for the retained candidates.
type Orchestrator struct {
	cache     *PairCache
	escalator *Escalator
	logger    *zap.Logger

	topK          int
	stallWindow   time.Duration
	throttleEvery int
	throttlePause time.Duration
	onStall       func()

	now func() time.Time
}

// OrchestratorOption tweaks batch behavior.
type OrchestratorOption func(*Orchestrator)

func WithTopK(k int) OrchestratorOption {
	return func(o *Orchestrator) {
		if k > 0 {
			o.topK = k
		}
	}
}

func WithStallWindow(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.stallWindow = d
		}
	}
}

func WithThrottle(every int, pause time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if every > 0 {
			o.throttleEvery = every
		}
		if pause >= 0 {
			o.throttlePause = pause
		}
	}
}

// WithOnStall registers a callback invoked when phase 1 aborts early due
// to the stall detector.
func WithOnStall(fn func()) OrchestratorOption {
	return func(o *Orchestrator) { o.onStall = fn }
}

func NewOrchestrator(cache *PairCache, escalator *Escalator, log *zap.Logger, opts ...OrchestratorOption) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		cache:         cache,
		escalator:     escalator,
		logger:        log,
		topK:          DefaultTopK,
		stallWindow:   defaultStallWindow,
		throttleEvery: defaultThrottleEvery,
		throttlePause: defaultThrottlePause,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type retained struct {
	subject    store.User
	candidates []Candidate
}

// RunBatch scores every groupA member against groupB and returns the
// escalated results for each member's top-K candidates. The deadline is
// checked before each member in both phases; on expiry the accumulated
// partial results are returned, never an error.
func (o *Orchestrator) RunBatch(ctx context.Context, groupA, groupB []store.User, deadline time.Time) []Candidate {
	threshold := DefaultEscalationThreshold
	if o.escalator != nil {
		threshold = o.escalator.Threshold()
	}

	// Phase 1: cheap, exhaustive.
	kept := make([]retained, 0, len(groupA))
	scored := 0
	lastProgress := o.now()

	for _, subject := range groupA {
		if !o.now().Before(deadline) {
			o.logger.Warn("batch deadline reached during rule scoring",
				zap.Int("subjects_done", len(kept)),
				zap.Int("subjects_total", len(groupA)),
			)
			break
		}
		if o.now().Sub(lastProgress) > o.stallWindow {
			o.logger.Warn("rule scoring stalled; aborting phase",
				zap.Duration("stall_window", o.stallWindow),
			)
			if o.onStall != nil {
				o.onStall()
			}
			break
		}

		candidates := make([]Candidate, 0, len(groupB))
		for _, other := range groupB {
			if other.ID == subject.ID {
				continue
			}
			score, reason := Score(subject, other)
			scored++
			if score < threshold {
				continue
			}
			candidates = append(candidates, Candidate{A: subject, B: other, Score: score, Reason: reason})
		}

		// Stable sort keeps groupB enumeration order for ties, so one
		// run's selection is deterministic.
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Score > candidates[j].Score
		})
		if len(candidates) > o.topK {
			candidates = candidates[:o.topK]
		}

		kept = append(kept, retained{subject: subject, candidates: candidates})
		lastProgress = o.now()
	}

	retainedTotal := 0
	for _, r := range kept {
		retainedTotal += len(r.candidates)
	}
	o.logger.Info("rule scoring phase complete",
		zap.Int("pairs_scored", scored),
		zap.Int("candidates_retained", retainedTotal),
		zap.Int("top_k", o.topK),
	)

	// Phase 2: expensive, selective.
	results := make([]Candidate, 0, retainedTotal)
	escalations := 0

	for _, r := range kept {
		if !o.now().Before(deadline) {
			o.logger.Warn("batch deadline reached during escalation",
				zap.Int("results_accumulated", len(results)),
			)
			break
		}

		for _, candidate := range r.candidates {
			if cached, ok := o.cached(candidate); ok {
				results = append(results, cached)
				continue
			}

			score, reason := candidate.Score, candidate.Reason
			if o.escalator != nil {
				score, reason = o.escalator.Escalate(ctx, candidate.A, candidate.B, candidate.Score, candidate.Reason)
			}
			candidate.Score = score
			candidate.Reason = reason
			results = append(results, candidate)

			if o.cache != nil {
				o.cache.Put(candidate.A.ID, candidate.B.ID, score, reason)
			}

			// Deliberate throttle toward the AI service, not backoff.
			// Rule-only runs make no external calls and never pause.
			if o.escalator != nil {
				escalations++
				if escalations%o.throttleEvery == 0 {
					if err := utils.WaitFor(ctx, o.throttlePause); err != nil {
						o.logger.Warn("escalation pause interrupted", zap.Error(err))
					}
				}
			}
		}
	}

	if o.cache != nil {
		o.cache.Flush()
	}

	o.logger.Info("escalation phase complete",
		zap.Int("escalations", escalations),
		zap.Int("results", len(results)),
	)

	return results
}

func (o *Orchestrator) cached(candidate Candidate) (Candidate, bool) {
	if o.cache == nil {
		return Candidate{}, false
	}
	entry, ok := o.cache.Get(candidate.A.ID, candidate.B.ID)
	if !ok {
		return Candidate{}, false
	}
	candidate.Score = entry.Score
	candidate.Reason = entry.Reason
	return candidate, true
}
