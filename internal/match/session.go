package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyeonsu-k/saju-matcher/internal/store"
)

// Terminal validation errors surfaced before any matching work begins.
var (
	ErrNoNewUsers     = errors.New("no new users to match")
	ErrNotEnoughUsers = errors.New("at least two users are required to form a pair")
)

const (
	// DefaultAcceptThreshold is the minimum final score a pair needs to be
	// persisted as a match.
	DefaultAcceptThreshold = 70

	// DefaultSessionDeadline bounds a whole session across all dispatches.
	DefaultSessionDeadline = 600 * time.Second

	// DeadlineImmediate configures a session whose deadline has already
	// passed: nothing is dispatched and the result reports TimedOut.
	DeadlineImmediate time.Duration = -1
)

// UnknownGenderPolicy decides which bucket a user with a missing or
// unrecognized gender value falls into. The legacy behavior silently
// bucketed them as male; Skip drops them from the run instead.
type UnknownGenderPolicy string

const (
	UnknownAsMale   UnknownGenderPolicy = "male"
	UnknownAsFemale UnknownGenderPolicy = "female"
	UnknownSkip     UnknownGenderPolicy = "skip"
)

// Storage is the persistence collaborator the session depends on.
type Storage interface {
	FetchUsers(ctx context.Context, matched bool) ([]store.User, error)
	UpsertMatch(ctx context.Context, low, high uint64, score int, reason string) error
	SetMatched(ctx context.Context, userID uint64) error
}

// Notifier delivers best-effort match notifications. A false return means
// delivery failed; the session never acts on it beyond logging.
type Notifier interface {
	MatchReady(ctx context.Context, userID uint64) bool
}

// SessionConfig carries the tunable session parameters.
type SessionConfig struct {
	AcceptThreshold int
	// Deadline bounds the whole session. Zero selects
	// DefaultSessionDeadline; any negative value (DeadlineImmediate)
	// expires the session before the first dispatch.
	Deadline      time.Duration
	UnknownGender UnknownGenderPolicy
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.AcceptThreshold <= 0 {
		c.AcceptThreshold = DefaultAcceptThreshold
	}
	if c.Deadline < 0 {
		c.Deadline = 0
	} else if c.Deadline == 0 {
		c.Deadline = DefaultSessionDeadline
	}
	switch c.UnknownGender {
	case UnknownAsMale, UnknownAsFemale, UnknownSkip:
	default:
		c.UnknownGender = UnknownAsMale
	}
	return c
}

// AcceptedMatch is a canonical pair the session persisted.
type AcceptedMatch struct {
	Low    uint64
	High   uint64
	Score  int
	Reason string
}

// Result is the outcome of one matching session. TimedOut marks a
// partial-but-valid run: whatever was accumulated before the deadline is
// already persisted.
type Result struct {
	Accepted []AcceptedMatch
	TimedOut bool
	Errs     []error
}

// Session drives one complete matching run across the stored population.
type Session struct {
	storage  Storage
	notifier Notifier
	orch     *Orchestrator
	cfg      SessionConfig
	logger   *zap.Logger

	now func() time.Time
}

func NewSession(storage Storage, notifier Notifier, orch *Orchestrator, cfg SessionConfig, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		storage:  storage,
		notifier: notifier,
		orch:     orch,
		cfg:      cfg.withDefaults(),
		logger:   log,
		now:      time.Now,
	}
}

// Run executes the session state machine: fetch, validate, partition,
// dispatch, normalize, persist, flag and notify. Validation failures are
// terminal errors; a deadline expiry is a partial result, not an error.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	newUsers, err := s.storage.FetchUsers(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("fetch new users: %w", err)
	}
	existingUsers, err := s.storage.FetchUsers(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("fetch existing users: %w", err)
	}

	if len(newUsers) == 0 {
		return nil, ErrNoNewUsers
	}
	if len(existingUsers) == 0 && len(newUsers) < 2 {
		return nil, ErrNotEnoughUsers
	}

	s.logger.Info("matching session started",
		zap.Int("new_users", len(newUsers)),
		zap.Int("existing_users", len(existingUsers)),
	)

	newMale, newFemale := s.partition(newUsers)
	existingMale, existingFemale := s.partition(existingUsers)

	s.logger.Info("population partitioned",
		zap.Int("new_male", len(newMale)),
		zap.Int("new_female", len(newFemale)),
		zap.Int("existing_male", len(existingMale)),
		zap.Int("existing_female", len(existingFemale)),
	)

	deadline := s.now().Add(s.cfg.Deadline)

	dispatches := []struct {
		name   string
		groupA []store.User
		groupB []store.User
	}{
		{"new_male_x_existing_female", newMale, existingFemale},
		{"new_female_x_existing_male", newFemale, existingMale},
		{"new_male_x_new_female", newMale, newFemale},
	}

	result := &Result{}
	var candidates []Candidate
	participants := map[uint64]store.User{}

	for _, dispatch := range dispatches {
		if !s.now().Before(deadline) {
			s.logger.Warn("session deadline reached; skipping remaining dispatches",
				zap.String("next_dispatch", dispatch.name),
			)
			result.TimedOut = true
			break
		}

		s.logger.Info("dispatching batch",
			zap.String("dispatch", dispatch.name),
			zap.Int("group_a", len(dispatch.groupA)),
			zap.Int("group_b", len(dispatch.groupB)),
		)

		batch := s.orch.RunBatch(ctx, dispatch.groupA, dispatch.groupB, deadline)
		candidates = append(candidates, batch...)

		for _, user := range s.newParticipants(dispatch.groupA, dispatch.groupB, newUsers) {
			participants[user.ID] = user
		}
	}
	if !s.now().Before(deadline) {
		result.TimedOut = true
	}

	result.Accepted = s.normalize(candidates)

	s.logger.Info("candidates normalized",
		zap.Int("raw", len(candidates)),
		zap.Int("accepted", len(result.Accepted)),
		zap.Int("threshold", s.cfg.AcceptThreshold),
	)

	// Persistence is best-effort per pair so one bad row cannot sink the
	// whole batch.
	for _, accepted := range result.Accepted {
		if err := s.storage.UpsertMatch(ctx, accepted.Low, accepted.High, accepted.Score, accepted.Reason); err != nil {
			s.logger.Warn("persisting match failed",
				zap.Uint64("user_low", accepted.Low),
				zap.Uint64("user_high", accepted.High),
				zap.Error(err),
			)
			result.Errs = append(result.Errs, err)
		}
	}

	s.flagAndNotify(ctx, participants, result)

	s.logger.Info("matching session finished",
		zap.Int("accepted", len(result.Accepted)),
		zap.Bool("timed_out", result.TimedOut),
		zap.Int("errors", len(result.Errs)),
	)

	return result, nil
}

// partition splits users into the two gender buckets, routing unknown
// values according to the configured policy.
func (s *Session) partition(users []store.User) (male, female []store.User) {
	for _, user := range users {
		switch user.Gender {
		case store.GenderMale:
			male = append(male, user)
		case store.GenderFemale:
			female = append(female, user)
		default:
			switch s.cfg.UnknownGender {
			case UnknownAsFemale:
				female = append(female, user)
			case UnknownSkip:
				s.logger.Warn("skipping user with unrecognized gender",
					zap.Uint64("user_id", user.ID),
					zap.String("gender", user.Gender),
				)
			default:
				male = append(male, user)
			}
		}
	}
	return male, female
}

// newParticipants returns the members of the dispatched groups that
// belong to the new-user population.
func (s *Session) newParticipants(groupA, groupB, newUsers []store.User) []store.User {
	isNew := make(map[uint64]bool, len(newUsers))
	for _, user := range newUsers {
		isNew[user.ID] = true
	}

	var out []store.User
	for _, user := range append(append([]store.User{}, groupA...), groupB...) {
		if isNew[user.ID] {
			out = append(out, user)
		}
	}
	return out
}

// normalize canonicalizes pairs to (low, high), filters by the acceptance
// threshold and deduplicates keeping the first occurrence.
func (s *Session) normalize(candidates []Candidate) []AcceptedMatch {
	seen := map[PairKey]bool{}
	accepted := make([]AcceptedMatch, 0, len(candidates))

	for _, candidate := range candidates {
		if candidate.Score < s.cfg.AcceptThreshold {
			continue
		}
		key := canonPair(candidate.A.ID, candidate.B.ID)
		if seen[key] {
			continue
		}
		seen[key] = true
		accepted = append(accepted, AcceptedMatch{
			Low:    key.Low,
			High:   key.High,
			Score:  candidate.Score,
			Reason: candidate.Reason,
		})
	}
	return accepted
}

// flagAndNotify flips the matched flag for every new user that took part
// in a dispatch, then notifies them. Notification failures never roll
// back the flag or the persisted matches.
func (s *Session) flagAndNotify(ctx context.Context, participants map[uint64]store.User, result *Result) {
	for id := range participants {
		if err := s.storage.SetMatched(ctx, id); err != nil {
			s.logger.Warn("flagging user as matched failed",
				zap.Uint64("user_id", id),
				zap.Error(err),
			)
			result.Errs = append(result.Errs, err)
			continue
		}

		if s.notifier == nil {
			continue
		}
		if ok := s.notifier.MatchReady(ctx, id); !ok {
			s.logger.Debug("match notification not delivered", zap.Uint64("user_id", id))
		}
	}
}
