package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repo exposes the storage operations the matching core depends on.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// FetchUsers returns the users with the given matched flag.
func (r *Repo) FetchUsers(ctx context.Context, matched bool) ([]User, error) {
	var users []User
	if err := r.db.WithContext(ctx).Where("matched = ?", matched).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("fetch users (matched=%t): %w", matched, err)
	}
	return users, nil
}

// UpsertMatch stores the score and reason for a canonical pair. The pair
// must already be in (low, high) order. Re-running with the same pair
// refreshes the row instead of duplicating it.
func (r *Repo) UpsertMatch(ctx context.Context, low, high uint64, score int, reason string) error {
	if low >= high {
		return fmt.Errorf("match pair (%d, %d) is not canonical", low, high)
	}

	match := Match{UserLow: low, UserHigh: high, Score: score, Reason: reason}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_low"}, {Name: "user_high"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "reason", "updated_at"}),
	}).Create(&match).Error
	if err != nil {
		return fmt.Errorf("upsert match (%d, %d): %w", low, high, err)
	}
	return nil
}

// SetMatched flips a user's matched flag to true. Never reverted.
func (r *Repo) SetMatched(ctx context.Context, userID uint64) error {
	err := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("matched", true).Error
	if err != nil {
		return fmt.Errorf("set matched for user %d: %w", userID, err)
	}
	return nil
}

// CreateUser registers a new user. Used by the seed command and tests.
func (r *Repo) CreateUser(ctx context.Context, user *User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user %q: %w", user.Name, err)
	}
	return nil
}

// Matches returns all persisted matches ordered by score descending.
func (r *Repo) Matches(ctx context.Context) ([]Match, error) {
	var matches []Match
	if err := r.db.WithContext(ctx).Order("score desc, created_at desc").Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return matches, nil
}

// Subscriptions returns the push subscriptions registered for a user.
func (r *Repo) Subscriptions(ctx context.Context, userID uint64) ([]PushSubscription, error) {
	var subs []PushSubscription
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("subscriptions for user %d: %w", userID, err)
	}
	return subs, nil
}

// DeleteSubscription removes a dead push endpoint.
func (r *Repo) DeleteSubscription(ctx context.Context, id uint64) error {
	if err := r.db.WithContext(ctx).Delete(&PushSubscription{}, id).Error; err != nil {
		return fmt.Errorf("delete subscription %d: %w", id, err)
	}
	return nil
}
