package store

import (
	"time"
)

// Gender values stored on users. Anything else is treated according to
// the session's unknown-gender policy.
const (
	GenderMale   = "MALE"
	GenderFemale = "FEMALE"
)

// User is a registered participant. The matching core reads users as an
// immutable snapshot; Matched is the only field it ever mutates, and only
// from false to true.
type User struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	Name         string `gorm:"size:64;not null"`
	MBTI         string `gorm:"size:4;not null"`
	TraitSummary string `gorm:"type:text;not null"`
	Gender       string `gorm:"size:16"`
	Matched      bool   `gorm:"not null;default:false;index"`
	CreatedAt    time.Time
}

// Match is a persisted undirected pair. UserLow < UserHigh always holds;
// the composite unique index makes upserts idempotent per pair.
type Match struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	UserLow   uint64 `gorm:"not null;uniqueIndex:idx_match_pair,priority:1"`
	UserHigh  uint64 `gorm:"not null;uniqueIndex:idx_match_pair,priority:2"`
	Score     int    `gorm:"not null"`
	Reason    string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PushSubscription holds one browser push endpoint for a user. A user may
// hold several (one per device).
type PushSubscription struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	UserID    uint64 `gorm:"not null;index"`
	Endpoint  string `gorm:"size:512;not null;uniqueIndex"`
	P256dh    string `gorm:"size:255;not null"`
	Auth      string `gorm:"size:255;not null"`
	CreatedAt time.Time
}
