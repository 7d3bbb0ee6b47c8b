package store

import "time"

// VerifyState is the verification lifecycle of a user session.
// It only moves forward; admins are force-verified out of band.
type VerifyState string

const (
	StateNew      VerifyState = "new"
	StatePending  VerifyState = "pending_verification"
	StateVerified VerifyState = "verified"
)

// Session is the per-user relay state: verification, blocking, and the
// thread binding. ThreadID is nullable and unique across sessions, so the
// database enforces the one-thread-one-user invariant.
type Session struct {
	UserID        int64       `gorm:"primaryKey"`
	State         VerifyState `gorm:"size:32;not null;default:new"`
	Blocked       bool        `gorm:"not null;default:false"`
	BlockCount    int         `gorm:"not null;default:0"`
	ThreadID      *int64      `gorm:"uniqueIndex"`
	CardMessageID int64
	Name          string `gorm:"size:255"`
	Handle        string `gorm:"size:255"`
	FirstSeenAt   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Session) TableName() string { return "sessions" }

// HasThread reports whether the session is bound to a relay thread.
func (s Session) HasThread() bool { return s.ThreadID != nil && *s.ThreadID != 0 }

// LedgerEntry remembers the last relayed text of an inbound message so an
// edit notification can report what changed. Overwritten on every edit;
// SentAt keeps the original send time across overwrites.
type LedgerEntry struct {
	UserID    int64  `gorm:"primaryKey;autoIncrement:false"`
	MessageID int64  `gorm:"primaryKey;autoIncrement:false"`
	Text      string `gorm:"type:text"`
	SentAt    time.Time
}

func (LedgerEntry) TableName() string { return "message_ledger" }

// ConfigEntry is one scalar config value. Rule lists are stored here too,
// serialized as a single JSON value under their list key.
type ConfigEntry struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

func (ConfigEntry) TableName() string { return "config" }
