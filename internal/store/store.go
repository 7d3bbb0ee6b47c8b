package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the durable state boundary: sessions, the message ledger and
// scalar config. All operations are point lookups/upserts by primary key
// except UserByThread, the single reverse lookup.
type Store struct {
	gdb *gorm.DB
}

func New(gdb *gorm.DB) *Store {
	return &Store{gdb: gdb}
}

func (s *Store) Ensure(ctx context.Context) error {
	return s.gdb.WithContext(ctx).AutoMigrate(
		&Session{},
		&LedgerEntry{},
		&ConfigEntry{},
	)
}

func (s *Store) GetSession(ctx context.Context, userID int64) (Session, bool, error) {
	var sess Session
	err := s.gdb.WithContext(ctx).First(&sess, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("get session %d: %w", userID, err)
	}
	return sess, true, nil
}

// EnsureSession returns the session for the user, creating it lazily on
// first contact with default state.
func (s *Store) EnsureSession(ctx context.Context, userID int64, name, handle string) (Session, error) {
	sess, ok, err := s.GetSession(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	if ok {
		return sess, nil
	}
	sess = Session{
		UserID:      userID,
		State:       StateNew,
		Name:        name,
		Handle:      handle,
		FirstSeenAt: time.Now().UTC(),
	}
	if err := s.gdb.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&sess).Error; err != nil {
		return Session{}, fmt.Errorf("create session %d: %w", userID, err)
	}
	// A concurrent first contact may have won the insert; read back.
	sess, _, err = s.GetSession(ctx, userID)
	return sess, err
}

func (s *Store) PutSession(ctx context.Context, sess Session) error {
	if err := s.gdb.WithContext(ctx).Save(&sess).Error; err != nil {
		return fmt.Errorf("put session %d: %w", sess.UserID, err)
	}
	return nil
}

// BindThread persists the thread binding. The unique index on thread_id
// rejects a second binding for the same thread, so a creation race resolves
// as first writer wins.
func (s *Store) BindThread(ctx context.Context, userID, threadID int64) error {
	err := s.gdb.WithContext(ctx).Model(&Session{}).
		Where("user_id = ?", userID).
		Update("thread_id", threadID).Error
	if err != nil {
		return fmt.Errorf("bind thread %d to user %d: %w", threadID, userID, err)
	}
	return nil
}

func (s *Store) ClearThread(ctx context.Context, userID int64) error {
	err := s.gdb.WithContext(ctx).Model(&Session{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"thread_id": nil, "card_message_id": 0}).Error
	if err != nil {
		return fmt.Errorf("clear thread for user %d: %w", userID, err)
	}
	return nil
}

// UserByThread resolves a thread id back to its bound session.
func (s *Store) UserByThread(ctx context.Context, threadID int64) (Session, bool, error) {
	var sess Session
	err := s.gdb.WithContext(ctx).First(&sess, "thread_id = ?", threadID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("lookup thread %d: %w", threadID, err)
	}
	return sess, true, nil
}

func (s *Store) GetLedger(ctx context.Context, userID, messageID int64) (LedgerEntry, bool, error) {
	var entry LedgerEntry
	err := s.gdb.WithContext(ctx).
		First(&entry, "user_id = ? AND message_id = ?", userID, messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return LedgerEntry{}, false, nil
	}
	if err != nil {
		return LedgerEntry{}, false, fmt.Errorf("get ledger %d/%d: %w", userID, messageID, err)
	}
	return entry, true, nil
}

func (s *Store) PutLedger(ctx context.Context, entry LedgerEntry) error {
	err := s.gdb.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"text", "sent_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("put ledger %d/%d: %w", entry.UserID, entry.MessageID, err)
	}
	return nil
}

func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var entry ConfigEntry
	err := s.gdb.WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config %s: %w", key, err)
	}
	return entry.Value, true, nil
}

func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	entry := ConfigEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.gdb.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}
