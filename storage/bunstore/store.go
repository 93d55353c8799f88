// Package bunstore persists client sessions in a SQL table through bun.
package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	authclient "github.com/goliatone/go-authclient"
)

// keyNamespace derives stable record ids from storage keys.
var keyNamespace = uuid.MustParse("6f1c2a64-8f43-4c55-9d4c-2b1d8e5f0a77")

// Record is the persisted form of a session.
type Record struct {
	bun.BaseModel `bun:"table:auth_sessions"`

	ID         uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	StorageKey string    `bun:"storage_key,notnull" json:"storage_key"`
	UserID     string    `bun:"user_id" json:"user_id,omitempty"`
	Payload    string    `bun:"payload,notnull" json:"-"`
	ExpiresAt  time.Time `bun:"expires_at" json:"expires_at"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// RecordID returns the id a storage key is stored under.
func RecordID(key string) uuid.UUID {
	return uuid.NewSHA1(keyNamespace, []byte(key))
}

// Store implements authclient.Storage.
type Store struct {
	db   *bun.DB
	repo repository.Repository[*Record]
	now  func() time.Time
}

var _ authclient.Storage = (*Store)(nil)

// New returns a Store backed by db. Call Migrate once to create the table.
func New(db *bun.DB) *Store {
	handlers := repository.ModelHandlers[*Record]{
		NewRecord: func() *Record {
			return &Record{}
		},
		GetID: func(record *Record) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *Record, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "storage_key"
		},
	}

	return &Store{
		db:   db,
		repo: repository.NewRepository(db, handlers),
		now:  time.Now,
	}
}

// Migrate creates the sessions table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*Record)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bunstore: create table: %w", err)
	}
	return nil
}

// Load implements authclient.Storage.
func (s *Store) Load(ctx context.Context, key string) (*authclient.Session, error) {
	record, err := s.repo.GetByID(ctx, RecordID(key).String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("bunstore: load %s: %w", key, err)
	}
	return authclient.DecodeSession([]byte(record.Payload))
}

// Save implements authclient.Storage.
func (s *Store) Save(ctx context.Context, key string, session *authclient.Session) error {
	if session == nil {
		return s.Delete(ctx, key)
	}

	payload, err := authclient.EncodeSession(session)
	if err != nil {
		return fmt.Errorf("bunstore: encode session: %w", err)
	}

	now := s.now()
	record := &Record{
		ID:         RecordID(key),
		StorageKey: key,
		UserID:     session.UserID(),
		Payload:    string(payload),
		ExpiresAt:  session.ExpiresAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err = s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("user_id = EXCLUDED.user_id").
		Set("payload = EXCLUDED.payload").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bunstore: save %s: %w", key, err)
	}
	return nil
}

// Delete implements authclient.Storage. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*Record)(nil)).
		Where("id = ?", RecordID(key)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bunstore: delete %s: %w", key, err)
	}
	return nil
}

// PurgeExpired removes sessions whose access token expired before cutoff.
// Refresh tokens outlive access tokens, so callers usually pass a cutoff
// well in the past.
func (s *Store) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*Record)(nil)).
		Where("expires_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("bunstore: purge: %w", err)
	}
	return res.RowsAffected()
}
