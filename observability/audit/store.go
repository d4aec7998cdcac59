// Package audit keeps the append-only, hash-chained compliance log of every
// committed ledger operation.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDSN is returned for DSNs that are neither sqlite nor postgres.
	ErrUnsupportedDSN = errors.New("audit: unsupported dsn")
	// ErrChainBroken reports a record whose links or digest do not verify.
	ErrChainBroken = errors.New("audit: hash chain broken")
)

const verifyBatch = 500

// Entry is the caller-supplied content of a new record.
type Entry struct {
	Entity string
	Kind   string
	Caller string
	State  []byte
	At     uint64
}

// Store appends records to the chain and verifies it. Appends are
// serialized so sequence numbers and digests stay gap free.
type Store struct {
	db  *gorm.DB
	hub *Hub

	mu       sync.Mutex
	headSeq  uint64
	headHash string
}

// Open connects to dsn. sqlite://<path> selects the embedded driver;
// postgres:// and postgresql:// URLs select Postgres.
func Open(dsn string) (*Store, error) {
	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	return NewStore(db)
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	trimmed := strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(trimmed, "sqlite://"):
		path := strings.TrimPrefix(trimmed, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("%w: empty sqlite path", ErrUnsupportedDSN)
		}
		return sqlite.Open(path), nil
	case strings.HasPrefix(trimmed, "postgres://"), strings.HasPrefix(trimmed, "postgresql://"):
		return postgres.Open(trimmed), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDSN, dsn)
	}
}

// NewStore migrates db and loads the current chain head.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: nil database")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	s := &Store{db: db, hub: NewHub()}
	var head Record
	err := db.Order("seq DESC").Limit(1).Find(&head).Error
	if err != nil {
		return nil, fmt.Errorf("audit: load head: %w", err)
	}
	s.headSeq = head.Seq
	s.headHash = head.Digest
	return s, nil
}

// Hub returns the live subscriber hub fed by Append.
func (s *Store) Hub() *Hub { return s.hub }

// Head returns the last sequence number and digest.
func (s *Store) Head() (uint64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headSeq, s.headHash
}

// Append links e to the chain head and persists it.
func (s *Store) Append(ctx context.Context, e Entry) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := string(e.State)
	if state == "" {
		state = "null"
	}
	rec := Record{
		Seq:        s.headSeq + 1,
		Entity:     e.Entity,
		Kind:       e.Kind,
		Caller:     e.Caller,
		State:      state,
		At:         e.At,
		PrevDigest: s.headHash,
	}
	rec.Digest = rec.expectedDigest()
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return Record{}, fmt.Errorf("audit: append %s: %w", e.Kind, err)
	}
	s.headSeq = rec.Seq
	s.headHash = rec.Digest
	s.hub.Publish(rec)
	return rec, nil
}

// Since returns up to limit records with Seq greater than after, in order.
func (s *Store) Since(ctx context.Context, after uint64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Record
	err := s.db.WithContext(ctx).Where("seq > ?", after).Order("seq ASC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	return out, nil
}

// Verify walks the full chain checking sequence continuity, links and
// digests.
func (s *Store) Verify(ctx context.Context) error {
	var (
		expectSeq uint64 = 1
		prev      string
		batch     []Record
	)
	result := s.db.WithContext(ctx).FindInBatches(&batch, verifyBatch, func(tx *gorm.DB, _ int) error {
		for _, rec := range batch {
			if rec.Seq != expectSeq {
				return fmt.Errorf("%w: expected seq %d, found %d", ErrChainBroken, expectSeq, rec.Seq)
			}
			if rec.PrevDigest != prev {
				return fmt.Errorf("%w: seq %d does not link to its predecessor", ErrChainBroken, rec.Seq)
			}
			if rec.expectedDigest() != rec.Digest {
				return fmt.Errorf("%w: seq %d digest mismatch", ErrChainBroken, rec.Seq)
			}
			prev = rec.Digest
			expectSeq++
		}
		return nil
	})
	return result.Error
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.hub.Close()
	return sqlDB.Close()
}
