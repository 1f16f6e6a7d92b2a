// Package store provides storage backends for PlatformAI.
//
// It records exchange receipts (metadata only, never message text) and the
// IDs of inbound channel messages already handled. Backends: in-memory,
// SQLite and PostgreSQL.
package store

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/PlatformAI/internal/models"
)

// DefaultMemoryCapacity bounds the receipts kept by InMemoryStore.
const DefaultMemoryCapacity = 1000

// DSN types returned by DetectDSNType.
const (
	DSNTypePostgres = "postgres"
	DSNTypeSQLite   = "sqlite"
)

// Store is the persistence surface the relay depends on.
type Store interface {
	ReceiptRepo
	DedupRepo
	Close() error
}

// ReceiptRepo stores exchange receipts.
type ReceiptRepo interface {
	AddReceipt(r models.Receipt) error
	// GetReceipts returns receipts newest first. A limit of zero or less returns all.
	GetReceipts(limit int) ([]models.Receipt, error)
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN    string
	Driver string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithPostgresDSN selects the PostgreSQL backend.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = DSNTypePostgres
	}
}

// WithSQLiteDSN selects the SQLite backend. The DSN is a database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = DSNTypeSQLite
	}
}

// DetectDSNType reports whether dsn addresses PostgreSQL or an SQLite file.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") || strings.Contains(d, "host=") {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}

// New opens the backend selected by opts. Without a DSN it returns an InMemoryStore.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Debug("store.New: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DetectDSNType(cfg.DSN)
	}
	switch driver {
	case DSNTypePostgres:
		return NewPostgresStore(opts...)
	case DSNTypeSQLite:
		return NewSQLiteStore(opts...)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}

// InMemoryStore keeps the most recent receipts in memory.
type InMemoryStore struct {
	mu       sync.Mutex
	receipts []models.Receipt
	capacity int
	inbound  map[string]*time.Time
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{capacity: DefaultMemoryCapacity, inbound: make(map[string]*time.Time)}
}

func (s *InMemoryStore) AddReceipt(r models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	if over := len(s.receipts) - s.capacity; over > 0 {
		s.receipts = append([]models.Receipt(nil), s.receipts[over:]...)
	}
	return nil
}

func (s *InMemoryStore) GetReceipts(limit int) ([]models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.receipts)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.Receipt, 0, n)
	for i := len(s.receipts) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.receipts[i])
	}
	return out, nil
}

func (s *InMemoryStore) IsDuplicate(messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inbound[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inbound[messageID]; ok {
		return false, nil
	}
	s.inbound[messageID] = nil
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.inbound[messageID] = &now
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
