package stores

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig configures the persistent active set store.
type BadgerConfig struct {
	Path           string
	InMemory       bool
	SyncWrites     bool
	GCDiscardRatio float64
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerActiveSetStore keeps active set parts in badger so a restart does not
// force every tenant through a cold rebuild. Keys are "<tenantId>/<key>".
type BadgerActiveSetStore struct {
	db      *badger.DB
	ratio   float64
	tenants map[string]struct{}
	mu      sync.RWMutex
	logger  *logging.ChanneledLogger
}

// OpenBadgerActiveSetStore opens or creates the badger database.
func OpenBadgerActiveSetStore(cfg BadgerConfig, logger *logging.ChanneledLogger) (*BadgerActiveSetStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger.Cache()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}

	ratio := cfg.GCDiscardRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}

	if logger != nil {
		logger.Cache().Info("Badger active set store opened", "path", cfg.Path, "inMemory", cfg.InMemory)
	}

	return &BadgerActiveSetStore{
		db:      db,
		ratio:   ratio,
		tenants: make(map[string]struct{}),
		logger:  logger,
	}, nil
}

func badgerKey(tenantID, key string) []byte {
	return []byte(tenantID + "/" + key)
}

// InitializeTenant records the tenant; badger needs no per-tenant setup.
func (s *BadgerActiveSetStore) InitializeTenant(tenantID string) {
	s.mu.Lock()
	s.tenants[tenantID] = struct{}{}
	s.mu.Unlock()
}

// TenantIDs lists initialized tenants.
func (s *BadgerActiveSetStore) TenantIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.tenants))
	for id := range s.tenants {
		ids = append(ids, id)
	}
	return ids
}

// GetActiveSetPart reads one part.
func (s *BadgerActiveSetStore) GetActiveSetPart(tenantID, key string) ([]byte, bool, error) {
	start := time.Now()
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(tenantID, key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		if s.logger != nil {
			s.logger.LogCacheOperation("get", key, false, time.Since(start), tenantID)
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("badger get %s: %w", key, err)
	}
	if s.logger != nil {
		s.logger.LogCacheOperation("get", key, true, time.Since(start), tenantID)
	}
	return value, true, nil
}

// SetActiveSetPart writes one part without a TTL.
func (s *BadgerActiveSetStore) SetActiveSetPart(tenantID, key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(tenantID, key), value)
	})
	if err != nil {
		return fmt.Errorf("badger set %s: %w", key, err)
	}
	return nil
}

// InvalidateActiveSet removes every part stored for the tenant.
func (s *BadgerActiveSetStore) InvalidateActiveSet(tenantID string) error {
	prefix := []byte(tenantID + "/")
	err := s.db.DropPrefix(prefix)
	if err != nil {
		return fmt.Errorf("badger drop prefix %s: %w", tenantID, err)
	}
	return nil
}

// RunGC reclaims value log space until badger reports nothing to rewrite.
func (s *BadgerActiveSetStore) RunGC() (int, error) {
	rewrites := 0
	for {
		err := s.db.RunValueLogGC(s.ratio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return rewrites, nil
		}
		if err != nil {
			return rewrites, fmt.Errorf("badger value log GC: %w", err)
		}
		rewrites++
	}
}

// Close closes the database.
func (s *BadgerActiveSetStore) Close() error {
	return s.db.Close()
}
