// Package corpus persists the test cases a run produced in a badger
// database. Test cases are deduplicated by a fingerprint of their
// differential rendering, so two paths that exercise the same behaviour
// under both revisions are stored once.
package corpus

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/speakeasy-api/diffvm/differ"
	"github.com/speakeasy-api/diffvm/pkg/ktest"
	"github.com/speakeasy-api/diffvm/pkg/logging"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("corpus: test case not found")

const (
	casePrefix        = "tc/"
	fingerprintPrefix = "fp/"
)

// TestCase is one recorded path: the seed that replays it and what each
// revision did.
type TestCase struct {
	ID        string
	StateID   uint32
	Created   time.Time
	Divergent bool
	Seed      *ktest.File
	Diff      *differ.Differentiator
}

// Fingerprint identifies the behaviour of tc. Test cases with equal
// renderings have equal fingerprints.
func (tc *TestCase) Fingerprint() uint64 {
	if tc.Diff == nil {
		return 0
	}
	return xxhash.Sum64String(tc.Diff.String())
}

type record struct {
	ID          string                 `yaml:"id"`
	StateID     uint32                 `yaml:"state_id"`
	Created     time.Time              `yaml:"created"`
	Divergent   bool                   `yaml:"divergent"`
	Fingerprint string                 `yaml:"fingerprint"`
	Seed        string                 `yaml:"seed,omitempty"`
	Diff        *differ.Differentiator `yaml:"diff,omitempty"`
}

// Config configures the store.
type Config struct {
	// Path is the database directory. Required unless InMemory is set.
	Path     string
	InMemory bool

	SyncWrites bool

	// Logger receives badger's internal messages. Nil silences them.
	Logger logging.Logger
}

// DefaultConfig returns the configuration of a persistent store at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryConfig returns the configuration of a store that lives as long as
// the process.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts a Logger to badger's logging interface.
type badgerLogger struct {
	logger logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// Store is a corpus of test cases.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// Open opens or creates the store described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("corpus: path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create corpus directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores tc unless a test case with the same fingerprint is already
// present, and reports whether it was stored. An empty ID is replaced by a
// fresh one; a zero Created time by the current time.
func (s *Store) Put(ctx context.Context, tc *TestCase) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}
	if tc.Created.IsZero() {
		tc.Created = s.now().UTC()
	}
	fp := strconv.FormatUint(tc.Fingerprint(), 16)

	rec := record{
		ID:          tc.ID,
		StateID:     tc.StateID,
		Created:     tc.Created,
		Divergent:   tc.Divergent,
		Fingerprint: fp,
		Diff:        tc.Diff,
	}
	if tc.Seed != nil {
		data, err := tc.Seed.MarshalBinary()
		if err != nil {
			return false, fmt.Errorf("encode seed: %w", err)
		}
		rec.Seed = base64.StdEncoding.EncodeToString(data)
	}
	value, err := yaml.Marshal(&rec)
	if err != nil {
		return false, fmt.Errorf("encode test case %s: %w", tc.ID, err)
	}

	stored := false
	err = s.db.Update(func(txn *badger.Txn) error {
		fpKey := []byte(fingerprintPrefix + fp)
		_, err := txn.Get(fpKey)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(fpKey, []byte(tc.ID)); err != nil {
			return err
		}
		if err := txn.Set([]byte(casePrefix+tc.ID), value); err != nil {
			return err
		}
		stored = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store test case %s: %w", tc.ID, err)
	}
	return stored, nil
}

// Get returns the test case with the given id.
func (s *Store) Get(id string) (*TestCase, error) {
	var tc *TestCase
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(casePrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			tc, err = decode(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return tc, nil
}

// List returns every stored test case ordered by creation time, then id.
func (s *Store) List() ([]*TestCase, error) {
	var out []*TestCase
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(casePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				tc, err := decode(val)
				if err != nil {
					return err
				}
				out = append(out, tc)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortCases(out)
	return out, nil
}

func decode(val []byte) (*TestCase, error) {
	var rec record
	if err := yaml.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("decode test case: %w", err)
	}
	tc := &TestCase{
		ID:        rec.ID,
		StateID:   rec.StateID,
		Created:   rec.Created,
		Divergent: rec.Divergent,
		Diff:      rec.Diff,
	}
	if rec.Seed != "" {
		data, err := base64.StdEncoding.DecodeString(rec.Seed)
		if err != nil {
			return nil, fmt.Errorf("decode seed of %s: %w", rec.ID, err)
		}
		if tc.Seed, err = ktest.Unmarshal(data); err != nil {
			return nil, fmt.Errorf("decode seed of %s: %w", rec.ID, err)
		}
	}
	return tc, nil
}

func sortCases(cases []*TestCase) {
	sort.Slice(cases, func(i, j int) bool {
		if !cases[i].Created.Equal(cases[j].Created) {
			return cases[i].Created.Before(cases[j].Created)
		}
		return cases[i].ID < cases[j].ID
	})
}
