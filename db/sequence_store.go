package db

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/maxpert/bitseq/bitrev"
	"github.com/maxpert/bitseq/encoding"
	"github.com/maxpert/bitseq/sequence"
	"github.com/rs/zerolog/log"
)

var (
	// ErrSequenceNotFound is returned when advancing a sequence that was never created.
	ErrSequenceNotFound = errors.New("sequence not found")
	// ErrSequenceExists is returned when re-creating a sequence with a different definition.
	ErrSequenceExists = errors.New("sequence already exists with a different definition")
	// ErrSequenceExhausted is returned once the raw counter leaves the reversible domain.
	ErrSequenceExhausted = errors.New("sequence exhausted")
)

// Key layout below the store prefix:
//
//	{prefix}def/{name} -> msgpack sequenceRecord
//	{prefix}ctr/{name} -> next raw counter, 8 bytes big endian
const (
	storeDefPrefix = "def/"
	storeCtrPrefix = "ctr/"
)

type sequenceRecord struct {
	Name         string `msgpack:"name"`
	Kind         string `msgpack:"kind"`
	StartCounter int64  `msgpack:"start"`
	HasSkip      bool   `msgpack:"has_skip"`
	SkipMin      int64  `msgpack:"skip_min"`
	SkipMax      int64  `msgpack:"skip_max"`
}

func recordOf(d sequence.SequenceDescriptor) sequenceRecord {
	rec := sequenceRecord{Name: d.Name, Kind: d.Kind, StartCounter: d.StartCounter}
	if rec.Kind == "" {
		rec.Kind = sequence.KindBitReversedPositive
	}
	if d.SkipRange != nil {
		rec.HasSkip = true
		rec.SkipMin = d.SkipRange.Min
		rec.SkipMax = d.SkipRange.Max
	}
	return rec
}

func (r sequenceRecord) descriptor() sequence.SequenceDescriptor {
	d := sequence.SequenceDescriptor{Name: r.Name, Kind: r.Kind, StartCounter: r.StartCounter}
	if r.HasSkip {
		d.SkipRange = &sequence.Range{Min: r.SkipMin, Max: r.SkipMax}
	}
	return d
}

// skip returns the first raw counter >= v outside the skip range.
func (r sequenceRecord) skip(v uint64) uint64 {
	if r.HasSkip && v >= uint64(r.SkipMin) && v <= uint64(r.SkipMax) {
		return uint64(r.SkipMax) + 1
	}
	return v
}

func (r sequenceRecord) first() uint64 {
	start := r.StartCounter
	if start < 1 {
		start = 1
	}
	return r.skip(uint64(start))
}

type storeEntry struct {
	mu   sync.Mutex
	rec  sequenceRecord
	next uint64
}

// SequenceStore is a durable bit_reversed_positive sequence primitive backed
// by Pebble. Definitions and high-water marks are loaded on first access and
// cached; every advance is persisted before values are returned.
type SequenceStore struct {
	db     *pebble.DB
	ownsDB bool
	prefix string

	mu      sync.RWMutex
	entries map[string]*storeEntry
}

// OpenSequenceStore opens (or creates) a Pebble database at path.
func OpenSequenceStore(path string, prefix string) (*SequenceStore, error) {
	db, err := pebble.Open(path, &pebble.Options{Logger: &pebbleLogger{}})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}
	s := NewSequenceStore(db, prefix)
	s.ownsDB = true
	log.Info().Str("path", path).Msg("Sequence store opened")
	return s, nil
}

// NewSequenceStore wraps an already open Pebble database.
// prefix namespaces every key the store writes.
func NewSequenceStore(db *pebble.DB, prefix string) *SequenceStore {
	return &SequenceStore{
		db:      db,
		prefix:  prefix,
		entries: make(map[string]*storeEntry),
	}
}

func (s *SequenceStore) defKey(name string) []byte {
	return []byte(s.prefix + storeDefPrefix + name)
}

func (s *SequenceStore) ctrKey(name string) []byte {
	return []byte(s.prefix + storeCtrPrefix + name)
}

// getOrLoad gets a sequence from cache or loads it from Pebble.
func (s *SequenceStore) getOrLoad(name string) (*storeEntry, error) {
	s.mu.RLock()
	entry, exists := s.entries[name]
	s.mu.RUnlock()
	if exists {
		return entry, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if entry, exists = s.entries[name]; exists {
		return entry, nil
	}

	rec, found, err := s.readRecord(name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrSequenceNotFound, name)
	}

	next := rec.first()
	val, closer, err := s.db.Get(s.ctrKey(name))
	if err == nil {
		if len(val) >= 8 {
			next = binary.BigEndian.Uint64(val)
		}
		closer.Close()
	} else if err != pebble.ErrNotFound {
		return nil, err
	}

	entry = &storeEntry{rec: rec, next: next}
	s.entries[name] = entry
	return entry, nil
}

func (s *SequenceStore) readRecord(name string) (sequenceRecord, bool, error) {
	var rec sequenceRecord
	val, closer, err := s.db.Get(s.defKey(name))
	if err == pebble.ErrNotFound {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	defer closer.Close()

	if err := encoding.Unmarshal(val, &rec); err != nil {
		return rec, false, fmt.Errorf("decode sequence %s: %w", name, err)
	}
	return rec, true, nil
}

// Create records a sequence definition. Creating an identical definition
// again is a no-op.
func (s *SequenceStore) Create(d sequence.SequenceDescriptor) error {
	if d.Name == "" {
		return fmt.Errorf("sequence name is required")
	}
	rec := recordOf(d)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found, err := s.readRecord(d.Name)
	if err != nil {
		return err
	}
	if found {
		if existing != rec {
			return fmt.Errorf("%w: %s", ErrSequenceExists, d.Name)
		}
		return nil
	}

	data, err := encoding.Marshal(rec)
	if err != nil {
		return err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, rec.first())

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(s.defKey(d.Name), data, nil); err != nil {
		return err
	}
	if err := batch.Set(s.ctrKey(d.Name), buf, nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("create sequence %s: %w", d.Name, err)
	}

	log.Info().
		Str("sequence", d.Name).
		Int64("start_counter", rec.StartCounter).
		Bool("skip_range", rec.HasSkip).
		Msg("Sequence created")
	return nil
}

// Exists reports whether a definition for name is stored.
func (s *SequenceStore) Exists(name string) (bool, error) {
	if _, err := s.getOrLoad(name); err != nil {
		if errors.Is(err, ErrSequenceNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Advance reserves up to n raw counters of name, skipping the skip range.
// The new high-water mark is synced to disk before the values are returned,
// so a crash can only leave gaps.
func (s *SequenceStore) Advance(ctx context.Context, name string, n int) ([]uint64, error) {
	if n < 1 {
		return nil, fmt.Errorf("advance count must be >= 1, got %d", n)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry, err := s.getOrLoad(name)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	values := make([]uint64, 0, n)
	next := entry.next
	for len(values) < n {
		next = entry.rec.skip(next)
		if !bitrev.InDomain(next) {
			break
		}
		values = append(values, next)
		next++
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSequenceExhausted, name)
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := s.db.Set(s.ctrKey(name), buf, pebble.Sync); err != nil {
		return nil, fmt.Errorf("advance sequence %s: %w", name, err)
	}
	entry.next = next
	return values, nil
}

// Fetch implements sequence.Fetcher. Values are raw counters, reversed by the caller.
func (s *SequenceStore) Fetch(ctx context.Context, cfg sequence.Config, count int) ([]uint64, error) {
	return s.Advance(ctx, cfg.Name, count)
}

// List returns every stored definition, sorted by name.
func (s *SequenceStore) List() ([]sequence.SequenceDescriptor, error) {
	prefix := []byte(s.prefix + storeDefPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []sequence.SequenceDescriptor
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return nil, err
		}
		var rec sequenceRecord
		if err := encoding.Unmarshal(val, &rec); err != nil {
			log.Warn().Err(err).Str("key", string(iter.Key())).Msg("Skipping undecodable sequence record")
			continue
		}
		out = append(out, rec.descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Close closes the underlying database if the store opened it.
func (s *SequenceStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// prefixUpperBound returns an exclusive upper bound for keys starting with prefix.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix)+8)
	copy(upper, prefix)
	for i := len(prefix); i < len(upper); i++ {
		upper[i] = 0xFF
	}
	return upper
}

type pebbleLogger struct{}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debug().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Error().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Fatal().Msgf("[pebble] "+format, args...)
}
