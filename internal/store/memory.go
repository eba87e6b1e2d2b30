package store

import (
	"context"
	"sort"
	"sync"

	"github.com/dhali/claimengine/internal/metrics"
)

// docState is the authoritative state of one document: its current data
// (nil when absent) and a monotonically increasing version bumped on every
// committed write or delete, used to detect conflicting concurrent
// transactions.
type docState struct {
	data    []byte
	version int64
}

// MemoryStore is a reference, in-process implementation of
// TransactionalStore. It gives every transaction snapshot-isolated reads
// and a conflict-detected commit with automatic retry, backed by a single
// mutex and a per-document version counter — deliberately simple, since
// its job is to exercise the engine's transactional discipline in tests
// and local/dev wiring, not to be a production document database.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]*docState
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*docState)}
}

// MaxTransactionAttempts bounds retries on detected write conflicts.
const MaxTransactionAttempts = 64

func (s *MemoryStore) snapshot(path string) (data []byte, version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[path]
	if !ok {
		return nil, 0
	}
	if d.data == nil {
		// Deleted: absent, but its version still guards conflict detection.
		return nil, d.version
	}
	// Return a copy so callers can't mutate shared backing storage.
	cp := make([]byte, len(d.data))
	copy(cp, d.data)
	return cp, d.version
}

type pendingWrite struct {
	deleted bool
	data    []byte
}

type memTransaction struct {
	store *MemoryStore
	reads map[string]int64 // ref path -> baseline version, set on first store read
	cache map[string]*memSnapshot
	pend  map[string]*pendingWrite
}

func (t *memTransaction) Get(ref DocRef) (Snapshot, error) {
	if pw, ok := t.pend[ref.Path]; ok {
		return &memSnapshot{ref: ref, exists: !pw.deleted, data: pw.data}, nil
	}
	if cached, ok := t.cache[ref.Path]; ok {
		return cached, nil
	}
	data, version := t.store.snapshot(ref.Path)
	t.reads[ref.Path] = version
	snap := &memSnapshot{ref: ref, exists: data != nil, data: data}
	t.cache[ref.Path] = snap
	return snap, nil
}

func (t *memTransaction) Set(ref DocRef, data interface{}) error {
	raw, err := encode(data)
	if err != nil {
		return err
	}
	t.pend[ref.Path] = &pendingWrite{data: raw}
	return nil
}

func (t *memTransaction) Delete(ref DocRef) error {
	t.pend[ref.Path] = &pendingWrite{deleted: true}
	return nil
}

type memSnapshot struct {
	ref    DocRef
	exists bool
	data   []byte
}

func (s *memSnapshot) Ref() DocRef    { return s.ref }
func (s *memSnapshot) Exists() bool   { return s.exists }
func (s *memSnapshot) DataTo(v interface{}) error {
	if !s.exists {
		return ErrNotFound
	}
	return decode(s.data, v)
}

// RunTransaction implements TransactionalStore.
func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error {
	for attempt := 0; attempt < MaxTransactionAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx := &memTransaction{
			store: s,
			reads: make(map[string]int64),
			cache: make(map[string]*memSnapshot),
			pend:  make(map[string]*pendingWrite),
		}

		if err := fn(ctx, tx); err != nil {
			return err
		}

		if s.tryCommit(tx) {
			return nil
		}
		// Conflict detected: loop and retry with a fresh snapshot. fn
		// must be idempotent w.r.t. its own effects, per spec §5.
		metrics.StoreTransactionRetries.Inc()
	}
	return ErrConflict
}

// tryCommit attempts to apply a transaction's writes atomically, verifying
// every document the transaction read has not changed since. Returns false
// on conflict (caller retries).
func (s *MemoryStore) tryCommit(tx *memTransaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path, baseline := range tx.reads {
		current, ok := s.docs[path]
		var currentVersion int64
		if ok {
			currentVersion = current.version
		}
		if currentVersion != baseline {
			return false
		}
	}

	for path, pw := range tx.pend {
		existing, ok := s.docs[path]
		var nextVersion int64 = 1
		if ok {
			nextVersion = existing.version + 1
		}
		if pw.deleted {
			s.docs[path] = &docState{data: nil, version: nextVersion}
			continue
		}
		s.docs[path] = &docState{data: pw.data, version: nextVersion}
	}

	return true
}

// ListCollection implements TransactionalStore.
func (s *MemoryStore) ListCollection(ctx context.Context, collectionPath string) ([]DocRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := collectionPath + "/"
	var refs []DocRef
	for path, d := range s.docs {
		if d.data == nil {
			continue // deleted
		}
		if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
			continue
		}
		rest := path[len(prefix):]
		// Only direct children: no further "/" in rest.
		direct := true
		for _, r := range rest {
			if r == '/' {
				direct = false
				break
			}
		}
		if !direct {
			continue
		}
		refs = append(refs, DocRef{Path: path})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	return refs, nil
}
