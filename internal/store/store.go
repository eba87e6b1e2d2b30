// Package store defines the transactional document store seam the engine
// is built against, following spec §5/§9: "the store's transactional API is
// assumed to provide snapshot reads and conflict-detected commit with
// automatic retry; the engine expresses every cross-document update using
// this primitive and must not fall back to read-modify-write outside a
// transaction."
//
// Production deployments, wallet/channel tooling, and the HTTP surface that
// talks to this engine are out of this repository's scope; what lives here
// is the interface every other package programs against, plus a reference
// in-memory implementation used by tests and local wiring.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Snapshot.DataTo when the snapshot's document
// does not exist. C7 and C8 never see it for a missing source document:
// they check Snapshot.Exists first and treat an absent source as a no-op.
var ErrNotFound = errors.New("store: document not found")

// ErrConflict is returned by RunTransaction when every one of its
// MaxTransactionAttempts attempts ended in a commit conflict.
var ErrConflict = errors.New("store: transaction conflict")

// DocRef identifies a document by its slash-separated collection path,
// mirroring the persisted layout of spec §6:
//
//	payment_channels/{CID}
//	public_claim_info/{CID}
//	payment_channels/{CID}/estimate/{RID}
//	payment_channels/{CID}/exact/{RID}
type DocRef struct {
	Path string
}

// Doc builds a DocRef from path segments, e.g. Doc("payment_channels", cid).
func Doc(segments ...string) DocRef {
	return DocRef{Path: strings.Join(segments, "/")}
}

// Collection returns the parent collection path of this document.
func (r DocRef) Collection() string {
	idx := strings.LastIndex(r.Path, "/")
	if idx < 0 {
		return ""
	}
	return r.Path[:idx]
}

// ID returns the final path segment.
func (r DocRef) ID() string {
	idx := strings.LastIndex(r.Path, "/")
	if idx < 0 {
		return r.Path
	}
	return r.Path[idx+1:]
}

func (r DocRef) String() string { return r.Path }

// Snapshot is a point-in-time read of a document within a transaction.
type Snapshot interface {
	// Ref is the document this snapshot was read from.
	Ref() DocRef
	// Exists reports whether the document was present at read time.
	Exists() bool
	// DataTo decodes the document's data into v. It returns ErrNotFound
	// if the document did not exist.
	DataTo(v interface{}) error
}

// Transaction is the read/mutate surface available inside RunTransaction.
// Implementations must support reading the same ref multiple times and
// must make writes visible to later reads within the same transaction
// attempt (read-your-writes), since C5 reads private+public up front and
// some call sites read a document more than once while composing writes.
type Transaction interface {
	// Get reads ref as of the transaction's snapshot.
	Get(ref DocRef) (Snapshot, error)
	// Set creates or replaces ref's data.
	Set(ref DocRef, data interface{}) error
	// Delete removes ref. Deleting an absent ref is not an error.
	Delete(ref DocRef) error
}

// TransactionalStore is the injected document-store dependency every
// engine component composes its cross-document mutations against.
type TransactionalStore interface {
	// RunTransaction executes fn against a fresh snapshot, retrying on
	// commit conflicts detected by the store. fn must be idempotent with
	// respect to its own side effects (it may be invoked more than once
	// for a single logical call), and must not perform its own I/O with
	// lasting side effects beyond the transaction's reads/writes — the
	// one sanctioned exception, per spec §5, being read-only, replay-safe
	// ledger RPC calls.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error

	// ListCollection returns every document ref directly under the given
	// collection path. Used outside transactions to discover candidates
	// (e.g. staged claim documents to consolidate) — never to drive a
	// transaction's own read set.
	ListCollection(ctx context.Context, collectionPath string) ([]DocRef, error)
}

// marshal/unmarshal helpers shared by implementations that store documents
// as opaque JSON blobs internally.

func encode(data interface{}) ([]byte, error) {
	return json.Marshal(data)
}

func decode(raw []byte, v interface{}) error {
	if raw == nil {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("store: decode: %w", err)
	}
	return nil
}
