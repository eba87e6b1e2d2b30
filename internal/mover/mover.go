// Package mover implements the idempotent document-move primitive of
// spec §4.7. The reconciler uses its Commit half for estimate→exact
// promotion; the consolidator deletes its sources itself.
package mover

import (
	"context"

	"github.com/dhali/claimengine/internal/store"
)

// Move copies source's data onto target and deletes source, inside a
// single store transaction. If source is already absent — because a
// concurrent caller already moved it, or this is a retried attempt after a
// commit that in fact succeeded — Move no-ops and returns nil: at most one
// concurrent caller creates target, the rest observe source gone and treat
// that as success.
func Move(ctx context.Context, s store.TransactionalStore, source, target store.DocRef) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx store.Transaction) error {
		snap, err := tx.Get(source)
		if err != nil {
			return err
		}
		if !snap.Exists() {
			return nil
		}

		var data map[string]interface{}
		if err := snap.DataTo(&data); err != nil {
			return err
		}

		return Commit(tx, target, source, data)
	})
}

// Commit performs the write half of a move — set(target, data);
// delete(source) — against a transaction a caller already has open. It
// lets callers that need to mutate a document's contents as part of the
// same move (e.g. overwriting one field before it lands at target) reuse
// the same commit step Move itself uses, so the two stay in lockstep and
// source is never left deleted without target having been written.
func Commit(tx store.Transaction, target, source store.DocRef, data interface{}) error {
	if err := tx.Set(target, data); err != nil {
		return err
	}
	return tx.Delete(source)
}
