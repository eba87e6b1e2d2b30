// Package reconciler implements the estimate↔exact bookkeeping operations
// of spec §4.6: folding a measured exact cost back into a channel's
// running total, appending an exact-cost record, and promoting a staged
// estimate record to exact once its matching request completes.
package reconciler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dhali/claimengine/internal/claim"
	"github.com/dhali/claimengine/internal/claimerr"
	"github.com/dhali/claimengine/internal/metrics"
	"github.com/dhali/claimengine/internal/mover"
	"github.com/dhali/claimengine/internal/record"
	"github.com/dhali/claimengine/internal/store"
)

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind, ok := claimerr.KindOf(err); ok {
		return kind.String()
	}
	return "unknown"
}

// Reconciler holds the store dependency every operation here composes its
// transactions against.
type Reconciler struct {
	Store store.TransactionalStore

	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func privateRef(cid string) store.DocRef { return store.Doc("payment_channels", cid) }
func publicRef(cid string) store.DocRef  { return store.Doc("public_claim_info", cid) }
func estimateRef(cid, rid string) store.DocRef {
	return store.Doc("payment_channels", cid, "estimate", rid)
}
func exactRef(cid, rid string) store.DocRef {
	return store.Doc("payment_channels", cid, "exact", rid)
}

// UpdateEstimatedCostWithExact replaces a request's provisional estimate
// cost with its measured exact cost in the channel's running to_claim
// total: private/{CID} and public/{CID} must both already exist.
func (r *Reconciler) UpdateEstimatedCostWithExact(ctx context.Context, claimJSON []byte, estimateCost, exactCost int64) error {
	if estimateCost < 0 {
		return claimerr.New(claimerr.InvalidInput, "estimate_cost must not be negative")
	}
	if exactCost < 0 {
		return claimerr.New(claimerr.InvalidInput, "exact_cost must not be negative")
	}
	c, err := claim.Parse(claimJSON)
	if err != nil {
		return err
	}
	cid := claim.CID(c.ChannelID).String()
	delta := exactCost - estimateCost

	err = r.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Transaction) error {
		privSnap, err := tx.Get(privateRef(cid))
		if err != nil {
			return err
		}
		if !privSnap.Exists() {
			return claimerr.New(claimerr.NotFound, "no private channel record exists for this claim's channel_id")
		}
		pubSnap, err := tx.Get(publicRef(cid))
		if err != nil {
			return err
		}
		if !pubSnap.Exists() {
			return claimerr.New(claimerr.NotFound, "no public channel record exists for this claim's channel_id")
		}

		var priv record.PrivateChannelRecord
		if err := privSnap.DataTo(&priv); err != nil {
			return err
		}
		var pub record.PublicChannelRecord
		if err := pubSnap.DataTo(&pub); err != nil {
			return err
		}

		priv.ToClaim += delta
		pub.ToClaim += delta

		if err := tx.Set(privateRef(cid), priv); err != nil {
			return err
		}
		return tx.Set(publicRef(cid), pub)
	})
	metrics.ReconcileOutcomes.WithLabelValues("update_estimated_cost_with_exact", outcomeLabel(err)).Inc()
	return err
}

// StoreExactClaim appends a new, append-only exact-cost record for a
// request and returns its generated RID. Repeated calls always produce a
// distinct RID and never overwrite a prior one.
func (r *Reconciler) StoreExactClaim(ctx context.Context, claimJSON []byte, exactCost int64) (string, error) {
	if exactCost < 0 {
		return "", claimerr.New(claimerr.InvalidInput, "exact_cost must not be negative")
	}
	c, err := claim.Parse(claimJSON)
	if err != nil {
		return "", err
	}
	canonicalClaim, err := claim.Canonical(c)
	if err != nil {
		return "", err
	}
	cid := claim.CID(c.ChannelID).String()
	rid := uuid.New().String()

	rec := record.PrivateChannelRecord{
		AuthorizedToClaim: c.AuthorizedToClaim,
		ToClaim:           exactCost,
		Currency:          record.XRP,
		PaymentClaim:      canonicalClaim,
		Timestamp:         r.now(),
	}

	err = r.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Transaction) error {
		return tx.Set(exactRef(cid, rid), rec)
	})
	metrics.ReconcileOutcomes.WithLabelValues("store_exact_claim", outcomeLabel(err)).Inc()
	if err != nil {
		return "", err
	}
	return rid, nil
}

// ValidateExactClaim checks that the claim backing rid's estimate record
// still matches the incoming claim, then promotes that estimate to exact
// with its to_claim overwritten to exactCost, using mover.Commit for the
// move half so the consistency check and the move land in the same
// transaction. A mismatch between the stored estimate and the engine's own
// internal expectations — not a caller error — surfaces as
// InternalInconsistency.
func (r *Reconciler) ValidateExactClaim(ctx context.Context, claimJSON []byte, rid string, exactCost int64) error {
	if exactCost < 0 {
		return claimerr.New(claimerr.InvalidInput, "exact_cost must not be negative")
	}
	c, err := claim.Parse(claimJSON)
	if err != nil {
		return err
	}
	canonicalClaim, err := claim.Canonical(c)
	if err != nil {
		return err
	}
	cid := claim.CID(c.ChannelID).String()

	err = r.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Transaction) error {
		snap, err := tx.Get(estimateRef(cid, rid))
		if err != nil {
			return err
		}
		if !snap.Exists() {
			return claimerr.New(claimerr.InternalInconsistency, "no estimate record exists for the given RID")
		}

		var est record.PrivateChannelRecord
		if err := snap.DataTo(&est); err != nil {
			return err
		}
		if est.AuthorizedToClaim != c.AuthorizedToClaim {
			return claimerr.New(claimerr.InternalInconsistency, "estimate record's authorized_to_claim does not match the incoming claim")
		}
		// Claims may arrive on the wire in any field order (spec §6);
		// compare canonical forms rather than raw bytes so reordering
		// alone never looks like a mismatch.
		if !claim.Equal(est.PaymentClaim, canonicalClaim) {
			return claimerr.New(claimerr.InternalInconsistency, "estimate record's payment_claim does not match the incoming claim")
		}

		est.ToClaim = exactCost
		return mover.Commit(tx, exactRef(cid, rid), estimateRef(cid, rid), est)
	})
	metrics.ReconcileOutcomes.WithLabelValues("validate_exact_claim", outcomeLabel(err)).Inc()
	return err
}
