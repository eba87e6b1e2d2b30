// Package consolidator collapses many per-request records into a single
// canonical private/public channel record, per spec §4.8.
package consolidator

import (
	"context"
	"strconv"
	"time"

	"github.com/dhali/claimengine/internal/claimerr"
	"github.com/dhali/claimengine/internal/record"
	"github.com/dhali/claimengine/internal/store"
)

// Now is overridable in tests; defaults to time.Now.
var Now = func() time.Time { return time.Now().UTC() }

// Consolidate reads privateTarget and publicTarget (either may not yet
// exist), folds every source document's to_claim and authorized_to_claim
// into them, deletes every source, and writes the updated targets — all in
// one transaction. On equal authorized_to_claim between the running
// maximum and a source, the existing winner is retained (spec §9 Open
// Question (b)).
func Consolidate(ctx context.Context, s store.TransactionalStore, sources []store.DocRef, privateTarget, publicTarget store.DocRef) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx store.Transaction) error {
		privSnap, err := tx.Get(privateTarget)
		if err != nil {
			return err
		}
		pubSnap, err := tx.Get(publicTarget)
		if err != nil {
			return err
		}

		var priv record.PrivateChannelRecord
		if privSnap.Exists() {
			if err := privSnap.DataTo(&priv); err != nil {
				return err
			}
		} else {
			priv.AuthorizedToClaim = "0"
			priv.PaymentClaim = ""
		}

		totalToClaim := priv.ToClaim
		maxAuth, err := strconv.ParseInt(priv.AuthorizedToClaim, 10, 64)
		if err != nil {
			return claimerr.Wrap(claimerr.InternalInconsistency, "existing private record's authorized_to_claim is not a valid integer", err)
		}
		winningClaim := priv.PaymentClaim

		var present []store.DocRef
		for _, src := range sources {
			srcSnap, err := tx.Get(src)
			if err != nil {
				return err
			}
			if !srcSnap.Exists() {
				// Already consolidated by a prior, possibly
				// crashed, attempt: safe no-op for this source.
				continue
			}
			present = append(present, src)

			var d record.PrivateChannelRecord
			if err := srcSnap.DataTo(&d); err != nil {
				return err
			}
			totalToClaim += d.ToClaim

			auth, err := strconv.ParseInt(d.AuthorizedToClaim, 10, 64)
			if err != nil {
				return claimerr.Wrap(claimerr.InternalInconsistency, "source record's authorized_to_claim is not a valid integer", err)
			}
			if auth > maxAuth {
				maxAuth = auth
				winningClaim = d.PaymentClaim
			}
		}

		for _, src := range present {
			if err := tx.Delete(src); err != nil {
				return err
			}
		}

		updatedPriv := record.PrivateChannelRecord{
			AuthorizedToClaim:    strconv.FormatInt(maxAuth, 10),
			ToClaim:              totalToClaim,
			Currency:             record.XRP,
			PaymentClaim:         winningClaim,
			Timestamp:            Now(),
			NumberOfClaimsStaged: int64(len(present)),
		}
		if err := tx.Set(privateTarget, updatedPriv); err != nil {
			return err
		}

		_ = pubSnap
		return tx.Set(publicTarget, record.PublicChannelRecord{ToClaim: totalToClaim, Currency: record.XRP})
	})
}
