// Package validator implements the claim admission policy of spec §4.5:
// parse, pre-flight checks, a transactional reconcile of the channel's
// accounting records, and — only when the claim has actually changed since
// the last admitted one — re-verification against the ledger.
package validator

import (
	"context"
	"strconv"
	"time"

	"github.com/dhali/claimengine/internal/claim"
	"github.com/dhali/claimengine/internal/claimerr"
	"github.com/dhali/claimengine/internal/ledgerclient"
	"github.com/dhali/claimengine/internal/ledgerverify"
	"github.com/dhali/claimengine/internal/metrics"
	"github.com/dhali/claimengine/internal/ratelimit"
	"github.com/dhali/claimengine/internal/record"
	"github.com/dhali/claimengine/internal/store"
)

// Currency is the engine's one recognised currency contract.
type Currency = record.Currency

// PrivateChannelRecord is the authoritative, non-public accounting record
// for a channel, stored at payment_channels/{CID}.
type PrivateChannelRecord = record.PrivateChannelRecord

// PublicChannelRecord is the dashboard-facing mirror of a channel's
// cumulative claimed total, stored at public_claim_info/{CID}.
type PublicChannelRecord = record.PublicChannelRecord

// XRPCurrency is the only currency a channel record may carry.
var XRPCurrency = record.XRP

// Validator holds the dependencies spec §4.5's admission logic needs: the
// transactional store, the ledger verifier, and the rate-limit policy
// applied to every channel.
type Validator struct {
	Store   store.TransactionalStore
	Ledger  ledgerclient.Client
	Limiter ratelimit.Limiter

	// Now returns the current time; defaults to time.Now. Overridden in
	// tests for deterministic rate-limit window checks.
	Now func() time.Time
}

func (v *Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now().UTC()
}

func privateRef(cid string) store.DocRef { return store.Doc("payment_channels", cid) }
func publicRef(cid string) store.DocRef  { return store.Doc("public_claim_info", cid) }

// ValidateClaim implements spec §4.5: parses claimJSON, checks it targets
// destination, and transactionally reconciles the channel's accounting
// records against estimate, re-verifying the claim's signature against the
// ledger only if it differs from the last admitted one. It returns the
// channel's new cumulative to_claim total.
func (v *Validator) ValidateClaim(ctx context.Context, claimJSON []byte, estimate int64, destination string, settleDelay time.Duration) (int64, error) {
	return v.run(ctx, claimJSON, estimate, destination, settleDelay, true)
}

// ThrowIfClaimInvalid runs the same pre-flight, rate-limit, and
// re-verification checks as ValidateClaim but performs no writes to
// payment_channels/{CID} or public_claim_info/{CID}. Callers use this to
// admit a request before its exact cost is known, then persist the
// admission separately once it is (internal/reconciler).
func (v *Validator) ThrowIfClaimInvalid(ctx context.Context, claimJSON []byte, estimate int64, destination string, settleDelay time.Duration) error {
	_, err := v.run(ctx, claimJSON, estimate, destination, settleDelay, false)
	return err
}

func (v *Validator) run(ctx context.Context, claimJSON []byte, estimate int64, destination string, settleDelay time.Duration, persist bool) (int64, error) {
	c, err := claim.Parse(claimJSON)
	if err != nil {
		return 0, err
	}
	if c.DestinationAccount != destination {
		return 0, claimerr.New(claimerr.DestinationMismatch, "claim destination_account does not match the configured destination")
	}
	cid := claim.CID(c.ChannelID).String()

	canonicalClaim, err := claim.Canonical(c)
	if err != nil {
		return 0, err
	}

	var newToClaim int64
	err = v.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Transaction) error {
		privSnap, err := tx.Get(privateRef(cid))
		if err != nil {
			return err
		}
		pubSnap, err := tx.Get(publicRef(cid))
		if err != nil {
			return err
		}

		var priv PrivateChannelRecord
		privExists := privSnap.Exists()
		if privExists {
			if err := privSnap.DataTo(&priv); err != nil {
				return err
			}
			if priv.Currency != XRPCurrency {
				return claimerr.New(claimerr.CurrencyInvalid, "stored channel record does not carry the XRP/0.000001 currency contract")
			}
			limitErr := v.Limiter.Check(ratelimit.Context{
				NumberOfClaimsStaged: priv.NumberOfClaimsStaged,
				Timestamp:            priv.Timestamp,
				Now:                  v.now(),
			})
			if limitErr != nil {
				return limitErr
			}
		}

		newToClaim = estimate
		if privExists {
			newToClaim += priv.ToClaim
		}

		authorized, err := strconv.ParseInt(c.AuthorizedToClaim, 10, 64)
		if err != nil {
			return claimerr.Wrap(claimerr.MalformedClaim, "authorized_to_claim is not a valid integer", err)
		}
		if authorized < newToClaim {
			return claimerr.New(claimerr.InsufficientAuthorization, "authorized_to_claim is below the channel's accumulated to_claim total")
		}

		needsReverify := !privExists || !claim.Equal(priv.PaymentClaim, canonicalClaim)
		if needsReverify {
			if err := ledgerverify.Verify(ctx, v.Ledger, c, settleDelay, true); err != nil {
				return err
			}
		}

		if !persist {
			return nil
		}

		updated := PrivateChannelRecord{
			AuthorizedToClaim:    c.AuthorizedToClaim,
			ToClaim:              newToClaim,
			Currency:             XRPCurrency,
			PaymentClaim:         canonicalClaim,
			Timestamp:            v.now(),
			NumberOfClaimsStaged: priv.NumberOfClaimsStaged,
		}
		if err := tx.Set(privateRef(cid), updated); err != nil {
			return err
		}

		_ = pubSnap // read for snapshot consistency; public record is fully recomputed below
		return tx.Set(publicRef(cid), PublicChannelRecord{ToClaim: newToClaim, Currency: XRPCurrency})
	})
	metrics.ValidationOutcomes.WithLabelValues(outcomeLabel(err)).Inc()
	if err != nil {
		return 0, err
	}
	return newToClaim, nil
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind, ok := claimerr.KindOf(err); ok {
		return kind.String()
	}
	return "unknown"
}
