package validator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhali/claimengine/internal/claim"
	"github.com/dhali/claimengine/internal/claimerr"
	"github.com/dhali/claimengine/internal/ledgerclient"
	"github.com/dhali/claimengine/internal/ledgerclient/mock"
	"github.com/dhali/claimengine/internal/ratelimit"
	"github.com/dhali/claimengine/internal/store"
)

const testChannelID = "CHAN1"
const testDestination = "rDest"
const testSettleDelay = 24 * time.Hour

func rawClaim(authorized, signature string) []byte {
	c := claim.Claim{
		Account:            "rAcct",
		DestinationAccount: testDestination,
		ChannelID:          testChannelID,
		AuthorizedToClaim:  authorized,
		Signature:          signature,
	}
	b, _ := json.Marshal(c)
	return b
}

func newValidator(ledger ledgerclient.Client) *Validator {
	return &Validator{
		Store:   store.NewMemoryStore(),
		Ledger:  ledger,
		Limiter: ratelimit.Limiter{Strategy: ratelimit.Never{}},
		Now:     func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func seedLedger(authorized int64, signature string) *mock.Client {
	m := mock.New()
	m.SeedChannel(ledgerclient.ChannelView{
		Account:            "rAcct",
		DestinationAccount: testDestination,
		ChannelID:          testChannelID,
		Amount:             "1000000",
		SettleDelay:        int64(testSettleDelay / time.Second),
		PublicKey:          "pub-1",
	})
	m.AcceptSignature(signature)
	return m
}

func TestValidateClaim_FirstClaimAdmitsAndVerifies(t *testing.T) {
	m := seedLedger(1000, "sig-1")
	v := newValidator(m)

	newToClaim, err := v.ValidateClaim(context.Background(), rawClaim("1000", "sig-1"), 100, testDestination, testSettleDelay)
	require.NoError(t, err)
	assert.Equal(t, int64(100), newToClaim)
	assert.Equal(t, 1, m.ListChannelsCallCount())
	assert.Equal(t, 1, m.VerifySignatureCallCount())
}

func TestValidateClaim_RepeatIdenticalClaimSkipsReverification(t *testing.T) {
	m := seedLedger(1000, "sig-1")
	v := newValidator(m)

	_, err := v.ValidateClaim(context.Background(), rawClaim("1000", "sig-1"), 100, testDestination, testSettleDelay)
	require.NoError(t, err)
	assert.Equal(t, 1, m.VerifySignatureCallCount())

	newToClaim, err := v.ValidateClaim(context.Background(), rawClaim("1000", "sig-1"), 50, testDestination, testSettleDelay)
	require.NoError(t, err)
	assert.Equal(t, int64(150), newToClaim)
	assert.Equal(t, 1, m.ListChannelsCallCount(), "unchanged claim must not re-invoke the ledger")
	assert.Equal(t, 1, m.VerifySignatureCallCount(), "unchanged claim must not re-verify its signature")
}

func TestValidateClaim_IncreasedAuthorizationReverifies(t *testing.T) {
	m := seedLedger(1000, "sig-1")
	m.AcceptSignature("sig-2")
	v := newValidator(m)

	_, err := v.ValidateClaim(context.Background(), rawClaim("1000", "sig-1"), 100, testDestination, testSettleDelay)
	require.NoError(t, err)

	newToClaim, err := v.ValidateClaim(context.Background(), rawClaim("2000", "sig-2"), 50, testDestination, testSettleDelay)
	require.NoError(t, err)
	assert.Equal(t, int64(150), newToClaim)
	assert.Equal(t, 2, m.VerifySignatureCallCount())
}

func TestValidateClaim_InsufficientAuthorizationRejected(t *testing.T) {
	m := seedLedger(100, "sig-1")
	v := newValidator(m)

	_, err := v.ValidateClaim(context.Background(), rawClaim("100", "sig-1"), 1000, testDestination, testSettleDelay)
	require.Error(t, err)
	assert.True(t, claimerr.Is(err, claimerr.InsufficientAuthorization))
}

func TestValidateClaim_DestinationMismatchRejected(t *testing.T) {
	m := seedLedger(1000, "sig-1")
	v := newValidator(m)

	_, err := v.ValidateClaim(context.Background(), rawClaim("1000", "sig-1"), 100, "rSomeoneElse", testSettleDelay)
	require.Error(t, err)
	assert.True(t, claimerr.Is(err, claimerr.DestinationMismatch))
	assert.Equal(t, 0, m.TotalCalls(), "destination mismatch must be rejected pre-flight, before any ledger call")
}

func TestValidateClaim_SignatureInvalidRejected(t *testing.T) {
	m := seedLedger(1000, "sig-1")
	v := newValidator(m)

	_, err := v.ValidateClaim(context.Background(), rawClaim("1000", "wrong-sig"), 100, testDestination, testSettleDelay)
	require.Error(t, err)
	assert.True(t, claimerr.Is(err, claimerr.SignatureInvalid))
}

func TestValidateClaim_NoMatchingChannelRejected(t *testing.T) {
	m := mock.New()
	v := newValidator(m)

	_, err := v.ValidateClaim(context.Background(), rawClaim("1000", "sig-1"), 100, testDestination, testSettleDelay)
	require.Error(t, err)
	assert.True(t, claimerr.Is(err, claimerr.NoMatchingChannel))
}

func TestValidateClaim_RateLimitedRejected(t *testing.T) {
	m := seedLedger(1000, "sig-1")
	v := newValidator(m)
	v.Limiter = ratelimit.Limiter{Strategy: ratelimit.StagedClaimBuffer{Limit: 0, Window: time.Hour}}

	_, err := v.ValidateClaim(context.Background(), rawClaim("1000", "sig-1"), 100, testDestination, testSettleDelay)
	require.NoError(t, err, "rate limiting only applies once a private record exists")

	_, err = v.ValidateClaim(context.Background(), rawClaim("2000", "sig-1"), 100, testDestination, testSettleDelay)
	require.Error(t, err)
	assert.True(t, claimerr.Is(err, claimerr.RateLimited))
}

func TestValidateClaim_PublicRecordMirrorsPrivate(t *testing.T) {
	m := seedLedger(1000, "sig-1")
	v := newValidator(m)

	newToClaim, err := v.ValidateClaim(context.Background(), rawClaim("1000", "sig-1"), 100, testDestination, testSettleDelay)
	require.NoError(t, err)

	cid := claim.CID(testChannelID).String()
	err = v.Store.RunTransaction(context.Background(), func(ctx context.Context, tx store.Transaction) error {
		snap, err := tx.Get(publicRef(cid))
		require.NoError(t, err)
		var pub PublicChannelRecord
		require.NoError(t, snap.DataTo(&pub))
		assert.Equal(t, newToClaim, pub.ToClaim)
		assert.Equal(t, XRPCurrency, pub.Currency)
		return nil
	})
	require.NoError(t, err)
}

func TestThrowIfClaimInvalid_DoesNotPersist(t *testing.T) {
	m := seedLedger(1000, "sig-1")
	v := newValidator(m)

	err := v.ThrowIfClaimInvalid(context.Background(), rawClaim("1000", "sig-1"), 100, testDestination, testSettleDelay)
	require.NoError(t, err)

	cid := claim.CID(testChannelID).String()
	err = v.Store.RunTransaction(context.Background(), func(ctx context.Context, tx store.Transaction) error {
		snap, err := tx.Get(privateRef(cid))
		require.NoError(t, err)
		assert.False(t, snap.Exists(), "ThrowIfClaimInvalid must not write the private record")
		return nil
	})
	require.NoError(t, err)
}

func TestValidateClaim_CurrencyInvalidOnStoredRecordRejected(t *testing.T) {
	m := seedLedger(1000, "sig-1")
	v := newValidator(m)

	cid := claim.CID(testChannelID).String()
	require.NoError(t, v.Store.RunTransaction(context.Background(), func(ctx context.Context, tx store.Transaction) error {
		return tx.Set(privateRef(cid), PrivateChannelRecord{
			AuthorizedToClaim: "1000",
			ToClaim:           0,
			Currency:          Currency{Code: "USD", Scale: 1},
			PaymentClaim:      "{}",
		})
	}))

	_, err := v.ValidateClaim(context.Background(), rawClaim("1000", "sig-1"), 100, testDestination, testSettleDelay)
	require.Error(t, err)
	assert.True(t, claimerr.Is(err, claimerr.CurrencyInvalid))
}
