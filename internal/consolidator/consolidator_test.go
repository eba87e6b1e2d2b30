package consolidator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhali/claimengine/internal/record"
	"github.com/dhali/claimengine/internal/store"
)

func seedSource(t *testing.T, s store.TransactionalStore, ref store.DocRef, toClaim int64, authorized, paymentClaim string) {
	t.Helper()
	require.NoError(t, s.RunTransaction(context.Background(), func(ctx context.Context, tx store.Transaction) error {
		return tx.Set(ref, record.PrivateChannelRecord{
			AuthorizedToClaim: authorized,
			ToClaim:           toClaim,
			Currency:          record.XRP,
			PaymentClaim:      paymentClaim,
		})
	}))
}

func readPrivate(t *testing.T, s store.TransactionalStore, ref store.DocRef) record.PrivateChannelRecord {
	t.Helper()
	var out record.PrivateChannelRecord
	require.NoError(t, s.RunTransaction(context.Background(), func(ctx context.Context, tx store.Transaction) error {
		snap, err := tx.Get(ref)
		require.NoError(t, err)
		require.True(t, snap.Exists())
		return snap.DataTo(&out)
	}))
	return out
}

func readPublic(t *testing.T, s store.TransactionalStore, ref store.DocRef) record.PublicChannelRecord {
	t.Helper()
	var out record.PublicChannelRecord
	require.NoError(t, s.RunTransaction(context.Background(), func(ctx context.Context, tx store.Transaction) error {
		snap, err := tx.Get(ref)
		require.NoError(t, err)
		require.True(t, snap.Exists())
		return snap.DataTo(&out)
	}))
	return out
}

func TestConsolidate_FirstRoundIntoEmptyTargets(t *testing.T) {
	defer func(orig func() time.Time) { Now = orig }(Now)
	Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	s := store.NewMemoryStore()
	privTarget := store.Doc("payment_channels", "cid")
	pubTarget := store.Doc("public_claim_info", "cid")

	src1 := store.Doc("payment_channels", "cid", "estimate", "r1")
	src2 := store.Doc("payment_channels", "cid", "estimate", "r2")
	src3 := store.Doc("payment_channels", "cid", "estimate", "r3")
	seedSource(t, s, src1, 1, "4", "s1")
	seedSource(t, s, src2, 2, "5", "s2")
	seedSource(t, s, src3, 3, "6", "largest")

	err := Consolidate(context.Background(), s, []store.DocRef{src1, src2, src3}, privTarget, pubTarget)
	require.NoError(t, err)

	priv := readPrivate(t, s, privTarget)
	assert.Equal(t, int64(6), priv.ToClaim)
	assert.Equal(t, "6", priv.AuthorizedToClaim)
	assert.Equal(t, "largest", priv.PaymentClaim)
	assert.Equal(t, int64(3), priv.NumberOfClaimsStaged)

	pub := readPublic(t, s, pubTarget)
	assert.Equal(t, int64(6), pub.ToClaim)

	require.NoError(t, s.RunTransaction(context.Background(), func(ctx context.Context, tx store.Transaction) error {
		for _, ref := range []store.DocRef{src1, src2, src3} {
			snap, err := tx.Get(ref)
			require.NoError(t, err)
			assert.False(t, snap.Exists())
		}
		return nil
	}))
}

func TestConsolidate_SecondRoundFoldsIntoExistingTarget(t *testing.T) {
	s := store.NewMemoryStore()
	privTarget := store.Doc("payment_channels", "cid")
	pubTarget := store.Doc("public_claim_info", "cid")

	require.NoError(t, s.RunTransaction(context.Background(), func(ctx context.Context, tx store.Transaction) error {
		return tx.Set(privTarget, record.PrivateChannelRecord{
			AuthorizedToClaim: "6",
			ToClaim:           6,
			Currency:          record.XRP,
			PaymentClaim:      "largest",
		})
	}))

	src1 := store.Doc("payment_channels", "cid", "estimate", "r4")
	src2 := store.Doc("payment_channels", "cid", "estimate", "r5")
	src3 := store.Doc("payment_channels", "cid", "estimate", "r6")
	seedSource(t, s, src1, 1, "8", "s3")
	seedSource(t, s, src2, 2, "9", "s4")
	seedSource(t, s, src3, 1, "10", "new largest")

	err := Consolidate(context.Background(), s, []store.DocRef{src1, src2, src3}, privTarget, pubTarget)
	require.NoError(t, err)

	priv := readPrivate(t, s, privTarget)
	assert.Equal(t, int64(10), priv.ToClaim)
	assert.Equal(t, "10", priv.AuthorizedToClaim)
	assert.Equal(t, "new largest", priv.PaymentClaim)
}

func TestConsolidate_TieKeepsExistingWinner(t *testing.T) {
	s := store.NewMemoryStore()
	privTarget := store.Doc("payment_channels", "cid")
	pubTarget := store.Doc("public_claim_info", "cid")

	require.NoError(t, s.RunTransaction(context.Background(), func(ctx context.Context, tx store.Transaction) error {
		return tx.Set(privTarget, record.PrivateChannelRecord{
			AuthorizedToClaim: "10",
			ToClaim:           1,
			Currency:          record.XRP,
			PaymentClaim:      "existing-winner",
		})
	}))

	src := store.Doc("payment_channels", "cid", "estimate", "r1")
	seedSource(t, s, src, 1, "10", "challenger")

	err := Consolidate(context.Background(), s, []store.DocRef{src}, privTarget, pubTarget)
	require.NoError(t, err)

	priv := readPrivate(t, s, privTarget)
	assert.Equal(t, "existing-winner", priv.PaymentClaim, "equal authorized_to_claim must not dethrone the existing winner")
}

func TestConsolidate_AlreadyConsolidatedSourceIsSafeNoop(t *testing.T) {
	s := store.NewMemoryStore()
	privTarget := store.Doc("payment_channels", "cid")
	pubTarget := store.Doc("public_claim_info", "cid")

	src := store.Doc("payment_channels", "cid", "estimate", "gone")
	err := Consolidate(context.Background(), s, []store.DocRef{src}, privTarget, pubTarget)
	require.NoError(t, err)

	priv := readPrivate(t, s, privTarget)
	assert.Equal(t, int64(0), priv.ToClaim)
	assert.Equal(t, int64(0), priv.NumberOfClaimsStaged)
}
