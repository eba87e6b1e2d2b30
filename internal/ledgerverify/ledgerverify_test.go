package ledgerverify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhali/claimengine/internal/claim"
	"github.com/dhali/claimengine/internal/claimerr"
	"github.com/dhali/claimengine/internal/ledgerclient"
	"github.com/dhali/claimengine/internal/ledgerclient/mock"
)

const testSettleDelay = 24 * time.Hour

func baseClaim() claim.Claim {
	return claim.Claim{
		Account:            "rAcct",
		DestinationAccount: "rDest",
		ChannelID:          "CHAN1",
		AuthorizedToClaim:  "1000",
		Signature:          "sig-1",
	}
}

func TestVerify_MatchesAndVerifies(t *testing.T) {
	client := mock.New()
	client.SeedChannel(ledgerclient.ChannelView{
		Account:            "rAcct",
		DestinationAccount: "rDest",
		ChannelID:          "CHAN1",
		Amount:             "5000",
		SettleDelay:        int64(testSettleDelay / time.Second),
		PublicKey:          "pub-1",
	})
	client.AcceptSignature("sig-1")

	err := Verify(context.Background(), client, baseClaim(), testSettleDelay, true)
	assert.NoError(t, err)
}

func TestVerify_NoMatchingChannel(t *testing.T) {
	client := mock.New()
	err := Verify(context.Background(), client, baseClaim(), testSettleDelay, true)
	require.Error(t, err)
	assert.True(t, claimerr.Is(err, claimerr.NoMatchingChannel))
}

func TestVerify_AmountBelowAuthorized(t *testing.T) {
	client := mock.New()
	client.SeedChannel(ledgerclient.ChannelView{
		Account:            "rAcct",
		DestinationAccount: "rDest",
		ChannelID:          "CHAN1",
		Amount:             "500",
		SettleDelay:        int64(testSettleDelay / time.Second),
		PublicKey:          "pub-1",
	})
	err := Verify(context.Background(), client, baseClaim(), testSettleDelay, true)
	require.Error(t, err)
	assert.True(t, claimerr.Is(err, claimerr.NoMatchingChannel))
}

func TestVerify_SettleDelayMismatchRejectedUnderEquality(t *testing.T) {
	client := mock.New()
	client.SeedChannel(ledgerclient.ChannelView{
		Account:            "rAcct",
		DestinationAccount: "rDest",
		ChannelID:          "CHAN1",
		Amount:             "5000",
		SettleDelay:        int64(testSettleDelay/time.Second) + 10,
		PublicKey:          "pub-1",
	})
	err := Verify(context.Background(), client, baseClaim(), testSettleDelay, true)
	require.Error(t, err)
	assert.True(t, claimerr.Is(err, claimerr.NoMatchingChannel))
}

func TestVerify_SettleDelayGreaterAcceptedUnderGreaterEqual(t *testing.T) {
	client := mock.New()
	client.SeedChannel(ledgerclient.ChannelView{
		Account:            "rAcct",
		DestinationAccount: "rDest",
		ChannelID:          "CHAN1",
		Amount:             "5000",
		SettleDelay:        int64(testSettleDelay/time.Second) + 10,
		PublicKey:          "pub-1",
	})
	client.AcceptSignature("sig-1")
	err := Verify(context.Background(), client, baseClaim(), testSettleDelay, false)
	assert.NoError(t, err)
}

func TestVerify_ExpirableChannelRejected(t *testing.T) {
	client := mock.New()
	client.SeedChannel(ledgerclient.ChannelView{
		Account:            "rAcct",
		DestinationAccount: "rDest",
		ChannelID:          "CHAN1",
		Amount:             "5000",
		SettleDelay:        int64(testSettleDelay / time.Second),
		PublicKey:          "pub-1",
		HasCancelAfter:     true,
	})
	client.AcceptSignature("sig-1")

	err := Verify(context.Background(), client, baseClaim(), testSettleDelay, true)
	require.Error(t, err)
	assert.True(t, claimerr.Is(err, claimerr.ExpirableChannel))
}

func TestVerify_SignatureInvalid(t *testing.T) {
	client := mock.New()
	client.SeedChannel(ledgerclient.ChannelView{
		Account:            "rAcct",
		DestinationAccount: "rDest",
		ChannelID:          "CHAN1",
		Amount:             "5000",
		SettleDelay:        int64(testSettleDelay / time.Second),
		PublicKey:          "pub-1",
	})
	// signature not accepted

	err := Verify(context.Background(), client, baseClaim(), testSettleDelay, true)
	require.Error(t, err)
	assert.True(t, claimerr.Is(err, claimerr.SignatureInvalid))
}

func TestVerify_MalformedAuthorizedToClaim(t *testing.T) {
	client := mock.New()
	c := baseClaim()
	c.AuthorizedToClaim = "not-a-number"
	err := Verify(context.Background(), client, c, testSettleDelay, true)
	require.Error(t, err)
	assert.True(t, claimerr.Is(err, claimerr.MalformedClaim))
}

func TestVerify_InvocatesListChannelsAndVerifySignatureExactlyOnce(t *testing.T) {
	client := mock.New()
	client.SeedChannel(ledgerclient.ChannelView{
		Account:            "rAcct",
		DestinationAccount: "rDest",
		ChannelID:          "CHAN1",
		Amount:             "5000",
		SettleDelay:        int64(testSettleDelay / time.Second),
		PublicKey:          "pub-1",
	})
	client.AcceptSignature("sig-1")

	require.NoError(t, Verify(context.Background(), client, baseClaim(), testSettleDelay, true))
	assert.Equal(t, 1, client.ListChannelsCallCount())
	assert.Equal(t, 1, client.VerifySignatureCallCount())
}
