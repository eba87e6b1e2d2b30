// Package ledgerverify implements the matching and signature-verification
// policy of spec §4.2 against an injected ledgerclient.Client.
package ledgerverify

import (
	"context"
	"strconv"
	"time"

	"github.com/dhali/claimengine/internal/claim"
	"github.com/dhali/claimengine/internal/claimerr"
	"github.com/dhali/claimengine/internal/ledgerclient"
)

// Verify checks c against the ledger's reported channel state and
// signature, under a required settle delay.
//
// requireEqualSettleDelay pins the stored-settle-delay contract: the
// engine always passes true (equality), per spec §9 Open Question (c) —
// comparing with ">=" as the client-side channel-open helper does would
// let a channel with a shorter settle delay than configured silently pass,
// which is a downgrade attack against the marketplace's safety margin.
func Verify(ctx context.Context, client ledgerclient.Client, c claim.Claim, settleDelay time.Duration, requireEqualSettleDelay bool) error {
	authorized, err := strconv.ParseInt(c.AuthorizedToClaim, 10, 64)
	if err != nil {
		return claimerr.Wrap(claimerr.MalformedClaim, "authorized_to_claim is not a valid integer", err)
	}

	channels, err := client.ListChannels(ctx, c.Account, c.DestinationAccount)
	if err != nil {
		return err
	}

	wantDelaySeconds := int64(settleDelay / time.Second)

	var matched *ledgerclient.ChannelView
	for i := range channels {
		ch := &channels[i]
		if ch.ChannelID != c.ChannelID {
			continue
		}
		if ch.Account != c.Account || ch.DestinationAccount != c.DestinationAccount {
			continue
		}
		if ch.HasCancelAfter {
			// Expirable channels are rejected unconditionally for
			// safety, even if every other field matches.
			continue
		}
		amount, err := strconv.ParseInt(ch.Amount, 10, 64)
		if err != nil || amount < authorized {
			continue
		}
		delayOK := ch.SettleDelay == wantDelaySeconds
		if !requireEqualSettleDelay {
			delayOK = ch.SettleDelay >= wantDelaySeconds
		}
		if !delayOK {
			continue
		}
		matched = ch
		break
	}

	if matched == nil {
		if channelHasOnlyExpirableMatch(channels, c) {
			return claimerr.New(claimerr.ExpirableChannel, "the matching channel is expirable and is rejected for safety")
		}
		return claimerr.New(claimerr.NoMatchingChannel, "no open channel matches this claim's account, destination, channel id, amount and settle delay")
	}

	verified, err := client.VerifySignature(ctx, c.ChannelID, c.AuthorizedToClaim, matched.PublicKey, c.Signature)
	if err != nil {
		return err
	}
	if !verified {
		return claimerr.New(claimerr.SignatureInvalid, "the claim's signature could not be verified against the matching channel's public key")
	}

	return nil
}

// channelHasOnlyExpirableMatch distinguishes "no channel at all matched"
// from "a channel matched on channel id, account, destination and amount
// but is expirable", so callers can surface the more specific
// ExpirableChannel error. Settle delay is not checked here.
func channelHasOnlyExpirableMatch(channels []ledgerclient.ChannelView, c claim.Claim) bool {
	authorized, err := strconv.ParseInt(c.AuthorizedToClaim, 10, 64)
	if err != nil {
		return false
	}
	for _, ch := range channels {
		if ch.ChannelID != c.ChannelID || ch.Account != c.Account || ch.DestinationAccount != c.DestinationAccount {
			continue
		}
		amount, err := strconv.ParseInt(ch.Amount, 10, 64)
		if err != nil || amount < authorized {
			continue
		}
		if ch.HasCancelAfter {
			return true
		}
	}
	return false
}
