// Package ledgerclient defines the seam to the on-ledger RPC service used
// to list a payment channel's state and verify a claim's signature. This
// package fixes only the request/response shapes of spec §4.2/§6;
// production uses a JSON-RPC transport (internal/ledgerclient/jsonrpc),
// tests inject a deterministic one (internal/ledgerclient/mock).
package ledgerclient

import "context"

// ChannelView mirrors the subset of an XRPL account_channels entry the
// engine cares about.
type ChannelView struct {
	Account            string
	DestinationAccount string
	ChannelID          string
	Amount             string // decimal drops, as a string
	SettleDelay        int64  // seconds
	PublicKey          string
	HasCancelAfter     bool
}

// Client is the ledger RPC seam. Implementations must be safe for
// concurrent use — the engine shares one Client across all requests.
type Client interface {
	// ListChannels returns every channel the ledger reports from account
	// to destination. An empty result (not an error) means no channel
	// was found.
	ListChannels(ctx context.Context, account, destinationAccount string) ([]ChannelView, error)

	// VerifySignature asks the ledger whether signature authorises amount
	// drops to be claimed from channelID under publicKey.
	VerifySignature(ctx context.Context, channelID, amount, publicKey, signature string) (bool, error)
}
