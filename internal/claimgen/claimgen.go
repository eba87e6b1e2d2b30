// Package claimgen is a client-side helper for opening a payment channel
// and assembling a payment claim against it — the wallet/channel-open side
// of spec.md §6's wire contract. This is explicitly out of the engine's own
// scope (spec.md §1 names "wallet creation and channel-open helpers" as
// external collaborators) and is not imported by any engine package; it is
// kept here, grounded on original_source/src/dhali/payment_claim_generator.py,
// because it documents the shapes internal/ledgerverify and
// internal/ledgerclient/jsonrpc consume from the other side of the wire.
package claimgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dhali/claimengine/internal/claim"
)

// PaymentChannelCreateRequest mirrors the XRPL PaymentChannelCreate
// transaction fields payment_claim_generator.py submits when opening a new
// channel to a destination.
type PaymentChannelCreateRequest struct {
	Account            string `json:"account"`
	Amount             string `json:"amount"`
	Destination        string `json:"destination"`
	PublicKey          string `json:"public_key"`
	SettleDelay        int64  `json:"settle_delay"`
	LastLedgerSequence int64  `json:"last_ledger_sequence,omitempty"`
	Fee                string `json:"fee,omitempty"`
}

// ChannelAuthorizeRequest mirrors the XRPL channel_authorize RPC request,
// which signs an off-ledger claim against an already-open channel using the
// source wallet's secret.
type ChannelAuthorizeRequest struct {
	Amount    string `json:"amount"`
	ChannelID string `json:"channel_id"`
	Secret    string `json:"secret"`
}

type channelAuthorizeResponse struct {
	Result struct {
		Signature string `json:"signature"`
		Error     string `json:"error"`
	} `json:"result"`
}

// Client talks to an XRPL-compatible JSON-RPC endpoint to authorize claims
// against an already-open channel. It is deliberately separate from
// ledgerclient.Client: that interface is verify-only and never carries a
// wallet secret, while this one exists solely for the client side of claim
// generation.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New returns a Client posting requests to endpoint.
func New(endpoint string) *Client {
	return &Client{endpoint: endpoint, httpClient: &http.Client{Timeout: 10 * time.Second}}
}

// Authorize signs amount drops of channelID using secret and returns the
// resulting hex signature, ready to be embedded in a claim.Claim.
func (c *Client) Authorize(ctx context.Context, req ChannelAuthorizeRequest) (string, error) {
	body, err := json.Marshal(struct {
		Method string                    `json:"method"`
		Params [1]ChannelAuthorizeRequest `json:"params"`
	}{Method: "channel_authorize", Params: [1]ChannelAuthorizeRequest{req}})
	if err != nil {
		return "", fmt.Errorf("claimgen: marshal channel_authorize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("claimgen: build channel_authorize request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("claimgen: channel_authorize: %w", err)
	}
	defer resp.Body.Close()

	var out channelAuthorizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("claimgen: decode channel_authorize response: %w", err)
	}
	if out.Result.Error != "" {
		return "", fmt.Errorf("claimgen: channel_authorize: %s", out.Result.Error)
	}
	return out.Result.Signature, nil
}

// BuildClaim assembles a claim.Claim for channelID, authorizing
// authorizedToClaim drops from account to destination, signing it via c.
func (c *Client) BuildClaim(ctx context.Context, account, destination, channelID, authorizedToClaim, secret string) (claim.Claim, error) {
	signature, err := c.Authorize(ctx, ChannelAuthorizeRequest{
		Amount:    authorizedToClaim,
		ChannelID: channelID,
		Secret:    secret,
	})
	if err != nil {
		return claim.Claim{}, err
	}

	return claim.Claim{
		Account:            account,
		DestinationAccount: destination,
		AuthorizedToClaim:  authorizedToClaim,
		Signature:          signature,
		ChannelID:          channelID,
	}, nil
}
