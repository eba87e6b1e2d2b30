// Package dhaliclient is a thin client for invoking a Dhali marketplace
// asset, grounded on original_source/src/dhali/module.py's Module.run. Like
// internal/claimgen, this is an external-caller helper, not part of the
// engine itself (spec.md §1 scopes the engine to validating claims it
// receives, not to being the caller that sends them), and is not imported
// by any engine package.
package dhaliclient

import (
	"fmt"
	"io"
	"net/http"
)

// headerLatestCharge and headerTotalCharge are the response headers a Dhali
// gateway reports the per-request and cumulative cost of a run in, per
// spec.md §6.
const (
	headerPaymentClaim = "Payment-Claim"
	headerLatestCharge = "Dhali-Latest-Request-Charge"
	headerTotalCharge  = "Dhali-Total-Requests-Charge"
)

// Client invokes a single Dhali asset, authorizing each call with a
// payment claim carried in the Payment-Claim header.
type Client struct {
	// GatewayURL is the base gateway host, e.g.
	// "https://dhali-prod-run-dauenf0n.uc.gateway.dev".
	GatewayURL string
	HTTPClient *http.Client
}

// New returns a Client targeting gatewayURL with a default *http.Client.
func New(gatewayURL string) *Client {
	return &Client{GatewayURL: gatewayURL, HTTPClient: http.DefaultClient}
}

// Result carries a successful invocation's response body and the charge
// the gateway reports for it.
type Result struct {
	Body                io.ReadCloser
	LatestRequestCharge string
	TotalRequestsCharge string
	StatusCode          int
}

// Run sends input to the asset identified by assetUUID, authorized by
// paymentClaimJSON (the canonical claim.Canonical encoding of a claim). A
// 402 status in the returned Result means the claim was rejected; Run
// itself only errors on a transport failure.
func (c *Client) Run(assetUUID string, paymentClaimJSON string, input io.Reader) (*Result, error) {
	url := fmt.Sprintf("%s/%s/run/", c.GatewayURL, assetUUID)

	req, err := http.NewRequest(http.MethodPut, url, input)
	if err != nil {
		return nil, fmt.Errorf("dhaliclient: build request: %w", err)
	}
	req.Header.Set(headerPaymentClaim, paymentClaimJSON)

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dhaliclient: run %s: %w", assetUUID, err)
	}

	return &Result{
		Body:                resp.Body,
		LatestRequestCharge: resp.Header.Get(headerLatestCharge),
		TotalRequestsCharge: resp.Header.Get(headerTotalCharge),
		StatusCode:          resp.StatusCode,
	}, nil
}
