// Package claim decodes and canonicalises payment-claim payloads.
//
// A claim authorises the destination account of a payment channel to
// withdraw up to authorized_to_claim drops from that channel. This package
// performs no cryptographic verification — that is internal/ledgerverify's
// job — it only parses the wire payload and gives callers a stable
// canonical form to compare claims for equality.
package claim

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/dhali/claimengine/internal/claimerr"
)

// Claim is the in-memory representation of a payment-claim payload. All
// five fields are mandatory on the wire.
type Claim struct {
	Account            string `json:"account"`
	DestinationAccount string `json:"destination_account"`
	AuthorizedToClaim  string `json:"authorized_to_claim"`
	Signature          string `json:"signature"`
	ChannelID          string `json:"channel_id"`
}

// wireFields lists the five mandatory keys in the canonical order they are
// serialised in. This fixed order, rather than encoding/json's struct-tag
// order, is what the cache-hit check in internal/validator relies on.
var wireFields = []string{
	"account",
	"authorized_to_claim",
	"channel_id",
	"destination_account",
	"signature",
}

// Parse decodes a claim payload and verifies all five mandatory fields are
// present as JSON strings; an empty string is accepted. It performs no
// cryptographic or ledger work.
func Parse(raw []byte) (Claim, error) {
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Claim{}, claimerr.Wrap(claimerr.MalformedClaim, "claim payload is not valid JSON", err)
	}

	get := func(key string) (string, bool) {
		v, ok := generic[key]
		if !ok {
			return "", false
		}
		s, ok := v.(string)
		return s, ok
	}

	account, ok1 := get("account")
	destination, ok2 := get("destination_account")
	authorized, ok3 := get("authorized_to_claim")
	signature, ok4 := get("signature")
	channelID, ok5 := get("channel_id")

	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return Claim{}, claimerr.New(claimerr.MalformedClaim,
			"claim must provide account, destination_account, authorized_to_claim, signature and channel_id as strings")
	}

	return Claim{
		Account:            account,
		DestinationAccount: destination,
		AuthorizedToClaim:  authorized,
		Signature:          signature,
		ChannelID:          channelID,
	}, nil
}

// Canonical serialises a claim with a fixed key order and no incidental
// whitespace. Two claims are equal iff their canonical forms are
// byte-identical.
func Canonical(c Claim) (string, error) {
	ordered := map[string]string{
		"account":             c.Account,
		"authorized_to_claim": c.AuthorizedToClaim,
		"channel_id":          c.ChannelID,
		"destination_account": c.DestinationAccount,
		"signature":           c.Signature,
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range wireFields {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return "", err
		}
		valJSON, err := json.Marshal(ordered[key])
		if err != nil {
			return "", err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// Equal compares two canonical (or raw) claim strings, ignoring
// insignificant whitespace. Canonical forms produced by Canonical are
// already whitespace-free; this also tolerates raw claim JSON handed in
// directly by callers that skipped canonicalisation.
func Equal(a, b string) bool {
	return stripWhitespace(a) == stripWhitespace(b)
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CID derives the stable, deterministic channel document id from an
// on-ledger channel id string, matching the namespaced-hash scheme the
// system originally used (Python's uuid.uuid5(NAMESPACE_URL, channel_id)).
func CID(channelID string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(channelID))
}
