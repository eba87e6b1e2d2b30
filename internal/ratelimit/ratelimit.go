// Package ratelimit implements the closed set of admission-control
// strategies a validator can apply before accepting a claim, as a Go
// interface rather than a class hierarchy.
package ratelimit

import (
	"time"

	"github.com/dhali/claimengine/internal/claimerr"
)

// Context is the admission snapshot a Strategy decides against. It carries
// only what the caller already knows from the current transaction, so a
// Strategy never reaches back into the store itself.
type Context struct {
	NumberOfClaimsStaged          int64
	NumberOfMetadataUpdatesStaged int64
	// Timestamp is when the counters above were last reset (the staged
	// record's own timestamp field), Now is the caller's current time.
	// A buffer only limits within Window of that reset.
	Timestamp time.Time
	Now       time.Time
}

// Strategy decides whether a request should be refused admission.
type Strategy interface {
	ShouldLimit(ctx Context) bool
}

// Never never limits. It is the default strategy for channels with no
// configured rate limit.
type Never struct{}

func (Never) ShouldLimit(Context) bool { return false }

// StagedClaimBuffer limits admission once the number of staged (not yet
// reconciled) claims for a channel reaches Limit, as long as that count was
// last reset less than Window ago — an old, stale count past its window no
// longer limits, since a fresh window is presumed to have started.
type StagedClaimBuffer struct {
	Limit  int64
	Window time.Duration
}

func (s StagedClaimBuffer) ShouldLimit(ctx Context) bool {
	return ctx.NumberOfClaimsStaged >= s.Limit && ctx.Now.Sub(ctx.Timestamp) < s.Window
}

// StagedMetadataBuffer limits admission once the number of staged
// per-request metadata updates reaches Limit within Window, under the same
// freshness rule as StagedClaimBuffer.
type StagedMetadataBuffer struct {
	Limit  int64
	Window time.Duration
}

func (s StagedMetadataBuffer) ShouldLimit(ctx Context) bool {
	return ctx.NumberOfMetadataUpdatesStaged >= s.Limit && ctx.Now.Sub(ctx.Timestamp) < s.Window
}

// Limiter evaluates a single Strategy and translates a positive decision
// into the engine's error taxonomy.
type Limiter struct {
	Strategy Strategy
}

// Check returns claimerr.RateLimited if the configured strategy fires for
// ctx, nil otherwise.
func (l Limiter) Check(ctx Context) error {
	if l.Strategy == nil {
		return nil
	}
	if l.Strategy.ShouldLimit(ctx) {
		return claimerr.New(claimerr.RateLimited, "rate limit strategy refused admission of this request")
	}
	return nil
}
