// Package cost implements the pure pricing functions that turn a single
// request's measured resource usage into a dollar cost, and dollars into
// drops, with no dependency on the store or ledger.
package cost

import "github.com/dhali/claimengine/internal/claimerr"

// Config carries the pricing constants a deployment can tune. The zero
// value is not valid; callers get one from internal/config.
type Config struct {
	// PricePerGiBSecond is the base price, in dollars, per GiB-second of
	// memory reserved for the request's runtime.
	PricePerGiBSecond float64
	// FudgeFactor multiplies the computed cost; must be >= 1.
	FudgeFactor float64
	// DropsPerDollar is the exchange rate used by DollarsToDrops.
	DropsPerDollar float64
	// MachineClasses maps a recognised machine_type name to its memory
	// reservation in GiB.
	MachineClasses map[string]float64
}

// DollarsForRequest computes the dollar cost of one request given its
// measured runtime and payload sizes, rejecting negative inputs and
// unrecognised machine types.
func DollarsForRequest(cfg Config, runtimeMS float64, machineType string, requestBytes, responseBytes int64) (float64, error) {
	if runtimeMS < 0 {
		return 0, claimerr.New(claimerr.InvalidInput, "runtime_ms must not be negative")
	}
	if requestBytes < 0 {
		return 0, claimerr.New(claimerr.InvalidInput, "request_size_bytes must not be negative")
	}
	if responseBytes < 0 {
		return 0, claimerr.New(claimerr.InvalidInput, "response_size_bytes must not be negative")
	}
	memoryGiB, ok := cfg.MachineClasses[machineType]
	if !ok {
		return 0, claimerr.New(claimerr.InvalidInput, "unrecognised machine_type: "+machineType)
	}
	if cfg.FudgeFactor < 1 {
		return 0, claimerr.New(claimerr.InvalidInput, "fudge_factor must be >= 1")
	}

	dollars := cfg.PricePerGiBSecond * cfg.FudgeFactor * memoryGiB *
		runtimeMS * float64(requestBytes) * float64(responseBytes) / 1000
	return dollars, nil
}

// DollarsToDrops converts a dollar amount into drops at the configured
// exchange rate, rejecting negative input.
func DollarsToDrops(cfg Config, dollars float64) (float64, error) {
	if dollars < 0 {
		return 0, claimerr.New(claimerr.InvalidInput, "dollars must not be negative")
	}
	return dollars * cfg.DropsPerDollar, nil
}

// DefaultPricePerGiBSecond is spec's fixed base price.
const DefaultPricePerGiBSecond = 2.905e-6

// DefaultFudgeFactor is the default multiplier applied to computed cost.
const DefaultFudgeFactor = 5

// DefaultDropsPerDollar is the default dollars->drops exchange rate.
const DefaultDropsPerDollar = 2.5
