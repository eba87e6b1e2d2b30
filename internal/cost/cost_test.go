package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhali/claimengine/internal/claimerr"
)

func testConfig() Config {
	return Config{
		PricePerGiBSecond: DefaultPricePerGiBSecond,
		FudgeFactor:       DefaultFudgeFactor,
		DropsPerDollar:    DefaultDropsPerDollar,
		MachineClasses:    map[string]float64{"standard": 1},
	}
}

func TestDollarsForRequest_ComputesExpectedFormula(t *testing.T) {
	cfg := testConfig()
	got, err := DollarsForRequest(cfg, 100, "standard", 10, 20)
	require.NoError(t, err)

	want := DefaultPricePerGiBSecond * DefaultFudgeFactor * 1 * 100 * 10 * 20 / 1000
	assert.InDelta(t, want, got, 1e-12)
}

func TestDollarsForRequest_RejectsNegativeRuntime(t *testing.T) {
	_, err := DollarsForRequest(testConfig(), -1, "standard", 1, 1)
	require.Error(t, err)
	assert.True(t, claimerr.Is(err, claimerr.InvalidInput))
}

func TestDollarsForRequest_RejectsNegativeRequestBytes(t *testing.T) {
	_, err := DollarsForRequest(testConfig(), 1, "standard", -1, 1)
	assert.True(t, claimerr.Is(err, claimerr.InvalidInput))
}

func TestDollarsForRequest_RejectsNegativeResponseBytes(t *testing.T) {
	_, err := DollarsForRequest(testConfig(), 1, "standard", 1, -1)
	assert.True(t, claimerr.Is(err, claimerr.InvalidInput))
}

func TestDollarsForRequest_RejectsUnknownMachineType(t *testing.T) {
	_, err := DollarsForRequest(testConfig(), 1, "gpu-xl", 1, 1)
	require.Error(t, err)
	assert.True(t, claimerr.Is(err, claimerr.InvalidInput))
}

func TestDollarsForRequest_RejectsFudgeFactorBelowOne(t *testing.T) {
	cfg := testConfig()
	cfg.FudgeFactor = 0.5
	_, err := DollarsForRequest(cfg, 1, "standard", 1, 1)
	assert.True(t, claimerr.Is(err, claimerr.InvalidInput))
}

func TestDollarsForRequest_ZeroCostIsValid(t *testing.T) {
	got, err := DollarsForRequest(testConfig(), 0, "standard", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, float64(0), got)
}

func TestDollarsToDrops_ConvertsAtConfiguredRate(t *testing.T) {
	got, err := DollarsToDrops(testConfig(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2*DefaultDropsPerDollar, got)
}

func TestDollarsToDrops_RejectsNegativeDollars(t *testing.T) {
	_, err := DollarsToDrops(testConfig(), -0.01)
	require.Error(t, err)
	assert.True(t, claimerr.Is(err, claimerr.InvalidInput))
}

func TestDollarsToDrops_ZeroIsValid(t *testing.T) {
	got, err := DollarsToDrops(testConfig(), 0)
	require.NoError(t, err)
	assert.Equal(t, float64(0), got)
}
