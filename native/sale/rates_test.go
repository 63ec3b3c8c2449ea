package sale

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

// crossEnv wires a base asset priced by one feed and a payment asset priced
// by another, the minimum topology for a cross rate.
func crossEnv(t *testing.T) (*saleEnv, [20]byte, [20]byte, *StaticFeed, *StaticFeed) {
	t.Helper()
	env := newSaleEnv(t)
	base := addr(0x04)
	asset := addr(0x05)

	if err := env.engine.RegisterAsset(base, bi(t, "1000000000000000000"), 18); err != nil {
		t.Fatalf("register base: %v", err)
	}
	if err := env.engine.RegisterAsset(asset, bi(t, "5000000000000000000"), 18); err != nil {
		t.Fatalf("register asset: %v", err)
	}
	if err := env.engine.SetBase(base, bi(t, "1000000000000000000")); err != nil {
		t.Fatalf("set base: %v", err)
	}

	baseFeed := NewStaticFeed(8, "eur/usd")
	baseFeed.SetRound(bi(t, "110000000"), env.now) // 1.10 at eight decimals
	assetFeed := NewStaticFeed(8, "eth/usd")
	assetFeed.SetRound(bi(t, "300000000000"), env.now) // 3000 at eight decimals
	if err := env.feeds.Register("eur-usd", baseFeed); err != nil {
		t.Fatalf("register base feed: %v", err)
	}
	if err := env.feeds.Register("eth-usd", assetFeed); err != nil {
		t.Fatalf("register asset feed: %v", err)
	}
	if err := env.policy.SetOracleBinding(base, OracleBinding{FeedID: "eur-usd", Enabled: true}); err != nil {
		t.Fatalf("bind base: %v", err)
	}
	if err := env.policy.SetOracleBinding(asset, OracleBinding{FeedID: "eth-usd", Enabled: true}); err != nil {
		t.Fatalf("bind asset: %v", err)
	}
	return env, base, asset, baseFeed, assetFeed
}

func TestResolveRateBaseAssetNeverConsultsOracle(t *testing.T) {
	env, base, _, baseFeed, _ := crossEnv(t)
	// A dead feed on the base asset must not matter for the base leg.
	baseFeed.Fail(errors.New("gone"))

	quote, err := env.resolve.ResolveRate(base)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if quote.Source != RateSourceBase {
		t.Fatalf("source = %q", quote.Source)
	}
	if quote.Rate.String() != "1000000000000000000" {
		t.Fatalf("rate = %s", quote.Rate)
	}
}

func TestResolveRateOracleCross(t *testing.T) {
	env, _, asset, _, _ := crossEnv(t)

	quote, err := env.resolve.ResolveRate(asset)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if quote.Source != RateSourceOracle {
		t.Fatalf("source = %q", quote.Source)
	}
	// 1e18 * (3000/1.10), truncated.
	want := bi(t, "2727272727272727272727")
	if quote.Rate.Cmp(want) != 0 {
		t.Fatalf("rate = %s, want %s", quote.Rate, want)
	}
	if quote.Decimals != 18 {
		t.Fatalf("decimals = %d", quote.Decimals)
	}
}

func TestResolveRateFallsBackOnInvalidPrice(t *testing.T) {
	env, _, asset, _, assetFeed := crossEnv(t)
	assetFeed.SetRound(big.NewInt(-1), env.now)

	var observedAsset [20]byte
	var observedCause error
	env.resolve.SetFallbackHook(func(a [20]byte, cause error) {
		observedAsset = a
		observedCause = cause
	})

	quote, err := env.resolve.ResolveRate(asset)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if quote.Source != RateSourceManual {
		t.Fatalf("source = %q", quote.Source)
	}
	if quote.Rate.String() != "5000000000000000000" {
		t.Fatalf("rate = %s", quote.Rate)
	}
	if observedAsset != asset {
		t.Fatalf("hook asset = %x", observedAsset)
	}
	if !errors.Is(observedCause, ErrOraclePriceInvalid) {
		t.Fatalf("hook cause = %v", observedCause)
	}
}

func TestResolveRateFallsBackOnStaleSample(t *testing.T) {
	env, _, asset, _, _ := crossEnv(t)
	env.advance(time.Duration(DefaultStalenessSeconds+1) * time.Second)

	var observedCause error
	env.resolve.SetFallbackHook(func(_ [20]byte, cause error) { observedCause = cause })

	quote, err := env.resolve.ResolveRate(asset)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if quote.Source != RateSourceManual {
		t.Fatalf("source = %q", quote.Source)
	}
	if !errors.Is(observedCause, ErrOracleStale) {
		t.Fatalf("hook cause = %v", observedCause)
	}
}

func TestResolveRateFallsBackOnUnavailableFeed(t *testing.T) {
	env, _, asset, _, assetFeed := crossEnv(t)
	assetFeed.Fail(errors.New("connection refused"))

	var observedCause error
	env.resolve.SetFallbackHook(func(_ [20]byte, cause error) { observedCause = cause })

	quote, err := env.resolve.ResolveRate(asset)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if quote.Source != RateSourceManual {
		t.Fatalf("source = %q", quote.Source)
	}
	if !errors.Is(observedCause, ErrOracleUnavailable) {
		t.Fatalf("hook cause = %v", observedCause)
	}
}

func TestResolveRateDisabledBindingSkipsOracle(t *testing.T) {
	env, _, asset, _, _ := crossEnv(t)
	binding, _, _ := env.policy.OracleBinding(asset)
	binding.Enabled = false
	if err := env.policy.SetOracleBinding(asset, binding); err != nil {
		t.Fatalf("disable binding: %v", err)
	}

	hookCalled := false
	env.resolve.SetFallbackHook(func(_ [20]byte, _ error) { hookCalled = true })

	quote, err := env.resolve.ResolveRate(asset)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if quote.Source != RateSourceManual {
		t.Fatalf("source = %q", quote.Source)
	}
	// A disabled binding is not a failure, so no fallback is observed.
	if hookCalled {
		t.Fatalf("fallback hook fired for disabled binding")
	}
}

func TestResolveRateManualZeroWhenNeverConfigured(t *testing.T) {
	env := newSaleEnv(t)
	quote, err := env.resolve.ResolveRate(addr(0x07))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if quote.Source != RateSourceManual {
		t.Fatalf("source = %q", quote.Source)
	}
	if quote.Rate.Sign() != 0 {
		t.Fatalf("rate = %s, want zero", quote.Rate)
	}
}
