package sale

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func TestNormalisePrice(t *testing.T) {
	cases := []struct {
		name     string
		price    string
		decimals uint8
		want     string
	}{
		{"upscale from eight", "300000000000", 8, "3000000000000000000000"},
		{"already normalised", "3000000000000000000000", 18, "3000000000000000000000"},
		{"downscale truncates", "123456789012345678901234567", 25, "12345678901234567890"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := normalisePrice(bi(t, tc.price), tc.decimals)
			if got.String() != tc.want {
				t.Fatalf("normalisePrice = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCrossRateRequiresBaseRate(t *testing.T) {
	env := newSaleEnv(t)
	_, err := env.resolve.CrossRate(addr(0x05))
	if !errors.Is(err, ErrOracleNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}

func TestCrossRateRequiresBothBindings(t *testing.T) {
	env, base, asset, _, _ := crossEnv(t)

	if err := env.policy.RemoveOracleBinding(asset); err != nil {
		t.Fatalf("remove asset binding: %v", err)
	}
	if _, err := env.resolve.CrossRate(asset); !errors.Is(err, ErrOracleNotConfigured) {
		t.Fatalf("missing asset binding err = %v", err)
	}

	if err := env.policy.SetOracleBinding(asset, OracleBinding{FeedID: "eth-usd", Enabled: true}); err != nil {
		t.Fatalf("restore asset binding: %v", err)
	}
	if err := env.policy.RemoveOracleBinding(base); err != nil {
		t.Fatalf("remove base binding: %v", err)
	}
	if _, err := env.resolve.CrossRate(asset); !errors.Is(err, ErrOracleNotConfigured) {
		t.Fatalf("missing base binding err = %v", err)
	}
}

func TestCrossRateStalenessOverride(t *testing.T) {
	env, _, asset, _, _ := crossEnv(t)

	// A 60 second override is tighter than the process default.
	binding, _, _ := env.policy.OracleBinding(asset)
	binding.StalenessSeconds = 60
	if err := env.policy.SetOracleBinding(asset, binding); err != nil {
		t.Fatalf("set binding: %v", err)
	}

	env.advance(61 * time.Second)
	if _, err := env.resolve.CrossRate(asset); !errors.Is(err, ErrOracleStale) {
		t.Fatalf("override err = %v", err)
	}

	// Removing the override restores the default window, under which the
	// same samples are still fresh.
	binding.StalenessSeconds = 0
	if err := env.policy.SetOracleBinding(asset, binding); err != nil {
		t.Fatalf("clear override: %v", err)
	}
	if _, err := env.resolve.CrossRate(asset); err != nil {
		t.Fatalf("default window: %v", err)
	}
}

func TestCrossRateStaleBaseSampleRejected(t *testing.T) {
	env, _, asset, baseFeed, assetFeed := crossEnv(t)

	env.advance(time.Duration(DefaultStalenessSeconds+100) * time.Second)
	assetFeed.SetRound(bi(t, "300000000000"), env.now)
	// Base feed keeps its old round.
	_ = baseFeed

	if _, err := env.resolve.CrossRate(asset); !errors.Is(err, ErrOracleStale) {
		t.Fatalf("err = %v", err)
	}
}

func TestCrossRateRejectsNonPositiveAnswers(t *testing.T) {
	env, _, asset, _, assetFeed := crossEnv(t)

	assetFeed.SetRound(big.NewInt(0), env.now)
	if _, err := env.resolve.CrossRate(asset); !errors.Is(err, ErrOraclePriceInvalid) {
		t.Fatalf("zero answer err = %v", err)
	}

	assetFeed.SetRound(big.NewInt(-5), env.now)
	if _, err := env.resolve.CrossRate(asset); !errors.Is(err, ErrOraclePriceInvalid) {
		t.Fatalf("negative answer err = %v", err)
	}
}

func TestCrossRateExactComputation(t *testing.T) {
	env, _, asset, _, _ := crossEnv(t)
	rate, err := env.resolve.CrossRate(asset)
	if err != nil {
		t.Fatalf("cross rate: %v", err)
	}
	want := bi(t, "2727272727272727272727")
	if rate.Cmp(want) != 0 {
		t.Fatalf("rate = %s, want %s", rate, want)
	}
}

func TestCrossRateMixedFeedDecimals(t *testing.T) {
	env, base, asset, _, _ := crossEnv(t)

	// Re-bind the base leg to an eighteen-decimal feed; the asset leg stays
	// at eight. Both normalise to the same scale before dividing.
	wideBase := NewStaticFeed(18, "eur/usd wide")
	wideBase.SetRound(bi(t, "1100000000000000000"), env.now)
	if err := env.feeds.Register("eur-usd-wide", wideBase); err != nil {
		t.Fatalf("register feed: %v", err)
	}
	if err := env.policy.SetOracleBinding(base, OracleBinding{FeedID: "eur-usd-wide", Enabled: true}); err != nil {
		t.Fatalf("rebind base: %v", err)
	}

	rate, err := env.resolve.CrossRate(asset)
	if err != nil {
		t.Fatalf("cross rate: %v", err)
	}
	want := bi(t, "2727272727272727272727")
	if rate.Cmp(want) != 0 {
		t.Fatalf("rate = %s, want %s", rate, want)
	}
}
