package sale

import (
	"fmt"
	"math/big"
	"time"
)

// RateSource identifies which pricing strategy produced a quote. The three
// strategies are evaluated in fixed priority order: base, oracle, manual.
type RateSource string

const (
	// RateSourceBase marks the fixed base rate; the base leg never consults
	// an oracle.
	RateSourceBase RateSource = "base"
	// RateSourceOracle marks an oracle-derived cross rate.
	RateSourceOracle RateSource = "oracle"
	// RateSourceManual marks the manually configured per-asset rate.
	RateSourceManual RateSource = "manual"
)

// Quote is the outcome of rate resolution: sale-asset units per one unit of
// the payment asset, the payment asset's unit scale, and the strategy used.
type Quote struct {
	Rate     *big.Int
	Decimals uint8
	Source   RateSource
}

// Copy returns a deep copy.
func (q Quote) Copy() Quote {
	return Quote{Rate: copyOrZero(q.Rate), Decimals: q.Decimals, Source: q.Source}
}

// FallbackHook observes oracle cross-rate failures absorbed by the
// manual-rate fallback, so operators can alert on silent degradation.
type FallbackHook func(asset [20]byte, cause error)

// Resolver selects the applicable exchange rate for a payment asset. Reads
// and purchases share the same instance, so a quote never differs from the
// rate a concurrent purchase would receive.
type Resolver struct {
	policy   *PolicyStore
	feeds    *FeedRegistry
	clock    func() time.Time
	fallback FallbackHook
}

// NewResolver constructs a resolver over the policy store and feed registry.
func NewResolver(policy *PolicyStore, feeds *FeedRegistry) *Resolver {
	return &Resolver{policy: policy, feeds: feeds, clock: time.Now}
}

// SetClock overrides the time source, enabling deterministic unit tests.
func (r *Resolver) SetClock(clock func() time.Time) {
	if r == nil || clock == nil {
		return
	}
	r.clock = clock
}

// SetFallbackHook installs an observer for absorbed oracle failures.
func (r *Resolver) SetFallbackHook(hook FallbackHook) {
	if r == nil {
		return
	}
	r.fallback = hook
}

// ResolveRate produces the current exchange rate for the payment asset.
//
// Priority order: the base rate when the asset is the base asset, then the
// oracle cross rate when a binding is enabled, then the manual rate. Any
// oracle failure degrades silently to the manual rate: a misbehaving feed
// must never halt sales. The returned manual rate may be zero when never
// configured; callers fail downstream on the zero-amount check.
func (r *Resolver) ResolveRate(asset [20]byte) (Quote, error) {
	if r == nil {
		return Quote{}, fmt.Errorf("rate resolver not initialised")
	}
	cfg, _, err := r.policy.Asset(asset)
	if err != nil {
		return Quote{}, err
	}
	decimals := cfg.Decimals

	base, ok, err := r.policy.BaseRate()
	if err != nil {
		return Quote{}, err
	}
	if ok && base.Asset == asset && base.Rate != nil && base.Rate.Sign() > 0 {
		return Quote{Rate: new(big.Int).Set(base.Rate), Decimals: decimals, Source: RateSourceBase}, nil
	}

	binding, ok, err := r.policy.OracleBinding(asset)
	if err != nil {
		return Quote{}, err
	}
	if enabledBinding(binding, ok) {
		rate, crossErr := r.CrossRate(asset)
		if crossErr == nil {
			return Quote{Rate: rate, Decimals: decimals, Source: RateSourceOracle}, nil
		}
		if r.fallback != nil {
			r.fallback(asset, crossErr)
		}
	}

	return Quote{Rate: copyOrZero(cfg.Rate), Decimals: decimals, Source: RateSourceManual}, nil
}
