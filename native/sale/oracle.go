package sale

import (
	"fmt"
	"math/big"
)

var scaleOne = new(big.Int).Exp(big.NewInt(10), big.NewInt(SaleAssetDecimals), nil)

// normalisePrice scales a positive feed price to the common 18-decimal scale.
// Down-scaling uses integer division; the truncation is accepted precision
// loss.
func normalisePrice(price *big.Int, decimals uint8) *big.Int {
	normalised := new(big.Int).Set(price)
	switch {
	case decimals < SaleAssetDecimals:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(SaleAssetDecimals-decimals)), nil)
		normalised.Mul(normalised, factor)
	case decimals > SaleAssetDecimals:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-SaleAssetDecimals)), nil)
		normalised.Quo(normalised, factor)
	}
	return normalised
}

type feedSample struct {
	price     *big.Int
	decimals  uint8
	updatedAt int64
}

func (r *Resolver) sampleFeed(feedID string) (feedSample, error) {
	feed, ok := r.feeds.Lookup(feedID)
	if !ok {
		return feedSample{}, fmt.Errorf("%w: feed %q not registered", ErrOracleUnavailable, feedID)
	}
	round, err := feed.LatestRoundData()
	if err != nil {
		return feedSample{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return feedSample{}, fmt.Errorf("%w: non-positive answer", ErrOraclePriceInvalid)
	}
	if round.UpdatedAt <= 0 {
		return feedSample{}, fmt.Errorf("%w: missing update timestamp", ErrOraclePriceInvalid)
	}
	decimals, err := feed.Decimals()
	if err != nil {
		return feedSample{}, fmt.Errorf("%w: decimals: %v", ErrOracleUnavailable, err)
	}
	return feedSample{price: round.Answer, decimals: decimals, updatedAt: round.UpdatedAt}, nil
}

func enabledBinding(binding OracleBinding, ok bool) bool {
	return ok && binding.Enabled && binding.FeedID != ""
}

// CrossRate derives the oracle cross rate for the payment asset: the base
// rate scaled by the ratio of the asset's price to the base asset's price,
// both quoted against the feeds' common reference. The computation uses
// integer arithmetic with a single final division.
//
// CrossRate is a pure read: purchase-path fallback and direct callers observe
// exactly the same failure conditions.
func (r *Resolver) CrossRate(asset [20]byte) (*big.Int, error) {
	if r == nil {
		return nil, fmt.Errorf("rate resolver not initialised")
	}
	base, ok, err := r.policy.BaseRate()
	if err != nil {
		return nil, err
	}
	if !ok || base.Rate == nil || base.Rate.Sign() <= 0 {
		return nil, fmt.Errorf("%w: base rate not set", ErrOracleNotConfigured)
	}
	binding, ok, err := r.policy.OracleBinding(asset)
	if err != nil {
		return nil, err
	}
	if !enabledBinding(binding, ok) {
		return nil, fmt.Errorf("%w: payment asset", ErrOracleNotConfigured)
	}
	baseBinding, ok, err := r.policy.OracleBinding(base.Asset)
	if err != nil {
		return nil, err
	}
	if !enabledBinding(baseBinding, ok) {
		return nil, fmt.Errorf("%w: base asset", ErrOracleNotConfigured)
	}

	assetSample, err := r.sampleFeed(binding.FeedID)
	if err != nil {
		return nil, err
	}
	baseSample, err := r.sampleFeed(baseBinding.FeedID)
	if err != nil {
		return nil, err
	}

	threshold := binding.StalenessSeconds
	if threshold == 0 {
		threshold, err = r.policy.DefaultStaleness()
		if err != nil {
			return nil, err
		}
	}
	now := r.clock().Unix()
	for _, sample := range []feedSample{assetSample, baseSample} {
		if age := now - sample.updatedAt; age > int64(threshold) {
			return nil, fmt.Errorf("%w: sample is %ds old, threshold %ds", ErrOracleStale, age, threshold)
		}
	}

	assetPrice := normalisePrice(assetSample.price, assetSample.decimals)
	basePrice := normalisePrice(baseSample.price, baseSample.decimals)
	if basePrice.Sign() <= 0 {
		return nil, fmt.Errorf("%w: base price truncated to zero", ErrOraclePriceInvalid)
	}
	rate := new(big.Int).Mul(base.Rate, assetPrice)
	rate.Quo(rate, basePrice)
	if rate.Sign() <= 0 {
		return nil, ErrCrossRateZero
	}
	return rate, nil
}
