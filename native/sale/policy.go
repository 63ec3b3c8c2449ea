package sale

import (
	"fmt"
	"math/big"
)

// PolicyStore persists the asset registry, oracle bindings, base rate
// configuration, and the sale policy singleton.
type PolicyStore struct {
	store Storage
}

// NewPolicyStore constructs a policy store bound to the provided storage.
func NewPolicyStore(store Storage) *PolicyStore {
	return &PolicyStore{store: store}
}

type storedAssetConfig struct {
	Allowed  bool
	Rate     *big.Int
	Decimals uint8
}

type storedOracleBinding struct {
	FeedID           string
	Enabled          bool
	StalenessSeconds uint64
}

type storedBaseRate struct {
	Asset [20]byte
	Rate  *big.Int
}

type storedPolicy struct {
	WhitelistRequired bool
	HardCap           *big.Int
	MinPurchase       *big.Int
	GlobalMaxPerUser  *big.Int
	SaleStart         uint64
	SaleEnd           uint64
	Paused            bool
	Recipient         [20]byte
}

type flagRecord struct {
	Set bool
}

type amountRecord struct {
	Amount *big.Int
}

type uintRecord struct {
	Value uint64
}

// Asset returns the registration record for the given payment asset. Removed
// assets remain addressable with Allowed false.
func (p *PolicyStore) Asset(asset [20]byte) (AssetConfig, bool, error) {
	if p == nil {
		return AssetConfig{}, false, fmt.Errorf("policy store not initialised")
	}
	var stored storedAssetConfig
	ok, err := p.store.KVGet(assetKey(asset), &stored)
	if err != nil || !ok {
		return AssetConfig{}, false, err
	}
	cfg := AssetConfig{Allowed: stored.Allowed, Decimals: stored.Decimals}
	cfg.Rate = copyOrZero(stored.Rate)
	return cfg, true, nil
}

// SetAsset writes the registration record for the given payment asset.
func (p *PolicyStore) SetAsset(asset [20]byte, cfg AssetConfig) error {
	if p == nil {
		return fmt.Errorf("policy store not initialised")
	}
	stored := storedAssetConfig{
		Allowed:  cfg.Allowed,
		Rate:     copyOrZero(cfg.Rate),
		Decimals: cfg.Decimals,
	}
	return p.store.KVPut(assetKey(asset), stored)
}

// OracleBinding returns the oracle binding for the asset, if any.
func (p *PolicyStore) OracleBinding(asset [20]byte) (OracleBinding, bool, error) {
	if p == nil {
		return OracleBinding{}, false, fmt.Errorf("policy store not initialised")
	}
	var stored storedOracleBinding
	ok, err := p.store.KVGet(oracleKey(asset), &stored)
	if err != nil || !ok {
		return OracleBinding{}, false, err
	}
	return OracleBinding{
		FeedID:           stored.FeedID,
		Enabled:          stored.Enabled,
		StalenessSeconds: stored.StalenessSeconds,
	}, true, nil
}

// SetOracleBinding writes the oracle binding for the asset.
func (p *PolicyStore) SetOracleBinding(asset [20]byte, binding OracleBinding) error {
	if p == nil {
		return fmt.Errorf("policy store not initialised")
	}
	stored := storedOracleBinding{
		FeedID:           binding.FeedID,
		Enabled:          binding.Enabled,
		StalenessSeconds: binding.StalenessSeconds,
	}
	return p.store.KVPut(oracleKey(asset), stored)
}

// RemoveOracleBinding deletes the oracle binding for the asset.
func (p *PolicyStore) RemoveOracleBinding(asset [20]byte) error {
	if p == nil {
		return fmt.Errorf("policy store not initialised")
	}
	return p.store.KVDelete(oracleKey(asset))
}

// BaseRate returns the base asset/rate configuration, if set.
func (p *PolicyStore) BaseRate() (BaseRate, bool, error) {
	if p == nil {
		return BaseRate{}, false, fmt.Errorf("policy store not initialised")
	}
	var stored storedBaseRate
	ok, err := p.store.KVGet(baseRateKeyBytes, &stored)
	if err != nil || !ok {
		return BaseRate{}, false, err
	}
	base := BaseRate{Asset: stored.Asset}
	base.Rate = copyOrZero(stored.Rate)
	return base, true, nil
}

// SetBaseRate writes the base asset/rate configuration.
func (p *PolicyStore) SetBaseRate(base BaseRate) error {
	if p == nil {
		return fmt.Errorf("policy store not initialised")
	}
	stored := storedBaseRate{Asset: base.Asset, Rate: copyOrZero(base.Rate)}
	return p.store.KVPut(baseRateKeyBytes, stored)
}

// Policy returns the sale policy singleton, applying safe defaults when the
// record has never been written.
func (p *PolicyStore) Policy() (SalePolicy, error) {
	if p == nil {
		return SalePolicy{}, fmt.Errorf("policy store not initialised")
	}
	var stored storedPolicy
	ok, err := p.store.KVGet(policyKeyBytes, &stored)
	if err != nil {
		return SalePolicy{}, err
	}
	if !ok {
		return SalePolicy{
			HardCap:          big.NewInt(0),
			MinPurchase:      big.NewInt(0),
			GlobalMaxPerUser: big.NewInt(0),
		}, nil
	}
	policy := SalePolicy{
		WhitelistRequired: stored.WhitelistRequired,
		HardCap:           copyOrZero(stored.HardCap),
		MinPurchase:       copyOrZero(stored.MinPurchase),
		GlobalMaxPerUser:  copyOrZero(stored.GlobalMaxPerUser),
		SaleStart:         stored.SaleStart,
		SaleEnd:           stored.SaleEnd,
		Paused:            stored.Paused,
		Recipient:         stored.Recipient,
	}
	return policy, nil
}

// SetPolicy writes the sale policy singleton.
func (p *PolicyStore) SetPolicy(policy SalePolicy) error {
	if p == nil {
		return fmt.Errorf("policy store not initialised")
	}
	stored := storedPolicy{
		WhitelistRequired: policy.WhitelistRequired,
		HardCap:           copyOrZero(policy.HardCap),
		MinPurchase:       copyOrZero(policy.MinPurchase),
		GlobalMaxPerUser:  copyOrZero(policy.GlobalMaxPerUser),
		SaleStart:         policy.SaleStart,
		SaleEnd:           policy.SaleEnd,
		Paused:            policy.Paused,
		Recipient:         policy.Recipient,
	}
	return p.store.KVPut(policyKeyBytes, stored)
}

// DefaultStaleness returns the process-wide staleness threshold in seconds.
func (p *PolicyStore) DefaultStaleness() (uint64, error) {
	if p == nil {
		return 0, fmt.Errorf("policy store not initialised")
	}
	var stored uintRecord
	ok, err := p.store.KVGet(stalenessKeyBytes, &stored)
	if err != nil {
		return 0, err
	}
	if !ok || stored.Value == 0 {
		return DefaultStalenessSeconds, nil
	}
	return stored.Value, nil
}

// SetDefaultStaleness writes the process-wide staleness threshold.
func (p *PolicyStore) SetDefaultStaleness(seconds uint64) error {
	if p == nil {
		return fmt.Errorf("policy store not initialised")
	}
	return p.store.KVPut(stalenessKeyBytes, uintRecord{Value: seconds})
}

// Whitelisted reports whether the account is on the whitelist.
func (p *PolicyStore) Whitelisted(account [20]byte) (bool, error) {
	if p == nil {
		return false, fmt.Errorf("policy store not initialised")
	}
	var stored flagRecord
	ok, err := p.store.KVGet(whitelistKey(account), &stored)
	if err != nil {
		return false, err
	}
	return ok && stored.Set, nil
}

// SetWhitelisted writes or clears the whitelist membership for the account.
func (p *PolicyStore) SetWhitelisted(account [20]byte, member bool) error {
	if p == nil {
		return fmt.Errorf("policy store not initialised")
	}
	if !member {
		return p.store.KVDelete(whitelistKey(account))
	}
	return p.store.KVPut(whitelistKey(account), flagRecord{Set: true})
}

// UserCap returns the per-user cap override for the account. Zero means the
// global cap applies.
func (p *PolicyStore) UserCap(account [20]byte) (*big.Int, error) {
	if p == nil {
		return nil, fmt.Errorf("policy store not initialised")
	}
	var stored amountRecord
	ok, err := p.store.KVGet(userCapKey(account), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return copyOrZero(stored.Amount), nil
}

// SetUserCap writes the per-user cap override for the account.
func (p *PolicyStore) SetUserCap(account [20]byte, cap *big.Int) error {
	if p == nil {
		return fmt.Errorf("policy store not initialised")
	}
	return p.store.KVPut(userCapKey(account), amountRecord{Amount: copyOrZero(cap)})
}

// IsPaused satisfies the pause guard view for the sale module.
func (p *PolicyStore) IsPaused(module string) bool {
	if p == nil || module != "sale" {
		return false
	}
	policy, err := p.Policy()
	if err != nil {
		return true
	}
	return policy.Paused
}
