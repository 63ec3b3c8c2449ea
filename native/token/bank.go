package token

import (
	"fmt"
	"math/big"
)

var bankBalancePrefix = []byte("bank/balance/")

func bankKey(asset [20]byte, account [20]byte) []byte {
	key := append(append([]byte(nil), bankBalancePrefix...), asset[:]...)
	key = append(key, '/')
	return append(key, account[:]...)
}

// Bank tracks balances of arbitrary payment assets, keyed by asset
// identifier and account. The native currency is just another identifier.
type Bank struct {
	store Storage
}

// NewBank constructs a bank over the provided storage.
func NewBank(store Storage) (*Bank, error) {
	if store == nil {
		return nil, fmt.Errorf("token: storage required")
	}
	return &Bank{store: store}, nil
}

// Credit adds amount to the account's balance of the asset. Deposits from
// outside the system enter through this path.
func (b *Bank) Credit(asset [20]byte, account [20]byte, amount *big.Int) error {
	if b == nil {
		return fmt.Errorf("token: bank not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := loadAmount(b.store, bankKey(asset, account))
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	return storeAmount(b.store, bankKey(asset, account), balance)
}

// TransferFrom moves amount of the asset between accounts, failing when the
// source balance is insufficient.
func (b *Bank) TransferFrom(asset [20]byte, from, to [20]byte, amount *big.Int) error {
	if b == nil {
		return fmt.Errorf("token: bank not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromBalance, err := loadAmount(b.store, bankKey(asset, from))
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := loadAmount(b.store, bankKey(asset, to))
	if err != nil {
		return err
	}
	fromBalance.Sub(fromBalance, amount)
	toBalance.Add(toBalance, amount)
	if err := storeAmount(b.store, bankKey(asset, from), fromBalance); err != nil {
		return err
	}
	return storeAmount(b.store, bankKey(asset, to), toBalance)
}

// BalanceOf returns the account's balance of the asset.
func (b *Bank) BalanceOf(asset [20]byte, account [20]byte) (*big.Int, error) {
	if b == nil {
		return nil, fmt.Errorf("token: bank not initialised")
	}
	return loadAmount(b.store, bankKey(asset, account))
}
