package token

import (
	"errors"
	"fmt"
	"math/big"
)

// Storage is the KV surface the token ledgers persist through. It matches the
// state manager's interface.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	// ErrInsufficientBalance is returned when a transfer or burn exceeds the
	// sender's balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrInvalidAmount is returned for nil or negative amounts.
	ErrInvalidAmount = errors.New("token: invalid amount")
)

var (
	supplyKeyPrefix  = []byte("token/supply/")
	balanceKeyPrefix = []byte("token/balance/")
)

func supplyKey(symbol string) []byte {
	return append(append([]byte(nil), supplyKeyPrefix...), symbol...)
}

func balanceKey(symbol string, account [20]byte) []byte {
	key := append(append([]byte(nil), balanceKeyPrefix...), symbol...)
	key = append(key, '/')
	return append(key, account[:]...)
}

type amountRecord struct {
	Amount *big.Int
}

func loadAmount(store Storage, key []byte) (*big.Int, error) {
	var stored amountRecord
	ok, err := store.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok || stored.Amount == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(stored.Amount), nil
}

func storeAmount(store Storage, key []byte, amount *big.Int) error {
	return store.KVPut(key, amountRecord{Amount: new(big.Int).Set(amount)})
}

// Token is a single mintable asset ledger persisted in KV storage. Supply
// and balances are tracked as raw units at the asset's fixed unit scale.
type Token struct {
	store  Storage
	symbol string
}

// NewToken constructs the ledger for the asset identified by symbol.
func NewToken(store Storage, symbol string) (*Token, error) {
	if store == nil {
		return nil, fmt.Errorf("token: storage required")
	}
	if symbol == "" {
		return nil, fmt.Errorf("token: symbol required")
	}
	return &Token{store: store, symbol: symbol}, nil
}

// Symbol returns the asset identifier.
func (t *Token) Symbol() string { return t.symbol }

// Mint issues amount units to the account and grows total supply.
func (t *Token) Mint(to [20]byte, amount *big.Int) error {
	if t == nil {
		return fmt.Errorf("token: not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	supply, err := loadAmount(t.store, supplyKey(t.symbol))
	if err != nil {
		return err
	}
	balance, err := loadAmount(t.store, balanceKey(t.symbol, to))
	if err != nil {
		return err
	}
	supply.Add(supply, amount)
	balance.Add(balance, amount)
	if err := storeAmount(t.store, supplyKey(t.symbol), supply); err != nil {
		return err
	}
	return storeAmount(t.store, balanceKey(t.symbol, to), balance)
}

// Burn destroys amount units held by the account and shrinks total supply.
func (t *Token) Burn(from [20]byte, amount *big.Int) error {
	if t == nil {
		return fmt.Errorf("token: not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := loadAmount(t.store, balanceKey(t.symbol, from))
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	supply, err := loadAmount(t.store, supplyKey(t.symbol))
	if err != nil {
		return err
	}
	balance.Sub(balance, amount)
	supply.Sub(supply, amount)
	if err := storeAmount(t.store, balanceKey(t.symbol, from), balance); err != nil {
		return err
	}
	return storeAmount(t.store, supplyKey(t.symbol), supply)
}

// Transfer moves amount units between accounts.
func (t *Token) Transfer(from, to [20]byte, amount *big.Int) error {
	if t == nil {
		return fmt.Errorf("token: not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromBalance, err := loadAmount(t.store, balanceKey(t.symbol, from))
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := loadAmount(t.store, balanceKey(t.symbol, to))
	if err != nil {
		return err
	}
	fromBalance.Sub(fromBalance, amount)
	toBalance.Add(toBalance, amount)
	if err := storeAmount(t.store, balanceKey(t.symbol, from), fromBalance); err != nil {
		return err
	}
	return storeAmount(t.store, balanceKey(t.symbol, to), toBalance)
}

// TotalSupply returns the outstanding supply.
func (t *Token) TotalSupply() (*big.Int, error) {
	if t == nil {
		return nil, fmt.Errorf("token: not initialised")
	}
	return loadAmount(t.store, supplyKey(t.symbol))
}

// BalanceOf returns the units held by the account.
func (t *Token) BalanceOf(account [20]byte) (*big.Int, error) {
	if t == nil {
		return nil, fmt.Errorf("token: not initialised")
	}
	return loadAmount(t.store, balanceKey(t.symbol, account))
}
