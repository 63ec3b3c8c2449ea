package token

import (
	"errors"
	"math/big"
	"testing"

	"tokensale/state"
	"tokensale/storage"
)

func addr(b byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = b
	}
	return a
}

func newStore(t *testing.T) Storage {
	t.Helper()
	return state.NewManager(storage.NewMemDB())
}

func TestTokenMintGrowsSupplyAndBalance(t *testing.T) {
	tok, err := NewToken(newStore(t), "SALE")
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	holder := addr(0x01)
	if err := tok.Mint(holder, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := tok.Mint(holder, big.NewInt(50)); err != nil {
		t.Fatalf("second mint: %v", err)
	}
	supply, err := tok.TotalSupply()
	if err != nil || supply.Int64() != 150 {
		t.Fatalf("supply = %v err = %v", supply, err)
	}
	balance, err := tok.BalanceOf(holder)
	if err != nil || balance.Int64() != 150 {
		t.Fatalf("balance = %v err = %v", balance, err)
	}
	other, err := tok.BalanceOf(addr(0x02))
	if err != nil || other.Sign() != 0 {
		t.Fatalf("other balance = %v err = %v", other, err)
	}
}

func TestTokenMintValidation(t *testing.T) {
	tok, err := NewToken(newStore(t), "SALE")
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if err := tok.Mint(addr(0x01), nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("nil amount err = %v", err)
	}
	if err := tok.Mint(addr(0x01), big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative amount err = %v", err)
	}
}

func TestTokenTransferAndBurn(t *testing.T) {
	tok, err := NewToken(newStore(t), "SALE")
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	a, b := addr(0x01), addr(0x02)
	if err := tok.Mint(a, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := tok.Transfer(a, b, big.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := tok.Transfer(a, b, big.NewInt(1000)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overdraw err = %v", err)
	}
	if err := tok.Burn(b, big.NewInt(30)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if err := tok.Burn(b, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("over-burn err = %v", err)
	}
	supply, _ := tok.TotalSupply()
	if supply.Int64() != 70 {
		t.Fatalf("supply after burn = %s", supply)
	}
}

func TestTokensAreIsolatedBySymbol(t *testing.T) {
	store := newStore(t)
	first, err := NewToken(store, "SALE")
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	second, err := NewToken(store, "OTHER")
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if err := first.Mint(addr(0x01), big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	supply, _ := second.TotalSupply()
	if supply.Sign() != 0 {
		t.Fatalf("cross-symbol supply leak: %s", supply)
	}
}

func TestBankCreditAndTransfer(t *testing.T) {
	bank, err := NewBank(newStore(t))
	if err != nil {
		t.Fatalf("new bank: %v", err)
	}
	usd := addr(0x10)
	eur := addr(0x11)
	a, b := addr(0x01), addr(0x02)

	if err := bank.Credit(usd, a, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := bank.TransferFrom(usd, a, b, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := bank.TransferFrom(usd, a, b, big.NewInt(100)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overdraw err = %v", err)
	}
	if err := bank.TransferFrom(eur, a, b, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("wrong asset err = %v", err)
	}

	balance, err := bank.BalanceOf(usd, b)
	if err != nil || balance.Int64() != 40 {
		t.Fatalf("destination balance = %v err = %v", balance, err)
	}
	remaining, err := bank.BalanceOf(usd, a)
	if err != nil || remaining.Int64() != 60 {
		t.Fatalf("source balance = %v err = %v", remaining, err)
	}
}
