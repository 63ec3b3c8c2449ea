package sale

import "math/big"

// SaleToken is the mintable sale asset. The engine assumes unconditional
// success or a propagated failure; it does not retry.
//
// TotalSupply and BalanceOf report live figures: the hard cap and per-user
// cap are measured against actual outstanding supply and actual held
// balances, so tokens issued or acquired outside this system count too.
type SaleToken interface {
	Mint(to [20]byte, amount *big.Int) error
	TotalSupply() (*big.Int, error)
	BalanceOf(account [20]byte) (*big.Int, error)
}

// PaymentBank moves payment assets, including the native currency, between
// accounts. Transfer failures propagate as aborts of the whole purchase.
type PaymentBank interface {
	TransferFrom(asset [20]byte, from, to [20]byte, amount *big.Int) error
	BalanceOf(asset [20]byte, account [20]byte) (*big.Int, error)
}
