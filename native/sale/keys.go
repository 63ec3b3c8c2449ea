package sale

import (
	"encoding/hex"
	"strings"
)

var (
	assetPrefix         = []byte("sale/asset/")
	oraclePrefix        = []byte("sale/oracle/")
	baseRateKeyBytes    = []byte("sale/base")
	policyKeyBytes      = []byte("sale/policy")
	stalenessKeyBytes   = []byte("sale/staleness")
	whitelistPrefix     = []byte("sale/whitelist/")
	userCapPrefix       = []byte("sale/usercap/")
	orderPrefix         = []byte("sale/order/")
	receiptPrefix       = []byte("sale/receipt/")
	userReceiptsPrefix  = []byte("sale/user/")
	totalsKeyBytes      = []byte("sale/totals")
	revenuePrefix       = []byte("sale/revenue/")
	purchasedPrefix     = []byte("sale/purchased/")
	purchasedPairPrefix = []byte("sale/purchasedasset/")
)

func addrKey(prefix []byte, addr [20]byte) []byte {
	suffix := hex.EncodeToString(addr[:])
	key := make([]byte, len(prefix)+len(suffix))
	copy(key, prefix)
	copy(key[len(prefix):], suffix)
	return key
}

func stringKey(prefix []byte, id string) []byte {
	trimmed := strings.TrimSpace(id)
	key := make([]byte, len(prefix)+len(trimmed))
	copy(key, prefix)
	copy(key[len(prefix):], trimmed)
	return key
}

func assetKey(asset [20]byte) []byte     { return addrKey(assetPrefix, asset) }
func oracleKey(asset [20]byte) []byte    { return addrKey(oraclePrefix, asset) }
func whitelistKey(acct [20]byte) []byte  { return addrKey(whitelistPrefix, acct) }
func userCapKey(acct [20]byte) []byte    { return addrKey(userCapPrefix, acct) }
func orderKey(id string) []byte          { return stringKey(orderPrefix, id) }
func receiptKey(id string) []byte        { return stringKey(receiptPrefix, id) }
func userReceiptsKey(a [20]byte) []byte  { return addrKey(userReceiptsPrefix, a) }
func revenueKey(asset [20]byte) []byte   { return addrKey(revenuePrefix, asset) }
func purchasedKey(acct [20]byte) []byte  { return addrKey(purchasedPrefix, acct) }
func purchasedPairKey(acct, asset [20]byte) []byte {
	suffix := hex.EncodeToString(acct[:]) + "/" + hex.EncodeToString(asset[:])
	key := make([]byte, len(purchasedPairPrefix)+len(suffix))
	copy(key, purchasedPairPrefix)
	copy(key[len(purchasedPairPrefix):], suffix)
	return key
}
