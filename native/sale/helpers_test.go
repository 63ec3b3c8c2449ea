package sale

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"tokensale/core/events"
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

func bi(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("invalid big integer %q", s)
	}
	return v
}

type captureEmitter struct {
	records []*events.Record
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.records = append(c.records, evt.Record())
}

func (c *captureEmitter) reset() { c.records = nil }

type memToken struct {
	supply   *big.Int
	balances map[[20]byte]*big.Int
	mintErr  error
}

func newMemToken() *memToken {
	return &memToken{supply: big.NewInt(0), balances: make(map[[20]byte]*big.Int)}
}

func (m *memToken) Mint(to [20]byte, amount *big.Int) error {
	if m.mintErr != nil {
		return m.mintErr
	}
	m.supply.Add(m.supply, amount)
	current := m.balances[to]
	if current == nil {
		current = big.NewInt(0)
	}
	m.balances[to] = new(big.Int).Add(current, amount)
	return nil
}

func (m *memToken) TotalSupply() (*big.Int, error) {
	return new(big.Int).Set(m.supply), nil
}

func (m *memToken) BalanceOf(account [20]byte) (*big.Int, error) {
	if balance := m.balances[account]; balance != nil {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

type bankTransfer struct {
	asset  [20]byte
	from   [20]byte
	to     [20]byte
	amount *big.Int
}

type memBank struct {
	balances  map[string]*big.Int
	transfers []bankTransfer
	hook      func() error
}

func newMemBank() *memBank {
	return &memBank{balances: make(map[string]*big.Int)}
}

func bankKey(asset, account [20]byte) string {
	return string(asset[:]) + string(account[:])
}

func (b *memBank) credit(asset, account [20]byte, amount *big.Int) {
	key := bankKey(asset, account)
	current := b.balances[key]
	if current == nil {
		current = big.NewInt(0)
	}
	b.balances[key] = new(big.Int).Add(current, amount)
}

func (b *memBank) TransferFrom(asset [20]byte, from, to [20]byte, amount *big.Int) error {
	if b.hook != nil {
		if err := b.hook(); err != nil {
			return err
		}
	}
	balance := b.balances[bankKey(asset, from)]
	if balance == nil || balance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance")
	}
	balance.Sub(balance, amount)
	b.credit(asset, to, amount)
	b.transfers = append(b.transfers, bankTransfer{asset: asset, from: from, to: to, amount: new(big.Int).Set(amount)})
	return nil
}

func (b *memBank) BalanceOf(asset [20]byte, account [20]byte) (*big.Int, error) {
	if balance := b.balances[bankKey(asset, account)]; balance != nil {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

type saleEnv struct {
	t       *testing.T
	now     time.Time
	policy  *PolicyStore
	ledger  *Ledger
	feeds   *FeedRegistry
	resolve *Resolver
	token   *memToken
	bank    *memBank
	engine  *Engine
	emitted *captureEmitter

	saleAccount [20]byte
	recipient   [20]byte
}

func newSaleEnv(t *testing.T) *saleEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	env := &saleEnv{
		t:           t,
		now:         time.Unix(1_700_000_000, 0).UTC(),
		policy:      NewPolicyStore(manager),
		ledger:      NewLedger(manager),
		feeds:       NewFeedRegistry(),
		token:       newMemToken(),
		bank:        newMemBank(),
		emitted:     &captureEmitter{},
		saleAccount: addr(0x5a),
		recipient:   addr(0xaa),
	}
	env.resolve = NewResolver(env.policy, env.feeds)
	env.engine = NewEngine(env.policy, env.ledger, env.resolve, env.token, env.bank, env.saleAccount)
	env.engine.SetEmitter(env.emitted)
	env.engine.SetClock(func() time.Time { return env.now })
	return env
}

func (e *saleEnv) advance(d time.Duration) { e.now = e.now.Add(d) }

// registerUSD registers a six-decimal payment asset at a manual rate of
// 100e18 and points payments at the recipient.
func (e *saleEnv) registerUSD(asset [20]byte) {
	e.t.Helper()
	rate := bi(e.t, "100000000000000000000")
	if err := e.engine.RegisterAsset(asset, rate, 6); err != nil {
		e.t.Fatalf("register asset: %v", err)
	}
	if err := e.engine.SetRecipient(e.recipient); err != nil {
		e.t.Fatalf("set recipient: %v", err)
	}
	e.emitted.reset()
}
