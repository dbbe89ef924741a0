package lending

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AWRA-CTC/lending-pool/core/events"
	"github.com/AWRA-CTC/lending-pool/crypto"
	"github.com/AWRA-CTC/lending-pool/native/bank"
	"github.com/AWRA-CTC/lending-pool/native/credit"
	"github.com/AWRA-CTC/lending-pool/observability"
	"github.com/AWRA-CTC/lending-pool/oracle"
	"github.com/AWRA-CTC/lending-pool/state"
	"github.com/AWRA-CTC/lending-pool/storage"
)

const (
	// usdSymbol is used as the external test asset, poolSymbol as the native
	// one. USD is quoted at 1, POOL at 2 (decimals 0) unless a test reprices.
	usdSymbol  = "USD"
	poolSymbol = "POOL"

	testEpoch = int64(1_700_000_000)
)

func testAddr(b byte) crypto.Address {
	return crypto.MustNewAddress(crypto.PoolPrefix, bytes.Repeat([]byte{b}, 20))
}

type fixture struct {
	engine *Engine
	bank   *bank.Ledger
	prices *oracle.Posted
	scores *credit.Ledger
	events *events.Recorder
	now    int64

	owner      crypto.Address
	module     crypto.Address
	lender     crypto.Address
	borrower   crypto.Address
	liquidator crypto.Address
}

func testSpec(symbol string, native bool) AssetSpec {
	return AssetSpec{
		Symbol:              symbol,
		Native:              native,
		CollateralRatioBps:  15_000,
		LiquidationRatioBps: 12_000,
		BaseAPRBps:          2_000,
		APRFloorBps:         500,
		LiquidationBonusBps: 500,
		CanBeCollateral:     true,
		CanBeBorrowed:       true,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())

	f := &fixture{
		owner:      testAddr(0x01),
		module:     testAddr(0x02),
		lender:     testAddr(0x03),
		borrower:   testAddr(0x04),
		liquidator: testAddr(0x05),
		now:        testEpoch,
		events:     &events.Recorder{},
		prices:     oracle.NewPosted(),
	}
	f.bank = bank.NewLedger(mgr, f.module)
	f.scores = credit.NewLedger(mgr, f.module)

	if err := f.prices.SetQuote(usdSymbol, big.NewInt(1), 0); err != nil {
		t.Fatalf("set usd quote: %v", err)
	}
	if err := f.prices.SetQuote(poolSymbol, big.NewInt(2), 0); err != nil {
		t.Fatalf("set pool quote: %v", err)
	}

	f.engine = NewEngine(NewKVState(mgr), f.bank, f.prices, f.scores)
	f.engine.SetOwner(f.owner)
	f.engine.SetModuleAddress(f.module)
	f.engine.SetEmitter(f.events)
	f.engine.SetMetrics(observability.NewMetrics(prometheus.NewRegistry()))
	f.engine.SetNowFunc(func() int64 { return f.now })

	for _, spec := range []AssetSpec{testSpec(usdSymbol, false), testSpec(poolSymbol, true)} {
		if _, err := f.engine.AddAsset(f.owner, spec); err != nil {
			t.Fatalf("list asset %s: %v", spec.Symbol, err)
		}
	}
	// Attached native value is conveyed by the host environment, not pulled
	// through the ledger. A treasury float stands in for it so outbound
	// native pushes are funded.
	if err := f.bank.Credit(poolSymbol, f.module, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund treasury: %v", err)
	}
	for _, holder := range []crypto.Address{f.lender, f.borrower, f.liquidator} {
		if err := f.bank.Credit(usdSymbol, holder, big.NewInt(10_000)); err != nil {
			t.Fatalf("fund %s: %v", holder, err)
		}
		if err := f.bank.Credit(poolSymbol, holder, big.NewInt(10_000)); err != nil {
			t.Fatalf("fund %s: %v", holder, err)
		}
	}
	return f
}

func (f *fixture) advance(seconds int64) { f.now += seconds }

func (f *fixture) mustDeposit(t *testing.T, caller crypto.Address, asset string, amount int64) *big.Int {
	t.Helper()
	shares, err := f.engine.Deposit(caller, asset, big.NewInt(amount), nil)
	if err != nil {
		t.Fatalf("deposit %d %s: %v", amount, asset, err)
	}
	return shares
}

func (f *fixture) bankBalance(t *testing.T, asset string, holder crypto.Address) *big.Int {
	t.Helper()
	bal, err := f.bank.Balance(asset, holder)
	if err != nil {
		t.Fatalf("bank balance: %v", err)
	}
	return bal
}

func (f *fixture) lastEvent(t *testing.T) events.Event {
	t.Helper()
	if len(f.events.Events) == 0 {
		t.Fatal("no events recorded")
	}
	return f.events.Events[len(f.events.Events)-1]
}

func TestDepositMintsSharesAtPar(t *testing.T) {
	f := newFixture(t)

	shares := f.mustDeposit(t, f.lender, usdSymbol, 100)
	if shares.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("shares = %s, want 100", shares)
	}

	liquidity, err := f.engine.AvailableLiquidity(usdSymbol)
	if err != nil {
		t.Fatalf("liquidity: %v", err)
	}
	if liquidity.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("liquidity = %s, want 100", liquidity)
	}
	if got := f.bankBalance(t, usdSymbol, f.lender); got.Cmp(big.NewInt(9_900)) != 0 {
		t.Fatalf("lender bank balance = %s, want 9900", got)
	}

	ev, ok := f.lastEvent(t).(events.Deposit)
	if !ok {
		t.Fatalf("last event = %T, want events.Deposit", f.lastEvent(t))
	}
	if ev.SharesMinted.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("event shares = %s, want 100", ev.SharesMinted)
	}
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Deposit(f.lender, usdSymbol, big.NewInt(0), nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("deposit zero: err = %v, want ErrValidation", err)
	}
	if _, err := f.engine.Deposit(f.lender, usdSymbol, big.NewInt(-5), nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("deposit negative: err = %v, want ErrValidation", err)
	}
}

func TestDepositUnknownAsset(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Deposit(f.lender, "BTC", big.NewInt(10), nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestDepositNativeRequiresExactAttachedValue(t *testing.T) {
	f := newFixture(t)

	if _, err := f.engine.Deposit(f.lender, poolSymbol, big.NewInt(100), nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("no attached value: err = %v, want ErrValidation", err)
	}
	if _, err := f.engine.Deposit(f.lender, poolSymbol, big.NewInt(100), big.NewInt(99)); !errors.Is(err, ErrValidation) {
		t.Fatalf("short attached value: err = %v, want ErrValidation", err)
	}
	shares, err := f.engine.Deposit(f.lender, poolSymbol, big.NewInt(100), big.NewInt(100))
	if err != nil {
		t.Fatalf("exact attached value: %v", err)
	}
	if shares.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("shares = %s, want 100", shares)
	}
}

func TestDepositExternalRejectsAttachedValue(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Deposit(f.lender, usdSymbol, big.NewInt(100), big.NewInt(100)); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestDepositDustMintsNoShares(t *testing.T) {
	f := newFixture(t)
	f.mustDeposit(t, f.lender, usdSymbol, 100)
	loan, err := f.engine.Borrow(f.borrower, poolSymbol, usdSymbol, big.NewInt(50), big.NewInt(100), big.NewInt(100))
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	f.advance(secondsPerYear)
	if _, err := f.engine.Repay(f.borrower, loan.ID, big.NewInt(1_000), nil); err != nil {
		t.Fatalf("repay: %v", err)
	}

	// At a rate of 1.1 a single unit floors to zero shares; the amount stays
	// with the pool.
	shares, err := f.engine.Deposit(f.borrower, usdSymbol, big.NewInt(1), nil)
	if err != nil {
		t.Fatalf("dust deposit: %v", err)
	}
	if shares.Sign() != 0 {
		t.Fatalf("shares = %s, want 0", shares)
	}
	supply, err := f.engine.ShareSupply(usdSymbol)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("supply = %s, want 100", supply)
	}
	liquidity, err := f.engine.AvailableLiquidity(usdSymbol)
	if err != nil {
		t.Fatalf("liquidity: %v", err)
	}
	if liquidity.Cmp(big.NewInt(111)) != 0 {
		t.Fatalf("liquidity = %s, want 111", liquidity)
	}
}

func TestWithdrawProportionalAcrossHolders(t *testing.T) {
	f := newFixture(t)
	second := testAddr(0x06)
	if err := f.bank.Credit(usdSymbol, second, big.NewInt(1_000)); err != nil {
		t.Fatalf("fund second lender: %v", err)
	}

	f.mustDeposit(t, f.lender, usdSymbol, 100)
	shares, err := f.engine.Deposit(second, usdSymbol, big.NewInt(200), nil)
	if err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	if shares.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("second lender shares = %s, want 200", shares)
	}

	payout, err := f.engine.Withdraw(second, usdSymbol, big.NewInt(100))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if payout.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("payout = %s, want 100", payout)
	}
	remaining, err := f.engine.ShareBalance(usdSymbol, second)
	if err != nil {
		t.Fatalf("share balance: %v", err)
	}
	if remaining.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("remaining shares = %s, want 100", remaining)
	}
}

func TestWithdrawExceedingSharesRejected(t *testing.T) {
	f := newFixture(t)
	f.mustDeposit(t, f.lender, usdSymbol, 100)
	if _, err := f.engine.Withdraw(f.lender, usdSymbol, big.NewInt(101)); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestWithdrawGatedByPoolCash(t *testing.T) {
	f := newFixture(t)
	f.mustDeposit(t, f.lender, usdSymbol, 100)
	if _, err := f.engine.Borrow(f.borrower, poolSymbol, usdSymbol, big.NewInt(80), big.NewInt(100), big.NewInt(100)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// 100 shares are worth 100 but only 20 cash remains in the pool.
	if _, err := f.engine.Withdraw(f.lender, usdSymbol, big.NewInt(100)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	payout, err := f.engine.Withdraw(f.lender, usdSymbol, big.NewInt(20))
	if err != nil {
		t.Fatalf("withdraw within cash: %v", err)
	}
	if payout.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("payout = %s, want 20", payout)
	}
}

func TestExchangeRateGrowsWithInterest(t *testing.T) {
	f := newFixture(t)
	f.mustDeposit(t, f.lender, usdSymbol, 100)

	before, err := f.engine.ExchangeRate(usdSymbol)
	if err != nil {
		t.Fatalf("rate before: %v", err)
	}
	if before.Cmp(wad) != 0 {
		t.Fatalf("rate before = %s, want %s", before, wad)
	}

	loan, err := f.engine.Borrow(f.borrower, poolSymbol, usdSymbol, big.NewInt(50), big.NewInt(100), big.NewInt(100))
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	f.advance(secondsPerYear)
	if _, err := f.engine.Repay(f.borrower, loan.ID, big.NewInt(1_000), nil); err != nil {
		t.Fatalf("repay: %v", err)
	}

	after, err := f.engine.ExchangeRate(usdSymbol)
	if err != nil {
		t.Fatalf("rate after: %v", err)
	}
	// 50 at 20% for a year accrues 10 interest: 110 value over 100 shares.
	want := new(big.Int).Mul(big.NewInt(110), wad)
	want.Quo(want, big.NewInt(100))
	if after.Cmp(want) != 0 {
		t.Fatalf("rate after = %s, want %s", after, want)
	}
}

func TestUtilizationRate(t *testing.T) {
	f := newFixture(t)

	empty, err := f.engine.UtilizationRate(usdSymbol)
	if err != nil {
		t.Fatalf("empty utilization: %v", err)
	}
	if empty.Sign() != 0 {
		t.Fatalf("empty utilization = %s, want 0", empty)
	}

	f.mustDeposit(t, f.lender, usdSymbol, 100)
	if _, err := f.engine.Borrow(f.borrower, poolSymbol, usdSymbol, big.NewInt(25), big.NewInt(100), big.NewInt(100)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	got, err := f.engine.UtilizationRate(usdSymbol)
	if err != nil {
		t.Fatalf("utilization: %v", err)
	}
	if want := big.NewRat(1, 4); got.Cmp(want) != 0 {
		t.Fatalf("utilization = %s, want %s", got, want)
	}
}
