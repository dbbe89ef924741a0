package lending

import (
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/AWRA-CTC/lending-pool/core/events"
	"github.com/AWRA-CTC/lending-pool/crypto"
	"github.com/AWRA-CTC/lending-pool/native/common"
	"github.com/AWRA-CTC/lending-pool/observability"
	"github.com/AWRA-CTC/lending-pool/oracle"
)

// moduleName keys the engine's entry in the pause registry.
const moduleName = "lending"

// CreditLedger is the credit-score collaborator. The engine reads scores at
// origination and adjusts them as loans close or get liquidated, acting under
// its module address as the authorised caller.
type CreditLedger interface {
	Score(subject crypto.Address) (int64, error)
	Increase(caller, subject crypto.Address, delta uint64) error
	Decrease(caller, subject crypto.Address, delta uint64) error
}

// Engine executes pooled-lending operations against a PoolState. Mutating
// operations are serialised through an internal latch; a reentrant entry
// fails instead of observing half-applied state. Each operation stages its
// writes and commits them only after every custody and credit transfer has
// succeeded, so a failed transfer leaves the pool untouched.
type Engine struct {
	state   PoolState
	custody Custody
	oracle  oracle.PriceOracle
	credit  CreditLedger

	owner         crypto.Address
	moduleAddress crypto.Address

	emitter events.Emitter
	logger  *slog.Logger
	metrics *observability.Metrics
	pauses  common.PauseView
	latch   common.Latch
	nowFn   func() int64
}

// NewEngine wires the engine to its collaborators. Owner, pauses, emitter,
// logger and metrics are configured through setters before first use.
func NewEngine(state PoolState, custody Custody, priceOracle oracle.PriceOracle, credit CreditLedger) *Engine {
	return &Engine{
		state:   state,
		custody: custody,
		oracle:  priceOracle,
		credit:  credit,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetOwner fixes the address allowed to administer the asset registry.
func (e *Engine) SetOwner(owner crypto.Address) { e.owner = owner }

// SetModuleAddress fixes the address the engine acts under when calling the
// credit ledger. It must match the ledger's configured authority.
func (e *Engine) SetModuleAddress(addr crypto.Address) { e.moduleAddress = addr }

// SetPauses installs the pause registry consulted before every mutating
// operation.
func (e *Engine) SetPauses(pauses common.PauseView) { e.pauses = pauses }

// SetEmitter replaces the event sink. A nil emitter silences events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetLogger replaces the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetMetrics installs operation metrics. Nil leaves metrics disabled.
func (e *Engine) SetMetrics(metrics *observability.Metrics) { e.metrics = metrics }

// SetNowFunc overrides the interest clock. Tests use this for deterministic
// accrual.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	e.nowFn = now
}

func (e *Engine) collaborators() error {
	switch {
	case e.state == nil:
		return errNilState
	case e.custody == nil:
		return errNilCustody
	case e.oracle == nil:
		return errNilOracle
	case e.credit == nil:
		return errNilCredit
	}
	return nil
}

// begin runs the shared entry sequence for a mutating operation: collaborator
// checks, the pause guard and the reentrancy latch. The returned func must be
// deferred with the operation's named error to release the latch and record
// the outcome.
func (e *Engine) begin(op string) (func(*error), error) {
	if err := e.collaborators(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.latch.Enter(); err != nil {
		return nil, err
	}
	start := time.Now()
	return func(errp *error) {
		e.latch.Exit()
		outcome := "ok"
		if errp != nil && *errp != nil {
			outcome = "error"
		}
		e.metrics.ObserveOp(op, outcome, time.Since(start))
	}, nil
}

func requirePositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	return nil
}

// loadAsset resolves a listed asset config, optionally requiring it to be
// active.
func (e *Engine) loadAsset(st PoolState, symbol string, mustBeActive bool) (*AssetConfig, error) {
	cfg, err := st.GetAssetConfig(symbol)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("lending: asset %q: %w", normalizeSymbol(symbol), errAssetUnknown)
	}
	if mustBeActive && !cfg.Active {
		return nil, fmt.Errorf("lending: asset %q: %w", cfg.Symbol, errAssetInactive)
	}
	return cfg, nil
}

func (e *Engine) loadBalance(st PoolState, symbol string) (*AssetBalance, error) {
	balance, err := st.GetAssetBalance(symbol)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		balance = NewAssetBalance()
	}
	return balance, nil
}

func (e *Engine) loadShareLedger(st PoolState, cfg *AssetConfig) (*ShareLedger, error) {
	ledger, err := st.GetShareLedger(cfg.ShareTokenID)
	if err != nil {
		return nil, err
	}
	if ledger == nil {
		ledger = NewShareLedger(cfg.ShareTokenID)
	}
	return ledger, nil
}

// Deposit adds liquidity and mints pool shares at the current exchange rate,
// rounded down. A deposit too small to mint a whole share mints zero shares
// and leaves the amount with the pool. For a native asset the deposit must
// arrive as attached value equal to amount; for an external asset it is
// pulled through custody and attached value is rejected. Returns the shares
// minted.
func (e *Engine) Deposit(caller crypto.Address, asset string, amount, attached *big.Int) (*big.Int, error) {
	done, err := e.begin("deposit")
	if err != nil {
		return nil, err
	}
	defer done(&err)

	st := newStagedState(e.state)
	if err = requirePositive(amount); err != nil {
		return nil, err
	}
	cfg, err := e.loadAsset(st, asset, true)
	if err != nil {
		return nil, err
	}
	balance, err := e.loadBalance(st, cfg.Symbol)
	if err != nil {
		return nil, err
	}
	ledger, err := e.loadShareLedger(st, cfg)
	if err != nil {
		return nil, err
	}

	rate := exchangeRate(balance, ledger.Supply())
	shares := sharesForDeposit(amount, rate)

	balance.Cash = new(big.Int).Add(balance.Cash, amount)
	if shares.Sign() > 0 {
		ledger.mint(caller, shares)
	}
	if err = st.PutShareLedger(ledger); err != nil {
		return nil, err
	}
	if err = st.PutAssetBalance(cfg.Symbol, balance); err != nil {
		return nil, err
	}

	if err = pathFor(cfg).collectExact(e.custody, cfg.Symbol, caller, amount, attached); err != nil {
		return nil, err
	}
	if err = st.Commit(); err != nil {
		return nil, err
	}

	now := e.nowFn()
	e.emitter.Emit(events.Deposit{
		Asset:        cfg.Symbol,
		Depositor:    caller,
		Amount:       new(big.Int).Set(amount),
		SharesMinted: new(big.Int).Set(shares),
		Time:         now,
	})
	e.logger.Info("deposit",
		slog.String("asset", cfg.Symbol),
		slog.String("depositor", caller.String()),
		slog.String("amount", amount.String()),
		slog.String("shares", shares.String()))
	return shares, nil
}

// Withdraw burns shares and returns underlying value at the current exchange
// rate. The payout must be covered by the pool's cash on hand.
func (e *Engine) Withdraw(caller crypto.Address, asset string, shares *big.Int) (*big.Int, error) {
	done, err := e.begin("withdraw")
	if err != nil {
		return nil, err
	}
	defer done(&err)

	st := newStagedState(e.state)
	if err = requirePositive(shares); err != nil {
		return nil, err
	}
	cfg, err := e.loadAsset(st, asset, false)
	if err != nil {
		return nil, err
	}
	balance, err := e.loadBalance(st, cfg.Symbol)
	if err != nil {
		return nil, err
	}
	ledger, err := e.loadShareLedger(st, cfg)
	if err != nil {
		return nil, err
	}
	if ledger.BalanceOf(caller).Cmp(shares) < 0 {
		err = errShareBalance
		return nil, err
	}

	rate := exchangeRate(balance, ledger.Supply())
	payout := payoutForShares(shares, rate)
	if payout.Cmp(balance.Cash) > 0 {
		err = fmt.Errorf("lending: payout %s exceeds pool cash %s: %w",
			payout, balance.Cash, errLiquidity)
		return nil, err
	}
	if err = ledger.burn(caller, shares); err != nil {
		return nil, err
	}
	balance.Cash = new(big.Int).Sub(balance.Cash, payout)
	if err = st.PutShareLedger(ledger); err != nil {
		return nil, err
	}
	if err = st.PutAssetBalance(cfg.Symbol, balance); err != nil {
		return nil, err
	}

	if err = e.custody.Push(cfg.Symbol, caller, payout); err != nil {
		return nil, err
	}
	if err = st.Commit(); err != nil {
		return nil, err
	}

	now := e.nowFn()
	e.emitter.Emit(events.Withdraw{
		Asset:          cfg.Symbol,
		Holder:         caller,
		SharesBurned:   new(big.Int).Set(shares),
		AmountReturned: new(big.Int).Set(payout),
		Time:           now,
	})
	e.logger.Info("withdraw",
		slog.String("asset", cfg.Symbol),
		slog.String("holder", caller.String()),
		slog.String("shares", shares.String()),
		slog.String("payout", payout.String()))
	return payout, nil
}

// Borrow originates a loan: the caller posts collateral in one asset and
// receives principal in another. The origination APR snapshots the borrower's
// credit score and never changes for the life of the loan. Collateral for a
// native asset arrives as attached value equal to collateral; external
// collateral is pulled through custody.
func (e *Engine) Borrow(caller crypto.Address, collateralAsset, borrowAsset string, amount, collateral, attached *big.Int) (*Loan, error) {
	done, err := e.begin("borrow")
	if err != nil {
		return nil, err
	}
	defer done(&err)

	st := newStagedState(e.state)
	if err = requirePositive(amount); err != nil {
		return nil, err
	}
	if err = requirePositive(collateral); err != nil {
		return nil, err
	}
	collCfg, err := e.loadAsset(st, collateralAsset, true)
	if err != nil {
		return nil, err
	}
	if !collCfg.CanBeCollateral {
		err = fmt.Errorf("lending: asset %q: %w", collCfg.Symbol, errNotCollateral)
		return nil, err
	}
	borrowCfg, err := e.loadAsset(st, borrowAsset, true)
	if err != nil {
		return nil, err
	}
	if !borrowCfg.CanBeBorrowed {
		err = fmt.Errorf("lending: asset %q: %w", borrowCfg.Symbol, errNotBorrowable)
		return nil, err
	}

	balance, err := e.loadBalance(st, borrowCfg.Symbol)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(balance.Cash) > 0 {
		err = fmt.Errorf("lending: borrow %s exceeds pool cash %s: %w",
			amount, balance.Cash, errLiquidity)
		return nil, err
	}

	collQuote, err := e.oracle.Quote(collCfg.Symbol)
	if err != nil {
		return nil, err
	}
	borrowQuote, err := e.oracle.Quote(borrowCfg.Symbol)
	if err != nil {
		return nil, err
	}
	collateralValue := valueAt(collateral, collQuote)
	borrowValue := valueAt(amount, borrowQuote)
	// The collateral asset's ratio governs how much borrowing its value can
	// back: borrowValue * ratio must stay within collateralValue * 10000.
	lhs := new(big.Int).Mul(borrowValue, new(big.Int).SetUint64(collCfg.CollateralRatioBps))
	rhs := new(big.Int).Mul(collateralValue, basisPoints)
	if lhs.Cmp(rhs) > 0 {
		err = fmt.Errorf("lending: borrow value %s against collateral value %s at ratio %d bps: %w",
			borrowValue, collateralValue, collCfg.CollateralRatioBps, errLoanTooLarge)
		return nil, err
	}

	score, err := e.credit.Score(caller)
	if err != nil {
		return nil, err
	}
	apr := originationAPR(borrowCfg, score)

	id, err := st.NextLoanID()
	if err != nil {
		return nil, err
	}
	now := e.nowFn()
	loan := &Loan{
		ID:              id,
		Borrower:        caller,
		CollateralAsset: collCfg.Symbol,
		BorrowAsset:     borrowCfg.Symbol,
		Principal:       new(big.Int).Set(amount),
		Collateral:      new(big.Int).Set(collateral),
		APRBps:          apr,
		StartTime:       now,
		Active:          true,
	}
	balance.Cash = new(big.Int).Sub(balance.Cash, amount)
	balance.TotalBorrowed = new(big.Int).Add(balance.TotalBorrowed, amount)
	if err = st.PutLoan(loan); err != nil {
		return nil, err
	}
	if err = st.AppendBorrowerLoan(caller, id); err != nil {
		return nil, err
	}
	if err = st.PutAssetBalance(borrowCfg.Symbol, balance); err != nil {
		return nil, err
	}

	if err = pathFor(collCfg).collectExact(e.custody, collCfg.Symbol, caller, collateral, attached); err != nil {
		return nil, err
	}
	if err = e.custody.Push(borrowCfg.Symbol, caller, amount); err != nil {
		return nil, err
	}
	if err = st.Commit(); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.Borrow{
		Borrower:   caller,
		LoanID:     id,
		Principal:  new(big.Int).Set(amount),
		Collateral: new(big.Int).Set(collateral),
		APRBps:     apr,
		Time:       now,
	})
	e.logger.Info("borrow",
		slog.Uint64("loan", id),
		slog.String("borrower", caller.String()),
		slog.String("asset", borrowCfg.Symbol),
		slog.String("principal", amount.String()),
		slog.Uint64("aprBps", apr))
	return loan.Clone(), nil
}

// RepayResult reports the outcome of a repayment.
type RepayResult struct {
	// Closed is true when the loan was settled in full.
	Closed bool
	// PrincipalPaid and InterestPaid are populated only when the loan closed.
	PrincipalPaid *big.Int
	InterestPaid  *big.Int
	// RemainingPrincipal is the recapitalised principal after a partial
	// payment, zero when closed.
	RemainingPrincipal *big.Int
	// Refund is the excess returned to the borrower on an overpayment. On the
	// external pathway custody collects only the amount owed, so Refund stays
	// zero there; only native repayments with attached value above the debt
	// produce a refund.
	Refund *big.Int
}

// Repay pays down a loan. A payment covering principal plus accrued interest
// closes the loan, releases collateral, refunds any excess and rewards the
// borrower's credit score. A smaller payment folds the accrued interest into
// a new principal of totalOwed minus payment and restarts the interest clock;
// partial payments return to the pool's cash on hand but leave totalBorrowed
// and totalInterestEarned untouched, and emit no event.
func (e *Engine) Repay(caller crypto.Address, loanID uint64, payment, attached *big.Int) (*RepayResult, error) {
	done, err := e.begin("repay")
	if err != nil {
		return nil, err
	}
	defer done(&err)

	st := newStagedState(e.state)
	if err = requirePositive(payment); err != nil {
		return nil, err
	}
	loan, err := st.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan == nil || !loan.Active {
		err = fmt.Errorf("lending: loan %d: %w", loanID, errLoanInactive)
		return nil, err
	}
	if !caller.Equal(loan.Borrower) {
		err = fmt.Errorf("lending: loan %d: %w", loanID, errNotBorrower)
		return nil, err
	}
	cfg, err := e.loadAsset(st, loan.BorrowAsset, false)
	if err != nil {
		return nil, err
	}

	now := e.nowFn()
	interest := interestOwed(loan, now)
	totalOwed := new(big.Int).Add(loan.Principal, interest)
	path := pathFor(cfg)
	balance, err := e.loadBalance(st, cfg.Symbol)
	if err != nil {
		return nil, err
	}

	if payment.Cmp(totalOwed) < 0 {
		// Partial payment: the unpaid interest capitalises into principal and
		// the payment returns to the pool's cash.
		remaining := new(big.Int).Sub(totalOwed, payment)
		loan.Principal = remaining
		loan.StartTime = now
		if err = st.PutLoan(loan); err != nil {
			return nil, err
		}
		balance.Cash = new(big.Int).Add(balance.Cash, payment)
		if err = st.PutAssetBalance(cfg.Symbol, balance); err != nil {
			return nil, err
		}
		if err = path.collectExact(e.custody, cfg.Symbol, caller, payment, attached); err != nil {
			return nil, err
		}
		if err = st.Commit(); err != nil {
			return nil, err
		}
		e.logger.Info("partial repayment",
			slog.Uint64("loan", loanID),
			slog.String("payment", payment.String()),
			slog.String("principal", remaining.String()))
		return &RepayResult{
			RemainingPrincipal: new(big.Int).Set(remaining),
			Refund:             big.NewInt(0),
		}, nil
	}

	principalPaid := new(big.Int).Set(loan.Principal)
	balance.Cash = new(big.Int).Add(balance.Cash, totalOwed)
	balance.TotalBorrowed = new(big.Int).Sub(balance.TotalBorrowed, principalPaid)
	balance.TotalInterestEarned = new(big.Int).Add(balance.TotalInterestEarned, interest)
	if err = st.PutAssetBalance(cfg.Symbol, balance); err != nil {
		return nil, err
	}

	collateral := new(big.Int).Set(loan.Collateral)
	collateralAsset := loan.CollateralAsset
	loan.Active = false
	loan.Principal = big.NewInt(0)
	loan.Collateral = big.NewInt(0)
	if err = st.PutLoan(loan); err != nil {
		return nil, err
	}

	collected, err := path.collectAtLeast(e.custody, cfg.Symbol, caller, totalOwed, attached)
	if err != nil {
		return nil, err
	}
	refund := new(big.Int).Sub(collected, totalOwed)
	if refund.Sign() > 0 {
		if err = e.custody.Push(cfg.Symbol, caller, refund); err != nil {
			return nil, err
		}
	}
	if err = e.custody.Push(collateralAsset, caller, collateral); err != nil {
		return nil, err
	}
	if err = e.credit.Increase(e.moduleAddress, caller, repayScoreReward); err != nil {
		return nil, err
	}
	if err = st.Commit(); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.Repay{
		Borrower:  caller,
		LoanID:    loanID,
		Principal: principalPaid,
		Interest:  new(big.Int).Set(interest),
		Time:      now,
	})
	e.logger.Info("loan repaid",
		slog.Uint64("loan", loanID),
		slog.String("principal", principalPaid.String()),
		slog.String("interest", interest.String()))
	return &RepayResult{
		Closed:             true,
		PrincipalPaid:      principalPaid,
		InterestPaid:       new(big.Int).Set(interest),
		RemainingPrincipal: big.NewInt(0),
		Refund:             refund,
	}, nil
}

// LiquidationResult reports the outcome of a liquidation.
type LiquidationResult struct {
	DebtPaid         *big.Int
	CollateralSeized *big.Int
	LiquidatorReward *big.Int
}

// Liquidate settles an undercollateralized loan. Any caller may liquidate
// once the collateral value falls below the liquidation ratio applied to the
// debt including accrued interest. The liquidator pays the full debt and
// receives the bonus-adjusted collateral; excess value attached on the native
// pathway is kept by the pool, not refunded.
func (e *Engine) Liquidate(caller crypto.Address, loanID uint64, attached *big.Int) (*LiquidationResult, error) {
	done, err := e.begin("liquidate")
	if err != nil {
		return nil, err
	}
	defer done(&err)

	st := newStagedState(e.state)
	loan, err := st.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan == nil || !loan.Active {
		err = fmt.Errorf("lending: loan %d: %w", loanID, errLoanInactive)
		return nil, err
	}
	collCfg, err := e.loadAsset(st, loan.CollateralAsset, false)
	if err != nil {
		return nil, err
	}
	borrowCfg, err := e.loadAsset(st, loan.BorrowAsset, false)
	if err != nil {
		return nil, err
	}

	now := e.nowFn()
	interest := interestOwed(loan, now)
	totalDebt := new(big.Int).Add(loan.Principal, interest)

	collQuote, err := e.oracle.Quote(collCfg.Symbol)
	if err != nil {
		return nil, err
	}
	borrowQuote, err := e.oracle.Quote(borrowCfg.Symbol)
	if err != nil {
		return nil, err
	}
	collateralValue := valueAt(loan.Collateral, collQuote)
	debtValue := valueAt(totalDebt, borrowQuote)
	// Liquidation opens only below the threshold: collateralValue * 10000
	// strictly less than debtValue * liquidationRatio.
	lhs := new(big.Int).Mul(collateralValue, basisPoints)
	rhs := new(big.Int).Mul(debtValue, new(big.Int).SetUint64(collCfg.LiquidationRatioBps))
	if lhs.Cmp(rhs) >= 0 {
		err = fmt.Errorf("lending: loan %d collateral value %s against debt value %s: %w",
			loanID, collateralValue, debtValue, errLoanHealthy)
		return nil, err
	}

	collected, err := pathFor(borrowCfg).collectAtLeast(e.custody, borrowCfg.Symbol, caller, totalDebt, attached)
	if err != nil {
		return nil, err
	}
	excess := new(big.Int).Sub(collected, totalDebt)

	principal := new(big.Int).Set(loan.Principal)
	balance, err := e.loadBalance(st, borrowCfg.Symbol)
	if err != nil {
		return nil, err
	}
	// The whole collected amount, excess included, stays with the lenders.
	balance.Cash = new(big.Int).Add(balance.Cash, collected)
	balance.TotalBorrowed = new(big.Int).Sub(balance.TotalBorrowed, principal)
	balance.TotalInterestEarned = new(big.Int).Add(balance.TotalInterestEarned, new(big.Int).Add(interest, excess))
	if err = st.PutAssetBalance(borrowCfg.Symbol, balance); err != nil {
		return nil, err
	}

	collateral := new(big.Int).Set(loan.Collateral)
	reward := seizableCollateral(collateral, collCfg.LiquidationBonusBps)
	remainder := new(big.Int).Sub(collateral, reward)
	borrower := loan.Borrower
	loan.Active = false
	loan.Principal = big.NewInt(0)
	loan.Collateral = big.NewInt(0)
	if err = st.PutLoan(loan); err != nil {
		return nil, err
	}

	if err = e.custody.Push(collCfg.Symbol, caller, reward); err != nil {
		return nil, err
	}
	if remainder.Sign() > 0 {
		if err = e.custody.Push(collCfg.Symbol, borrower, remainder); err != nil {
			return nil, err
		}
	}
	if err = e.credit.Decrease(e.moduleAddress, borrower, liquidationScorePenalty); err != nil {
		return nil, err
	}
	if err = st.Commit(); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.Liquidate{
		Liquidator:       caller,
		Borrower:         borrower,
		LoanID:           loanID,
		CollateralSeized: collateral,
		LiquidatorReward: new(big.Int).Set(reward),
		Time:             now,
	})
	e.logger.Info("loan liquidated",
		slog.Uint64("loan", loanID),
		slog.String("liquidator", caller.String()),
		slog.String("debt", totalDebt.String()),
		slog.String("reward", reward.String()))
	return &LiquidationResult{
		DebtPaid:         totalDebt,
		CollateralSeized: collateral,
		LiquidatorReward: reward,
	}, nil
}
