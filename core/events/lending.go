package events

import (
	"math/big"
	"strconv"

	"github.com/AWRA-CTC/lending-pool/core/types"
	"github.com/AWRA-CTC/lending-pool/crypto"
)

const (
	// TypeDeposit is emitted when a lender adds liquidity and receives shares.
	TypeDeposit = "lending.deposit"
	// TypeWithdraw is emitted when a lender burns shares for underlying value.
	TypeWithdraw = "lending.withdraw"
	// TypeBorrow is emitted when a new loan is originated.
	TypeBorrow = "lending.borrow"
	// TypeRepay is emitted when a loan is closed in full. Partial repayments
	// emit nothing.
	TypeRepay = "lending.repay"
	// TypeLiquidate is emitted when an undercollateralized loan is seized.
	TypeLiquidate = "lending.liquidate"
)

type Deposit struct {
	Asset        string
	Depositor    crypto.Address
	Amount       *big.Int
	SharesMinted *big.Int
	Time         int64
}

func (Deposit) EventType() string { return TypeDeposit }

func (e Deposit) Event() *types.Event {
	attrs := map[string]string{
		"depositor":    e.Depositor.String(),
		"amount":       formatAmount(e.Amount),
		"sharesMinted": formatAmount(e.SharesMinted),
		"time":         strconv.FormatInt(e.Time, 10),
	}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	return &types.Event{Type: TypeDeposit, Attributes: attrs}
}

type Withdraw struct {
	Asset          string
	Holder         crypto.Address
	SharesBurned   *big.Int
	AmountReturned *big.Int
	Time           int64
}

func (Withdraw) EventType() string { return TypeWithdraw }

func (e Withdraw) Event() *types.Event {
	attrs := map[string]string{
		"holder":         e.Holder.String(),
		"sharesBurned":   formatAmount(e.SharesBurned),
		"amountReturned": formatAmount(e.AmountReturned),
		"time":           strconv.FormatInt(e.Time, 10),
	}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	return &types.Event{Type: TypeWithdraw, Attributes: attrs}
}

type Borrow struct {
	Borrower   crypto.Address
	LoanID     uint64
	Principal  *big.Int
	Collateral *big.Int
	APRBps     uint64
	Time       int64
}

func (Borrow) EventType() string { return TypeBorrow }

func (e Borrow) Event() *types.Event {
	attrs := map[string]string{
		"borrower":   e.Borrower.String(),
		"loanId":     strconv.FormatUint(e.LoanID, 10),
		"principal":  formatAmount(e.Principal),
		"collateral": formatAmount(e.Collateral),
		"apr":        strconv.FormatUint(e.APRBps, 10),
		"time":       strconv.FormatInt(e.Time, 10),
	}
	return &types.Event{Type: TypeBorrow, Attributes: attrs}
}

type Repay struct {
	Borrower  crypto.Address
	LoanID    uint64
	Principal *big.Int
	Interest  *big.Int
	Time      int64
}

func (Repay) EventType() string { return TypeRepay }

func (e Repay) Event() *types.Event {
	attrs := map[string]string{
		"borrower":  e.Borrower.String(),
		"loanId":    strconv.FormatUint(e.LoanID, 10),
		"principal": formatAmount(e.Principal),
		"interest":  formatAmount(e.Interest),
		"time":      strconv.FormatInt(e.Time, 10),
	}
	return &types.Event{Type: TypeRepay, Attributes: attrs}
}

type Liquidate struct {
	Liquidator       crypto.Address
	Borrower         crypto.Address
	LoanID           uint64
	CollateralSeized *big.Int
	LiquidatorReward *big.Int
	Time             int64
}

func (Liquidate) EventType() string { return TypeLiquidate }

func (e Liquidate) Event() *types.Event {
	attrs := map[string]string{
		"liquidator":       e.Liquidator.String(),
		"borrower":         e.Borrower.String(),
		"loanId":           strconv.FormatUint(e.LoanID, 10),
		"collateralSeized": formatAmount(e.CollateralSeized),
		"liquidatorReward": formatAmount(e.LiquidatorReward),
		"time":             strconv.FormatInt(e.Time, 10),
	}
	return &types.Event{Type: TypeLiquidate, Attributes: attrs}
}
