package lending

import (
	"fmt"
	"math/big"

	"github.com/AWRA-CTC/lending-pool/crypto"
)

// Read-only accessors. Queries bypass the pause guard and the latch; they
// observe committed state only.

// AvailableLiquidity returns the pool cash for the asset.
func (e *Engine) AvailableLiquidity(asset string) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	balance, err := e.loadBalance(e.state, normalizeSymbol(asset))
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(balance.Cash), nil
}

// ExchangeRate returns the current wad-scaled pool value per share.
func (e *Engine) ExchangeRate(asset string) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.loadAsset(e.state, asset, false)
	if err != nil {
		return nil, err
	}
	balance, err := e.loadBalance(e.state, cfg.Symbol)
	if err != nil {
		return nil, err
	}
	ledger, err := e.loadShareLedger(e.state, cfg)
	if err != nil {
		return nil, err
	}
	return exchangeRate(balance, ledger.Supply()), nil
}

// UtilizationRate returns borrowed value over total pool value as an exact
// rational, zero for an empty pool.
func (e *Engine) UtilizationRate(asset string) (*big.Rat, error) {
	if e.state == nil {
		return nil, errNilState
	}
	balance, err := e.loadBalance(e.state, normalizeSymbol(asset))
	if err != nil {
		return nil, err
	}
	total := new(big.Int).Add(balance.Cash, balance.TotalBorrowed)
	if total.Sign() == 0 {
		return new(big.Rat), nil
	}
	return new(big.Rat).SetFrac(balance.TotalBorrowed, total), nil
}

// InterestOwed returns the interest accrued on the loan as of now. Inactive
// or unknown loans owe nothing.
func (e *Engine) InterestOwed(loanID uint64) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	loan, err := e.state.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	return interestOwed(loan, e.nowFn()), nil
}

// ValueOf prices an asset amount through the oracle.
func (e *Engine) ValueOf(asset string, amount *big.Int) (*big.Int, error) {
	if e.oracle == nil {
		return nil, errNilOracle
	}
	quote, err := e.oracle.Quote(normalizeSymbol(asset))
	if err != nil {
		return nil, err
	}
	return valueAt(amount, quote), nil
}

// Loan returns the stored loan record, or a zero-value record for an id that
// was never issued.
func (e *Engine) Loan(id uint64) (*Loan, error) {
	if e.state == nil {
		return nil, errNilState
	}
	loan, err := e.state.GetLoan(id)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return &Loan{}, nil
	}
	return loan.Clone(), nil
}

// BorrowerLoanIDs lists the ids of every loan the borrower ever opened, in
// origination order.
func (e *Engine) BorrowerLoanIDs(borrower crypto.Address) ([]uint64, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.BorrowerLoanIDs(borrower)
}

// ShareBalance returns the holder's share balance for the asset's current
// share token.
func (e *Engine) ShareBalance(asset string, holder crypto.Address) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.loadAsset(e.state, asset, false)
	if err != nil {
		return nil, err
	}
	ledger, err := e.loadShareLedger(e.state, cfg)
	if err != nil {
		return nil, err
	}
	return ledger.BalanceOf(holder), nil
}

// ShareSupply returns the outstanding shares for the asset's current share
// token.
func (e *Engine) ShareSupply(asset string) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.loadAsset(e.state, asset, false)
	if err != nil {
		return nil, err
	}
	ledger, err := e.loadShareLedger(e.state, cfg)
	if err != nil {
		return nil, err
	}
	return ledger.Supply(), nil
}

// AssetConfigOf returns the listing for the symbol.
func (e *Engine) AssetConfigOf(symbol string) (*AssetConfig, error) {
	if e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.state.GetAssetConfig(symbol)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("lending: asset %q: %w", normalizeSymbol(symbol), errAssetUnknown)
	}
	return cfg.Clone(), nil
}

// AssetSymbols lists every symbol ever registered.
func (e *Engine) AssetSymbols() ([]string, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.AssetSymbols()
}
