package lending

import (
	"math/big"

	"github.com/AWRA-CTC/lending-pool/crypto"
)

// AssetConfig captures the registration-time parameters of one supported
// asset. The share-token binding is immutable until the asset is registered
// again, at which point a fresh ledger id is bound and any balances held
// against the previous ledger are orphaned.
type AssetConfig struct {
	Symbol string
	Active bool
	// Native marks the asset whose value arrives bound to the call itself;
	// all other assets are pulled explicitly through the custody collaborator.
	Native bool
	// CollateralRatioBps is the required collateral value as a percentage of
	// borrowed value, in basis points. Always above LiquidationRatioBps.
	CollateralRatioBps uint64
	// LiquidationRatioBps is the collateral/debt percentage below which a
	// loan becomes liquidatable, in basis points.
	LiquidationRatioBps uint64
	BaseAPRBps          uint64
	APRFloorBps         uint64
	LiquidationBonusBps uint64
	// ShareTokenID identifies the ledger currently bound to this asset.
	ShareTokenID    uint64
	CanBeCollateral bool
	CanBeBorrowed   bool
}

// Clone returns a deep copy of the config.
func (c *AssetConfig) Clone() *AssetConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// AssetBalance aggregates one asset's pool-level accounting. Cash is lender
// liquidity only; locked collateral is custodied outside these totals.
type AssetBalance struct {
	// Cash is the liquidity currently available for withdrawal or borrowing.
	Cash *big.Int
	// TotalBorrowed is the sum of outstanding loan principals in this asset.
	TotalBorrowed *big.Int
	// TotalInterestEarned accumulates interest credited to lenders, plus
	// liquidation proceeds beyond principal: accrued interest on the settled
	// debt and any unrefunded native value attached above it. It only ever
	// increases.
	TotalInterestEarned *big.Int
}

// NewAssetBalance returns a balance with all counters at zero.
func NewAssetBalance() *AssetBalance {
	return &AssetBalance{
		Cash:                big.NewInt(0),
		TotalBorrowed:       big.NewInt(0),
		TotalInterestEarned: big.NewInt(0),
	}
}

// Clone returns a deep copy of the balance.
func (b *AssetBalance) Clone() *AssetBalance {
	if b == nil {
		return nil
	}
	clone := &AssetBalance{}
	if b.Cash != nil {
		clone.Cash = new(big.Int).Set(b.Cash)
	}
	if b.TotalBorrowed != nil {
		clone.TotalBorrowed = new(big.Int).Set(b.TotalBorrowed)
	}
	if b.TotalInterestEarned != nil {
		clone.TotalInterestEarned = new(big.Int).Set(b.TotalInterestEarned)
	}
	return clone
}

// Loan is the record of a single borrowing position. Records are never
// deleted; closing a loan clears the Active flag.
type Loan struct {
	ID              uint64
	Borrower        crypto.Address
	CollateralAsset string
	BorrowAsset     string
	// Principal is the outstanding amount. It decreases only on full close
	// and is recapitalized (interest folded in) on partial repayment.
	Principal *big.Int
	// Collateral is locked in full at origination and released or seized as
	// a unit.
	Collateral *big.Int
	// APRBps is the origination snapshot; it is never recomputed.
	APRBps uint64
	// StartTime is the interest clock. Every partial repayment resets it.
	StartTime int64
	Active    bool
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Principal != nil {
		clone.Principal = new(big.Int).Set(l.Principal)
	}
	if l.Collateral != nil {
		clone.Collateral = new(big.Int).Set(l.Collateral)
	}
	return &clone
}

// ShareLedger tracks one asset's proportional claims. Mint and burn authority
// stays inside this package; external callers only read balances and supply.
type ShareLedger struct {
	TokenID  uint64
	supply   *big.Int
	balances map[string]*big.Int
}

// NewShareLedger allocates an empty ledger under the given token id.
func NewShareLedger(tokenID uint64) *ShareLedger {
	return &ShareLedger{
		TokenID:  tokenID,
		supply:   big.NewInt(0),
		balances: make(map[string]*big.Int),
	}
}

// Supply returns the total shares outstanding.
func (s *ShareLedger) Supply() *big.Int {
	if s == nil || s.supply == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(s.supply)
}

// BalanceOf returns the holder's share balance.
func (s *ShareLedger) BalanceOf(holder crypto.Address) *big.Int {
	if s == nil {
		return big.NewInt(0)
	}
	if bal, ok := s.balances[string(holder.Bytes())]; ok && bal != nil {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func (s *ShareLedger) mint(holder crypto.Address, amount *big.Int) {
	if s == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	key := string(holder.Bytes())
	current := s.balances[key]
	if current == nil {
		current = big.NewInt(0)
	}
	s.balances[key] = new(big.Int).Add(current, amount)
	s.supply = new(big.Int).Add(s.supply, amount)
}

func (s *ShareLedger) burn(holder crypto.Address, amount *big.Int) error {
	if s == nil || amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	key := string(holder.Bytes())
	current := s.balances[key]
	if current == nil || current.Cmp(amount) < 0 {
		return errShareBalance
	}
	s.balances[key] = new(big.Int).Sub(current, amount)
	s.supply = new(big.Int).Sub(s.supply, amount)
	return nil
}

// Clone returns a deep copy of the ledger.
func (s *ShareLedger) Clone() *ShareLedger {
	if s == nil {
		return nil
	}
	clone := NewShareLedger(s.TokenID)
	if s.supply != nil {
		clone.supply = new(big.Int).Set(s.supply)
	}
	for key, bal := range s.balances {
		if bal != nil {
			clone.balances[key] = new(big.Int).Set(bal)
		}
	}
	return clone
}
