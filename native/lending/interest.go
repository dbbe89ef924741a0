package lending

import "math/big"

const secondsPerYear = 31_536_000

// Each credit-score point lowers the origination APR by 50 basis points.
const creditDiscountBps = 50

const (
	// repayScoreReward is credited to a borrower on full repayment.
	repayScoreReward = 10
	// liquidationScorePenalty is debited from a borrower on liquidation.
	liquidationScorePenalty = 30
)

// originationAPR snapshots the credit-adjusted APR for a new loan. Scores are
// bounded at or above zero, so only the floor clamp is reachable; the upper
// clamp mirrors the formula's structure for negative discounts.
func originationAPR(cfg *AssetConfig, score int64) uint64 {
	apr := int64(cfg.BaseAPRBps) - score*creditDiscountBps
	if apr < int64(cfg.APRFloorBps) {
		apr = int64(cfg.APRFloorBps)
	}
	if apr > int64(cfg.BaseAPRBps) {
		apr = int64(cfg.BaseAPRBps)
	}
	return uint64(apr)
}

// interestOwed computes simple linear interest accrued since the loan's
// interest clock last reset. There is no background accrual; callers evaluate
// this lazily at the moment of access.
func interestOwed(loan *Loan, now int64) *big.Int {
	if loan == nil || !loan.Active || loan.Principal == nil || loan.Principal.Sign() <= 0 {
		return big.NewInt(0)
	}
	elapsed := now - loan.StartTime
	if elapsed <= 0 {
		return big.NewInt(0)
	}
	interest := new(big.Int).Mul(loan.Principal, new(big.Int).SetUint64(loan.APRBps))
	interest.Mul(interest, big.NewInt(elapsed))
	denom := new(big.Int).Mul(big.NewInt(secondsPerYear), basisPoints)
	return interest.Quo(interest, denom)
}
