package lending

import (
	"math/big"

	"github.com/AWRA-CTC/lending-pool/oracle"
)

var (
	basisPoints = big.NewInt(10_000)
	wad         = mustBigInt("1000000000000000000") // 1e18 exchange-rate scale
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// exchangeRate returns the wad-scaled pool value per share. An empty ledger
// prices shares at exactly 1.0.
func exchangeRate(balance *AssetBalance, supply *big.Int) *big.Int {
	if supply == nil || supply.Sign() == 0 {
		return new(big.Int).Set(wad)
	}
	value := new(big.Int).Add(balance.Cash, balance.TotalBorrowed)
	value.Mul(value, wad)
	return value.Quo(value, supply)
}

// sharesForDeposit converts a deposit amount into shares at the given rate.
// Multiply-before-divide with floor division: rounding dust accrues to the
// pool, never to the depositor.
func sharesForDeposit(amount, rate *big.Int) *big.Int {
	if amount == nil || rate == nil || rate.Sign() == 0 {
		return big.NewInt(0)
	}
	shares := new(big.Int).Mul(amount, wad)
	return shares.Quo(shares, rate)
}

// payoutForShares converts burned shares into underlying value at the given
// rate, flooring in the pool's favour.
func payoutForShares(shares, rate *big.Int) *big.Int {
	if shares == nil || rate == nil {
		return big.NewInt(0)
	}
	payout := new(big.Int).Mul(shares, rate)
	return payout.Quo(payout, wad)
}

// valueAt prices an amount through an oracle quote using the quote's own
// decimal precision.
func valueAt(amount *big.Int, quote oracle.Quote) *big.Int {
	if amount == nil || quote.Price == nil {
		return big.NewInt(0)
	}
	value := new(big.Int).Mul(amount, quote.Price)
	return value.Quo(value, pow10(quote.Decimals))
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// seizableCollateral applies the liquidation bonus to the locked collateral,
// capped at the collateral actually held.
func seizableCollateral(collateral *big.Int, bonusBps uint64) *big.Int {
	if collateral == nil || collateral.Sign() <= 0 {
		return big.NewInt(0)
	}
	seize := new(big.Int).Mul(collateral, new(big.Int).SetUint64(10_000+bonusBps))
	seize.Quo(seize, basisPoints)
	if seize.Cmp(collateral) > 0 {
		seize = new(big.Int).Set(collateral)
	}
	return seize
}
