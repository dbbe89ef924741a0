package lending

import (
	"fmt"
	"log/slog"

	"github.com/AWRA-CTC/lending-pool/crypto"
)

// AssetSpec carries the operator-supplied parameters for listing an asset.
// The share token id is assigned by the engine, never by the caller.
type AssetSpec struct {
	Symbol              string
	Native              bool
	CollateralRatioBps  uint64
	LiquidationRatioBps uint64
	BaseAPRBps          uint64
	APRFloorBps         uint64
	LiquidationBonusBps uint64
	CanBeCollateral     bool
	CanBeBorrowed       bool
}

// AddAsset lists an asset for lending, or replaces the listing if the symbol
// already exists. Replacement allocates a fresh share ledger; shares minted
// against the previous listing are no longer redeemable. A listing stays
// active for its lifetime; the module pause switch is the operational stop.
func (e *Engine) AddAsset(caller crypto.Address, spec AssetSpec) (*AssetConfig, error) {
	done, err := e.begin("add_asset")
	if err != nil {
		return nil, err
	}
	defer done(&err)

	if !caller.Equal(e.owner) {
		err = fmt.Errorf("lending: caller is not the pool owner: %w", ErrAuthorization)
		return nil, err
	}
	symbol := normalizeSymbol(spec.Symbol)
	if symbol == "" {
		err = fmt.Errorf("lending: asset symbol required: %w", errRegistryConfig)
		return nil, err
	}
	if spec.CollateralRatioBps <= spec.LiquidationRatioBps {
		err = fmt.Errorf("lending: collateral ratio %d must exceed liquidation ratio %d: %w",
			spec.CollateralRatioBps, spec.LiquidationRatioBps, errRegistryConfig)
		return nil, err
	}
	if spec.APRFloorBps > spec.BaseAPRBps {
		err = fmt.Errorf("lending: apr floor %d exceeds base apr %d: %w",
			spec.APRFloorBps, spec.BaseAPRBps, errRegistryConfig)
		return nil, err
	}

	st := newStagedState(e.state)
	tokenID, err := st.NextShareTokenID()
	if err != nil {
		return nil, err
	}
	cfg := &AssetConfig{
		Symbol:              symbol,
		Active:              true,
		Native:              spec.Native,
		CollateralRatioBps:  spec.CollateralRatioBps,
		LiquidationRatioBps: spec.LiquidationRatioBps,
		BaseAPRBps:          spec.BaseAPRBps,
		APRFloorBps:         spec.APRFloorBps,
		LiquidationBonusBps: spec.LiquidationBonusBps,
		ShareTokenID:        tokenID,
		CanBeCollateral:     spec.CanBeCollateral,
		CanBeBorrowed:       spec.CanBeBorrowed,
	}
	if err = st.PutAssetConfig(cfg); err != nil {
		return nil, err
	}
	if err = st.PutShareLedger(NewShareLedger(tokenID)); err != nil {
		return nil, err
	}
	// Pool accounting for the symbol survives replacement; only the share
	// ledger is re-seeded.
	balance, err := st.GetAssetBalance(symbol)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		if err = st.PutAssetBalance(symbol, NewAssetBalance()); err != nil {
			return nil, err
		}
	}
	if err = st.Commit(); err != nil {
		return nil, err
	}
	e.logger.Info("asset listed",
		slog.String("asset", symbol),
		slog.Uint64("shareToken", tokenID),
		slog.Bool("native", spec.Native))
	return cfg.Clone(), nil
}
