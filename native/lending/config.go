package lending

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/AWRA-CTC/lending-pool/crypto"
	"github.com/AWRA-CTC/lending-pool/native/common"
)

// Config is the TOML bootstrap document for a pool instance.
//
//	environment = "production"
//	logLevel = "info"
//	owner = "pool1..."
//	paused = false
//
//	[[asset]]
//	symbol = "POOL"
//	native = true
//	collateralRatioBps = 15000
//	liquidationRatioBps = 12000
//	baseAprBps = 2000
//	aprFloorBps = 500
//	liquidationBonusBps = 500
//	collateral = true
//	borrowable = true
type Config struct {
	Environment string      `toml:"environment"`
	LogLevel    string      `toml:"logLevel"`
	Owner       string      `toml:"owner"`
	Paused      bool        `toml:"paused"`
	Assets      []AssetTOML `toml:"asset"`
}

// AssetTOML is one [[asset]] listing block.
type AssetTOML struct {
	Symbol              string `toml:"symbol"`
	Native              bool   `toml:"native"`
	CollateralRatioBps  uint64 `toml:"collateralRatioBps"`
	LiquidationRatioBps uint64 `toml:"liquidationRatioBps"`
	BaseAPRBps          uint64 `toml:"baseAprBps"`
	APRFloorBps         uint64 `toml:"aprFloorBps"`
	LiquidationBonusBps uint64 `toml:"liquidationBonusBps"`
	CanBeCollateral     bool   `toml:"collateral"`
	CanBeBorrowed       bool   `toml:"borrowable"`
}

// LoadConfig reads and decodes the TOML file at path.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("lending: decode config %s: %w", path, err)
	}
	return &cfg, nil
}

// Apply configures the engine from the document: owner, pause state and the
// initial asset listings. Listing runs as the configured owner.
func (c *Config) Apply(engine *Engine) error {
	if engine == nil {
		return fmt.Errorf("lending: engine required")
	}
	owner, err := crypto.DecodeAddress(c.Owner)
	if err != nil {
		return fmt.Errorf("lending: decode owner address: %w", err)
	}
	engine.SetOwner(owner)
	engine.SetPauses(common.StaticPauses{moduleName: c.Paused})
	for _, asset := range c.Assets {
		spec := AssetSpec{
			Symbol:              asset.Symbol,
			Native:              asset.Native,
			CollateralRatioBps:  asset.CollateralRatioBps,
			LiquidationRatioBps: asset.LiquidationRatioBps,
			BaseAPRBps:          asset.BaseAPRBps,
			APRFloorBps:         asset.APRFloorBps,
			LiquidationBonusBps: asset.LiquidationBonusBps,
			CanBeCollateral:     asset.CanBeCollateral,
			CanBeBorrowed:       asset.CanBeBorrowed,
		}
		if _, err := engine.AddAsset(owner, spec); err != nil {
			return fmt.Errorf("lending: list asset %q: %w", asset.Symbol, err)
		}
	}
	return nil
}
