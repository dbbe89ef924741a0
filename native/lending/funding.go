package lending

import (
	"math/big"

	"github.com/AWRA-CTC/lending-pool/crypto"
)

// Custody is the value-transfer collaborator. Pull moves asset value from a
// participant into the pool's custody; Push releases custodied value to a
// participant. The engine never holds balances itself.
type Custody interface {
	Pull(asset string, from crypto.Address, amount *big.Int) error
	Push(asset string, to crypto.Address, amount *big.Int) error
}

// valuePath is the per-asset funding pathway fixed at registration. The
// native variant consumes value already attached to the call; the external
// variant pulls value through the custody collaborator. Operation logic is
// written against this interface instead of branching on asset identity.
type valuePath interface {
	// collectExact brings exactly amount into the pool's custody.
	collectExact(c Custody, asset string, from crypto.Address, amount, attached *big.Int) error
	// collectAtLeast brings at least want into custody and returns the total
	// received. The native variant keeps any attached excess.
	collectAtLeast(c Custody, asset string, from crypto.Address, want, attached *big.Int) (*big.Int, error)
}

func pathFor(cfg *AssetConfig) valuePath {
	if cfg != nil && cfg.Native {
		return nativePath{}
	}
	return externalPath{}
}

// nativePath serves the asset whose value is bound to the call itself. The
// host environment has already conveyed the attached value to the pool, so
// collection only verifies the binding.
type nativePath struct{}

func (nativePath) collectExact(_ Custody, _ string, _ crypto.Address, amount, attached *big.Int) error {
	if attached == nil || attached.Sign() <= 0 {
		return errValueMismatch
	}
	if amount == nil || amount.Cmp(attached) != 0 {
		return errValueMismatch
	}
	return nil
}

func (nativePath) collectAtLeast(_ Custody, _ string, _ crypto.Address, want, attached *big.Int) (*big.Int, error) {
	if attached == nil || attached.Cmp(want) < 0 {
		return nil, errAttachedTooLow
	}
	// The full attached amount is collected. Whether any excess over want is
	// returned to the payer is the calling operation's decision.
	return new(big.Int).Set(attached), nil
}

// externalPath serves assets held by the custody collaborator. Attaching
// value to a call for an external asset mixes the pathways and fails.
type externalPath struct{}

func (externalPath) collectExact(c Custody, asset string, from crypto.Address, amount, attached *big.Int) error {
	if attached != nil && attached.Sign() > 0 {
		return errValueAttached
	}
	return c.Pull(asset, from, amount)
}

func (externalPath) collectAtLeast(c Custody, asset string, from crypto.Address, want, attached *big.Int) (*big.Int, error) {
	if attached != nil && attached.Sign() > 0 {
		return nil, errValueAttached
	}
	if err := c.Pull(asset, from, want); err != nil {
		return nil, err
	}
	return new(big.Int).Set(want), nil
}
