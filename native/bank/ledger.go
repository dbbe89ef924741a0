package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/AWRA-CTC/lending-pool/crypto"
)

var (
	// ErrInsufficientBalance marks a transfer exceeding the holder's funds.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	errInvalidAmount       = errors.New("bank: amount must be positive")
	errNoStore             = errors.New("bank: storage unavailable")
)

var balancePrefix = []byte("bank/balance/")

func balanceKey(asset string, holder crypto.Address) []byte {
	return []byte(fmt.Sprintf("%s%s/%x", balancePrefix, normalizeAsset(asset), holder.Bytes()))
}

func normalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// storage abstracts the subset of state manager functionality required by the
// balance ledger.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type storedBalance struct {
	Amount *big.Int
}

// Ledger is a reference implementation of the pool's value-custody
// collaborator. Pull moves holder funds into the pool treasury, Push releases
// treasury funds back out. Deployments backed by a host chain substitute
// their own custody and never touch this ledger.
type Ledger struct {
	store    storage
	treasury crypto.Address
}

// NewLedger constructs a ledger custodying pooled funds under the treasury
// address.
func NewLedger(store storage, treasury crypto.Address) *Ledger {
	return &Ledger{store: store, treasury: treasury}
}

// Balance returns the holder's balance in the given asset.
func (l *Ledger) Balance(asset string, holder crypto.Address) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, errNoStore
	}
	var stored storedBalance
	ok, err := l.store.KVGet(balanceKey(asset, holder), &stored)
	if err != nil {
		return nil, err
	}
	if !ok || stored.Amount == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(stored.Amount), nil
}

// Credit mints balance to the holder. Intended for genesis allocations and
// test fixtures.
func (l *Ledger) Credit(asset string, holder crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	current, err := l.Balance(asset, holder)
	if err != nil {
		return err
	}
	return l.put(asset, holder, new(big.Int).Add(current, amount))
}

// Pull implements the custody contract: amount moves from the holder into the
// pool treasury.
func (l *Ledger) Pull(asset string, from crypto.Address, amount *big.Int) error {
	return l.transfer(asset, from, l.treasury, amount)
}

// Push implements the custody contract: amount moves from the pool treasury
// to the recipient.
func (l *Ledger) Push(asset string, to crypto.Address, amount *big.Int) error {
	return l.transfer(asset, l.treasury, to, amount)
}

func (l *Ledger) transfer(asset string, from, to crypto.Address, amount *big.Int) error {
	if l == nil || l.store == nil {
		return errNoStore
	}
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBal, err := l.Balance(asset, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, normalizeAsset(asset))
	}
	toBal, err := l.Balance(asset, to)
	if err != nil {
		return err
	}
	if err := l.put(asset, from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return l.put(asset, to, new(big.Int).Add(toBal, amount))
}

func (l *Ledger) put(asset string, holder crypto.Address, amount *big.Int) error {
	return l.store.KVPut(balanceKey(asset, holder), storedBalance{Amount: amount})
}
