package lending

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/AWRA-CTC/lending-pool/crypto"
)

// PoolState abstracts the persistence layer behind the engine. Get accessors
// return deep copies (or nil when absent) so callers can stage mutations and
// commit them with the matching Put.
type PoolState interface {
	GetAssetConfig(symbol string) (*AssetConfig, error)
	PutAssetConfig(cfg *AssetConfig) error
	AssetSymbols() ([]string, error)

	GetAssetBalance(symbol string) (*AssetBalance, error)
	PutAssetBalance(symbol string, balance *AssetBalance) error

	GetLoan(id uint64) (*Loan, error)
	PutLoan(loan *Loan) error
	// NextLoanID increments the loan sequence before returning it, so the
	// first loan is id 1 and id 0 is never issued.
	NextLoanID() (uint64, error)
	AppendBorrowerLoan(borrower crypto.Address, id uint64) error
	BorrowerLoanIDs(borrower crypto.Address) ([]uint64, error)

	GetShareLedger(tokenID uint64) (*ShareLedger, error)
	PutShareLedger(ledger *ShareLedger) error
	NextShareTokenID() (uint64, error)
}

// Storage abstracts the subset of state manager functionality required by the
// KV-backed pool state.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

var (
	assetConfigPrefix  = []byte("lending/asset/")
	assetBalancePrefix = []byte("lending/balance/")
	loanPrefix         = []byte("lending/loan/")
	borrowerLoanPrefix = []byte("lending/borrower/")
	shareLedgerPrefix  = []byte("lending/shares/")
	assetIndexKey      = []byte("lending/assets")
	loanCounterKey     = []byte("lending/loanSeq")
	shareCounterKey    = []byte("lending/shareSeq")
)

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func assetConfigKey(symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s", assetConfigPrefix, normalizeSymbol(symbol)))
}

func assetBalanceKey(symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s", assetBalancePrefix, normalizeSymbol(symbol)))
}

func loanKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", loanPrefix, id))
}

func borrowerLoanKey(borrower crypto.Address) []byte {
	return []byte(fmt.Sprintf("%s%x", borrowerLoanPrefix, borrower.Bytes()))
}

func shareLedgerKey(tokenID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", shareLedgerPrefix, tokenID))
}

// Stored mirrors keep the persisted shape RLP-friendly: unsigned integers,
// deterministic ordering, no maps.

type storedAssetConfig struct {
	Symbol              string
	Active              bool
	Native              bool
	CollateralRatioBps  uint64
	LiquidationRatioBps uint64
	BaseAPRBps          uint64
	APRFloorBps         uint64
	LiquidationBonusBps uint64
	ShareTokenID        uint64
	CanBeCollateral     bool
	CanBeBorrowed       bool
}

type storedAssetBalance struct {
	Cash                *big.Int
	TotalBorrowed       *big.Int
	TotalInterestEarned *big.Int
}

type storedLoan struct {
	ID              uint64
	Borrower        [20]byte
	CollateralAsset string
	BorrowAsset     string
	Principal       *big.Int
	Collateral      *big.Int
	APRBps          uint64
	StartTime       uint64
	Active          bool
}

type storedShareEntry struct {
	Holder [20]byte
	Amount *big.Int
}

type storedShareLedger struct {
	TokenID uint64
	Supply  *big.Int
	Entries []storedShareEntry
}

type storedCounter struct {
	Value uint64
}

// KVState persists the pool tables through a key-value state manager.
type KVState struct {
	store Storage
}

// NewKVState wraps the provided storage backend.
func NewKVState(store Storage) *KVState {
	return &KVState{store: store}
}

func (s *KVState) GetAssetConfig(symbol string) (*AssetConfig, error) {
	var stored storedAssetConfig
	ok, err := s.store.KVGet(assetConfigKey(symbol), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &AssetConfig{
		Symbol:              stored.Symbol,
		Active:              stored.Active,
		Native:              stored.Native,
		CollateralRatioBps:  stored.CollateralRatioBps,
		LiquidationRatioBps: stored.LiquidationRatioBps,
		BaseAPRBps:          stored.BaseAPRBps,
		APRFloorBps:         stored.APRFloorBps,
		LiquidationBonusBps: stored.LiquidationBonusBps,
		ShareTokenID:        stored.ShareTokenID,
		CanBeCollateral:     stored.CanBeCollateral,
		CanBeBorrowed:       stored.CanBeBorrowed,
	}, nil
}

func (s *KVState) PutAssetConfig(cfg *AssetConfig) error {
	if cfg == nil {
		return fmt.Errorf("state: asset config required")
	}
	symbol := normalizeSymbol(cfg.Symbol)
	if symbol == "" {
		return fmt.Errorf("state: asset symbol required")
	}
	stored := storedAssetConfig{
		Symbol:              symbol,
		Active:              cfg.Active,
		Native:              cfg.Native,
		CollateralRatioBps:  cfg.CollateralRatioBps,
		LiquidationRatioBps: cfg.LiquidationRatioBps,
		BaseAPRBps:          cfg.BaseAPRBps,
		APRFloorBps:         cfg.APRFloorBps,
		LiquidationBonusBps: cfg.LiquidationBonusBps,
		ShareTokenID:        cfg.ShareTokenID,
		CanBeCollateral:     cfg.CanBeCollateral,
		CanBeBorrowed:       cfg.CanBeBorrowed,
	}
	if err := s.store.KVPut(assetConfigKey(symbol), stored); err != nil {
		return err
	}
	return s.store.KVAppend(assetIndexKey, []byte(symbol))
}

func (s *KVState) AssetSymbols() ([]string, error) {
	var raw [][]byte
	if err := s.store.KVGetList(assetIndexKey, &raw); err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(raw))
	for _, entry := range raw {
		symbols = append(symbols, string(entry))
	}
	return symbols, nil
}

func (s *KVState) GetAssetBalance(symbol string) (*AssetBalance, error) {
	var stored storedAssetBalance
	ok, err := s.store.KVGet(assetBalanceKey(symbol), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return (&AssetBalance{
		Cash:                stored.Cash,
		TotalBorrowed:       stored.TotalBorrowed,
		TotalInterestEarned: stored.TotalInterestEarned,
	}).Clone(), nil
}

func (s *KVState) PutAssetBalance(symbol string, balance *AssetBalance) error {
	if balance == nil {
		return fmt.Errorf("state: asset balance required")
	}
	stored := storedAssetBalance{
		Cash:                zeroIfNil(balance.Cash),
		TotalBorrowed:       zeroIfNil(balance.TotalBorrowed),
		TotalInterestEarned: zeroIfNil(balance.TotalInterestEarned),
	}
	return s.store.KVPut(assetBalanceKey(symbol), stored)
}

func (s *KVState) GetLoan(id uint64) (*Loan, error) {
	var stored storedLoan
	ok, err := s.store.KVGet(loanKey(id), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &Loan{
		ID:              stored.ID,
		Borrower:        crypto.MustNewAddress(crypto.PoolPrefix, stored.Borrower[:]),
		CollateralAsset: stored.CollateralAsset,
		BorrowAsset:     stored.BorrowAsset,
		Principal:       zeroIfNil(stored.Principal),
		Collateral:      zeroIfNil(stored.Collateral),
		APRBps:          stored.APRBps,
		StartTime:       int64(stored.StartTime),
		Active:          stored.Active,
	}, nil
}

func (s *KVState) PutLoan(loan *Loan) error {
	if loan == nil || loan.ID == 0 {
		return fmt.Errorf("state: loan with assigned id required")
	}
	var borrower [20]byte
	copy(borrower[:], loan.Borrower.Bytes())
	stored := storedLoan{
		ID:              loan.ID,
		Borrower:        borrower,
		CollateralAsset: normalizeSymbol(loan.CollateralAsset),
		BorrowAsset:     normalizeSymbol(loan.BorrowAsset),
		Principal:       zeroIfNil(loan.Principal),
		Collateral:      zeroIfNil(loan.Collateral),
		APRBps:          loan.APRBps,
		StartTime:       uint64(loan.StartTime),
		Active:          loan.Active,
	}
	return s.store.KVPut(loanKey(loan.ID), stored)
}

func (s *KVState) NextLoanID() (uint64, error) {
	return s.nextCounter(loanCounterKey)
}

func (s *KVState) NextShareTokenID() (uint64, error) {
	return s.nextCounter(shareCounterKey)
}

func (s *KVState) nextCounter(key []byte) (uint64, error) {
	var counter storedCounter
	if _, err := s.store.KVGet(key, &counter); err != nil {
		return 0, err
	}
	counter.Value++
	if err := s.store.KVPut(key, counter); err != nil {
		return 0, err
	}
	return counter.Value, nil
}

func (s *KVState) AppendBorrowerLoan(borrower crypto.Address, id uint64) error {
	encoded := make([]byte, 8)
	binary.BigEndian.PutUint64(encoded, id)
	return s.store.KVAppend(borrowerLoanKey(borrower), encoded)
}

func (s *KVState) BorrowerLoanIDs(borrower crypto.Address) ([]uint64, error) {
	var raw [][]byte
	if err := s.store.KVGetList(borrowerLoanKey(borrower), &raw); err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 8 {
			return nil, fmt.Errorf("state: malformed loan index entry")
		}
		ids = append(ids, binary.BigEndian.Uint64(entry))
	}
	return ids, nil
}

func (s *KVState) GetShareLedger(tokenID uint64) (*ShareLedger, error) {
	var stored storedShareLedger
	ok, err := s.store.KVGet(shareLedgerKey(tokenID), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	ledger := NewShareLedger(stored.TokenID)
	ledger.supply = zeroIfNil(stored.Supply)
	for _, entry := range stored.Entries {
		ledger.balances[string(entry.Holder[:])] = zeroIfNil(entry.Amount)
	}
	return ledger, nil
}

func (s *KVState) PutShareLedger(ledger *ShareLedger) error {
	if ledger == nil {
		return fmt.Errorf("state: share ledger required")
	}
	keys := make([]string, 0, len(ledger.balances))
	for key := range ledger.balances {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	entries := make([]storedShareEntry, 0, len(keys))
	for _, key := range keys {
		bal := ledger.balances[key]
		if bal == nil || bal.Sign() == 0 {
			continue
		}
		var holder [20]byte
		copy(holder[:], key)
		entries = append(entries, storedShareEntry{Holder: holder, Amount: bal})
	}
	stored := storedShareLedger{
		TokenID: ledger.TokenID,
		Supply:  ledger.Supply(),
		Entries: entries,
	}
	return s.store.KVPut(shareLedgerKey(ledger.TokenID), stored)
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
