package lending

import (
	"fmt"
	"sort"

	"github.com/AWRA-CTC/lending-pool/crypto"
)

// stagedState buffers writes on top of a PoolState so an operation can
// resolve every custody and credit transfer before any of its effects become
// visible. Reads observe the staged writes; Commit replays them onto the
// base in deterministic order. The id sequences pass through to the base, so
// an aborted operation may leave a gap but ids stay strictly increasing.
type stagedState struct {
	base PoolState

	configs  map[string]*AssetConfig
	balances map[string]*AssetBalance
	loans    map[uint64]*Loan
	ledgers  map[uint64]*ShareLedger

	borrowerAppends []borrowerLoanRef
}

type borrowerLoanRef struct {
	borrower crypto.Address
	id       uint64
}

func newStagedState(base PoolState) *stagedState {
	return &stagedState{
		base:     base,
		configs:  make(map[string]*AssetConfig),
		balances: make(map[string]*AssetBalance),
		loans:    make(map[uint64]*Loan),
		ledgers:  make(map[uint64]*ShareLedger),
	}
}

func (s *stagedState) GetAssetConfig(symbol string) (*AssetConfig, error) {
	if cfg, ok := s.configs[normalizeSymbol(symbol)]; ok {
		return cfg.Clone(), nil
	}
	return s.base.GetAssetConfig(symbol)
}

func (s *stagedState) PutAssetConfig(cfg *AssetConfig) error {
	if cfg == nil {
		return fmt.Errorf("state: asset config required")
	}
	s.configs[normalizeSymbol(cfg.Symbol)] = cfg.Clone()
	return nil
}

func (s *stagedState) AssetSymbols() ([]string, error) {
	symbols, err := s.base.AssetSymbols()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		seen[sym] = true
	}
	staged := make([]string, 0, len(s.configs))
	for sym := range s.configs {
		if !seen[sym] {
			staged = append(staged, sym)
		}
	}
	sort.Strings(staged)
	return append(symbols, staged...), nil
}

func (s *stagedState) GetAssetBalance(symbol string) (*AssetBalance, error) {
	if balance, ok := s.balances[normalizeSymbol(symbol)]; ok {
		return balance.Clone(), nil
	}
	return s.base.GetAssetBalance(symbol)
}

func (s *stagedState) PutAssetBalance(symbol string, balance *AssetBalance) error {
	if balance == nil {
		return fmt.Errorf("state: asset balance required")
	}
	s.balances[normalizeSymbol(symbol)] = balance.Clone()
	return nil
}

func (s *stagedState) GetLoan(id uint64) (*Loan, error) {
	if loan, ok := s.loans[id]; ok {
		return loan.Clone(), nil
	}
	return s.base.GetLoan(id)
}

func (s *stagedState) PutLoan(loan *Loan) error {
	if loan == nil || loan.ID == 0 {
		return fmt.Errorf("state: loan with assigned id required")
	}
	s.loans[loan.ID] = loan.Clone()
	return nil
}

func (s *stagedState) NextLoanID() (uint64, error) {
	return s.base.NextLoanID()
}

func (s *stagedState) NextShareTokenID() (uint64, error) {
	return s.base.NextShareTokenID()
}

func (s *stagedState) AppendBorrowerLoan(borrower crypto.Address, id uint64) error {
	s.borrowerAppends = append(s.borrowerAppends, borrowerLoanRef{borrower: borrower, id: id})
	return nil
}

func (s *stagedState) BorrowerLoanIDs(borrower crypto.Address) ([]uint64, error) {
	ids, err := s.base.BorrowerLoanIDs(borrower)
	if err != nil {
		return nil, err
	}
	for _, ref := range s.borrowerAppends {
		if ref.borrower.Equal(borrower) {
			ids = append(ids, ref.id)
		}
	}
	return ids, nil
}

func (s *stagedState) GetShareLedger(tokenID uint64) (*ShareLedger, error) {
	if ledger, ok := s.ledgers[tokenID]; ok {
		return ledger.Clone(), nil
	}
	return s.base.GetShareLedger(tokenID)
}

func (s *stagedState) PutShareLedger(ledger *ShareLedger) error {
	if ledger == nil {
		return fmt.Errorf("state: share ledger required")
	}
	s.ledgers[ledger.TokenID] = ledger.Clone()
	return nil
}

// Commit replays the staged writes onto the base state. Nothing reaches the
// base until every transfer of the operation has succeeded.
func (s *stagedState) Commit() error {
	symbols := make([]string, 0, len(s.configs))
	for sym := range s.configs {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		if err := s.base.PutAssetConfig(s.configs[sym]); err != nil {
			return err
		}
	}

	balanceSymbols := make([]string, 0, len(s.balances))
	for sym := range s.balances {
		balanceSymbols = append(balanceSymbols, sym)
	}
	sort.Strings(balanceSymbols)
	for _, sym := range balanceSymbols {
		if err := s.base.PutAssetBalance(sym, s.balances[sym]); err != nil {
			return err
		}
	}

	loanIDs := make([]uint64, 0, len(s.loans))
	for id := range s.loans {
		loanIDs = append(loanIDs, id)
	}
	sort.Slice(loanIDs, func(i, j int) bool { return loanIDs[i] < loanIDs[j] })
	for _, id := range loanIDs {
		if err := s.base.PutLoan(s.loans[id]); err != nil {
			return err
		}
	}

	tokenIDs := make([]uint64, 0, len(s.ledgers))
	for id := range s.ledgers {
		tokenIDs = append(tokenIDs, id)
	}
	sort.Slice(tokenIDs, func(i, j int) bool { return tokenIDs[i] < tokenIDs[j] })
	for _, id := range tokenIDs {
		if err := s.base.PutShareLedger(s.ledgers[id]); err != nil {
			return err
		}
	}

	for _, ref := range s.borrowerAppends {
		if err := s.base.AppendBorrowerLoan(ref.borrower, ref.id); err != nil {
			return err
		}
	}
	return nil
}
