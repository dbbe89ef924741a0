package lending

import (
	"math/big"
	"testing"

	"github.com/AWRA-CTC/lending-pool/state"
	"github.com/AWRA-CTC/lending-pool/storage"
)

func newTestState() *KVState {
	return NewKVState(state.NewManager(storage.NewMemDB()))
}

func TestKVStateLoanRoundTrip(t *testing.T) {
	st := newTestState()
	borrower := testAddr(0x11)
	loan := &Loan{
		ID:              1,
		Borrower:        borrower,
		CollateralAsset: "POOL",
		BorrowAsset:     "USD",
		Principal:       big.NewInt(200),
		Collateral:      big.NewInt(150),
		APRBps:          1_500,
		StartTime:       testEpoch,
		Active:          true,
	}
	if err := st.PutLoan(loan); err != nil {
		t.Fatalf("put loan: %v", err)
	}

	got, err := st.GetLoan(1)
	if err != nil {
		t.Fatalf("get loan: %v", err)
	}
	if got == nil {
		t.Fatal("loan missing")
	}
	if !got.Borrower.Equal(borrower) {
		t.Fatalf("borrower = %s, want %s", got.Borrower, borrower)
	}
	if got.Principal.Cmp(loan.Principal) != 0 || got.StartTime != testEpoch || !got.Active {
		t.Fatalf("loan = %+v", got)
	}

	missing, err := st.GetLoan(2)
	if err != nil {
		t.Fatalf("get missing loan: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing loan = %+v, want nil", missing)
	}
}

func TestKVStatePutLoanRequiresID(t *testing.T) {
	st := newTestState()
	if err := st.PutLoan(&Loan{Borrower: testAddr(0x11)}); err == nil {
		t.Fatal("expected error for loan without id")
	}
}

func TestKVStateCountersStartAtOne(t *testing.T) {
	st := newTestState()
	for want := uint64(1); want <= 3; want++ {
		id, err := st.NextLoanID()
		if err != nil {
			t.Fatalf("next loan id: %v", err)
		}
		if id != want {
			t.Fatalf("loan id = %d, want %d", id, want)
		}
	}
	// The share token sequence runs independently.
	tokenID, err := st.NextShareTokenID()
	if err != nil {
		t.Fatalf("next share token id: %v", err)
	}
	if tokenID != 1 {
		t.Fatalf("share token id = %d, want 1", tokenID)
	}
}

func TestKVStateBorrowerIndex(t *testing.T) {
	st := newTestState()
	borrower := testAddr(0x12)
	for _, id := range []uint64{1, 5, 9} {
		if err := st.AppendBorrowerLoan(borrower, id); err != nil {
			t.Fatalf("append %d: %v", id, err)
		}
	}
	ids, err := st.BorrowerLoanIDs(borrower)
	if err != nil {
		t.Fatalf("loan ids: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 5 || ids[2] != 9 {
		t.Fatalf("ids = %v, want [1 5 9]", ids)
	}

	other, err := st.BorrowerLoanIDs(testAddr(0x13))
	if err != nil {
		t.Fatalf("other ids: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("other ids = %v, want empty", other)
	}
}

func TestKVStateShareLedgerRoundTrip(t *testing.T) {
	st := newTestState()
	holderA := testAddr(0x14)
	holderB := testAddr(0x15)

	ledger := NewShareLedger(7)
	ledger.mint(holderA, big.NewInt(100))
	ledger.mint(holderB, big.NewInt(250))
	if err := st.PutShareLedger(ledger); err != nil {
		t.Fatalf("put ledger: %v", err)
	}

	got, err := st.GetShareLedger(7)
	if err != nil {
		t.Fatalf("get ledger: %v", err)
	}
	if got == nil {
		t.Fatal("ledger missing")
	}
	if got.Supply().Cmp(big.NewInt(350)) != 0 {
		t.Fatalf("supply = %s, want 350", got.Supply())
	}
	if got.BalanceOf(holderA).Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("holder A = %s, want 100", got.BalanceOf(holderA))
	}
	if got.BalanceOf(holderB).Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("holder B = %s, want 250", got.BalanceOf(holderB))
	}

	missing, err := st.GetShareLedger(8)
	if err != nil {
		t.Fatalf("get missing ledger: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing ledger = %+v, want nil", missing)
	}
}

func TestKVStateAssetBalanceRoundTrip(t *testing.T) {
	st := newTestState()
	balance := &AssetBalance{
		Cash:                big.NewInt(1_000),
		TotalBorrowed:       big.NewInt(400),
		TotalInterestEarned: big.NewInt(25),
	}
	if err := st.PutAssetBalance("usd", balance); err != nil {
		t.Fatalf("put balance: %v", err)
	}

	// Symbol lookup is case-insensitive.
	got, err := st.GetAssetBalance("USD")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if got == nil {
		t.Fatal("balance missing")
	}
	if got.Cash.Cmp(balance.Cash) != 0 || got.TotalBorrowed.Cmp(balance.TotalBorrowed) != 0 {
		t.Fatalf("balance = %+v", got)
	}
}
