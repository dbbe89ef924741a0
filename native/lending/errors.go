package lending

import (
	"errors"
	"fmt"
)

// Taxonomy roots. Every operation failure wraps exactly one of these so
// callers can classify with errors.Is without parsing messages.
var (
	ErrAuthorization     = errors.New("lending engine: caller not authorized")
	ErrValidation        = errors.New("lending engine: invalid request")
	ErrInsufficientFunds = errors.New("lending engine: insufficient funds")
	ErrState             = errors.New("lending engine: invalid loan state")
	ErrHealth            = errors.New("lending engine: loan within safety margin")
)

var (
	errNilState   = errors.New("lending engine: state not configured")
	errNilCustody = errors.New("lending engine: custody not configured")
	errNilOracle  = errors.New("lending engine: oracle not configured")
	errNilCredit  = errors.New("lending engine: credit ledger not configured")

	errAssetUnknown   = fmt.Errorf("%w: asset not supported", ErrValidation)
	errAssetInactive  = fmt.Errorf("%w: asset inactive", ErrValidation)
	errInvalidAmount  = fmt.Errorf("%w: amount must be positive", ErrValidation)
	errShareBalance   = fmt.Errorf("%w: share amount exceeds balance", ErrValidation)
	errNotCollateral  = fmt.Errorf("%w: asset cannot back a loan", ErrValidation)
	errNotBorrowable  = fmt.Errorf("%w: asset cannot be borrowed", ErrValidation)
	errValueAttached  = fmt.Errorf("%w: unexpected attached value", ErrValidation)
	errValueMismatch  = fmt.Errorf("%w: attached value does not match amount", ErrValidation)
	errRegistryConfig = fmt.Errorf("%w: invalid asset configuration", ErrValidation)

	errLiquidity      = fmt.Errorf("%w: available liquidity exceeded", ErrInsufficientFunds)
	errLoanTooLarge   = fmt.Errorf("%w: borrow exceeds collateral limit", ErrInsufficientFunds)
	errAttachedTooLow = fmt.Errorf("%w: attached value below required payment", ErrInsufficientFunds)

	errLoanInactive = fmt.Errorf("%w: loan inactive or unknown", ErrState)
	errNotBorrower  = fmt.Errorf("%w: caller is not the borrower", ErrState)

	errLoanHealthy = fmt.Errorf("%w: collateral ratio at or above liquidation threshold", ErrHealth)
)
