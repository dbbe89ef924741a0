package events

import (
	"strconv"

	"github.com/AWRA-CTC/lending-pool/core/types"
	"github.com/AWRA-CTC/lending-pool/crypto"
)

const (
	// TypeCreditScoreIncreased is emitted when a borrower's score is rewarded.
	TypeCreditScoreIncreased = "credit.scoreIncreased"
	// TypeCreditScoreDecreased is emitted when a borrower's score is penalised.
	TypeCreditScoreDecreased = "credit.scoreDecreased"
)

type CreditScoreChanged struct {
	Subject  crypto.Address
	Delta    uint64
	NewScore int64
	Increase bool
	Time     int64
}

func (e CreditScoreChanged) EventType() string {
	if e.Increase {
		return TypeCreditScoreIncreased
	}
	return TypeCreditScoreDecreased
}

func (e CreditScoreChanged) Event() *types.Event {
	attrs := map[string]string{
		"subject": e.Subject.String(),
		"delta":   strconv.FormatUint(e.Delta, 10),
		"score":   strconv.FormatInt(e.NewScore, 10),
		"time":    strconv.FormatInt(e.Time, 10),
	}
	return &types.Event{Type: e.EventType(), Attributes: attrs}
}
