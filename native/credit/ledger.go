package credit

import (
	"errors"
	"fmt"
	"time"

	"github.com/AWRA-CTC/lending-pool/core/events"
	"github.com/AWRA-CTC/lending-pool/crypto"
)

const (
	// MinScore and MaxScore bound every stored credit score. Mutations clamp
	// at the bounds rather than failing.
	MinScore int64 = 0
	MaxScore int64 = 100
)

var (
	// ErrUnauthorized marks a score mutation attempted by a caller other than
	// the configured authority.
	ErrUnauthorized = errors.New("credit: caller not authorized")
	errNoStore      = errors.New("credit: storage unavailable")
)

var scorePrefix = []byte("credit/score/")

func scoreKey(subject crypto.Address) []byte {
	return []byte(fmt.Sprintf("%s%x", scorePrefix, subject.Bytes()))
}

// storage abstracts the subset of state manager functionality required by the
// credit ledger.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type storedScore struct {
	Value uint64
}

// Ledger persists a bounded per-identity credit score. Only the configured
// authority (the pool core) may mutate scores.
type Ledger struct {
	store     storage
	authority crypto.Address
	emitter   events.Emitter
	nowFn     func() int64
}

// NewLedger constructs a ledger bound to the provided storage backend. The
// authority address is the only caller permitted to change scores.
func NewLedger(store storage, authority crypto.Address) *Ledger {
	return &Ledger{
		store:     store,
		authority: authority,
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter wires an event sink. Nil restores the discarding default.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetNowFunc overrides the wall clock used for event timestamps.
func (l *Ledger) SetNowFunc(now func() int64) {
	if l == nil || now == nil {
		return
	}
	l.nowFn = now
}

// Score returns the stored score for the subject, defaulting to zero for
// identities that have never been scored.
func (l *Ledger) Score(subject crypto.Address) (int64, error) {
	if l == nil || l.store == nil {
		return 0, errNoStore
	}
	var stored storedScore
	ok, err := l.store.KVGet(scoreKey(subject), &stored)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return int64(stored.Value), nil
}

// Increase raises the subject's score by delta, clamping at MaxScore.
func (l *Ledger) Increase(caller, subject crypto.Address, delta uint64) error {
	return l.adjust(caller, subject, delta, true)
}

// Decrease lowers the subject's score by delta, clamping at MinScore.
func (l *Ledger) Decrease(caller, subject crypto.Address, delta uint64) error {
	return l.adjust(caller, subject, delta, false)
}

func (l *Ledger) adjust(caller, subject crypto.Address, delta uint64, increase bool) error {
	if l == nil || l.store == nil {
		return errNoStore
	}
	if !caller.Equal(l.authority) {
		return ErrUnauthorized
	}
	if delta == 0 {
		return nil
	}
	current, err := l.Score(subject)
	if err != nil {
		return err
	}
	next := current
	if increase {
		next += int64(delta)
		if next > MaxScore {
			next = MaxScore
		}
	} else {
		next -= int64(delta)
		if next < MinScore {
			next = MinScore
		}
	}
	if err := l.store.KVPut(scoreKey(subject), storedScore{Value: uint64(next)}); err != nil {
		return err
	}
	l.emitter.Emit(events.CreditScoreChanged{
		Subject:  subject,
		Delta:    delta,
		NewScore: next,
		Increase: increase,
		Time:     l.nowFn(),
	})
	return nil
}
