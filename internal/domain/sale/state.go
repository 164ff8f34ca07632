package sale

import "errors"

var ErrInvalidStateTransition = errors.New("sale: invalid state transition")

type Phase string

const (
	PhaseOpen            Phase = "open"
	PhaseReserving       Phase = "reserving"
	PhaseAwaitingPayment Phase = "awaiting_payment"
	PhaseCommitted       Phase = "committed"
	PhaseAborted         Phase = "aborted"
)

// Transaction tracks one in-flight sale through the coordinator's state
// machine. The coordinator is the only writer of transitions.
type Transaction struct {
	CartID      string
	AbortReason string

	state txState
}

func NewTransaction(cartID string) *Transaction {
	return &Transaction{CartID: cartID, state: openState{}}
}

func (t *Transaction) Phase() Phase { return t.state.Phase() }

func (t *Transaction) BeginReserving() error {
	return t.apply(t.state.BeginReserving(t))
}

func (t *Transaction) AwaitPayment() error {
	return t.apply(t.state.AwaitPayment(t))
}

func (t *Transaction) Commit() error {
	return t.apply(t.state.Commit(t))
}

func (t *Transaction) Abort(reason string) error {
	return t.apply(t.state.Abort(t, reason))
}

func (t *Transaction) apply(next txState, err error) error {
	if err != nil {
		return err
	}
	t.state = next
	return nil
}

// txState implements the state pattern for the sale transaction lifecycle.
type txState interface {
	Phase() Phase
	BeginReserving(t *Transaction) (txState, error)
	AwaitPayment(t *Transaction) (txState, error)
	Commit(t *Transaction) (txState, error)
	Abort(t *Transaction, reason string) (txState, error)
}

type openState struct{}

func (openState) Phase() Phase { return PhaseOpen }

func (openState) BeginReserving(*Transaction) (txState, error) {
	return reservingState{}, nil
}

func (openState) AwaitPayment(*Transaction) (txState, error) {
	return nil, ErrInvalidStateTransition
}

func (openState) Commit(*Transaction) (txState, error) {
	return nil, ErrInvalidStateTransition
}

func (openState) Abort(t *Transaction, reason string) (txState, error) {
	t.AbortReason = reason
	return abortedState{}, nil
}

type reservingState struct{}

func (reservingState) Phase() Phase { return PhaseReserving }

func (reservingState) BeginReserving(*Transaction) (txState, error) {
	return nil, ErrInvalidStateTransition
}

func (reservingState) AwaitPayment(*Transaction) (txState, error) {
	return awaitingPaymentState{}, nil
}

func (reservingState) Commit(*Transaction) (txState, error) {
	return nil, ErrInvalidStateTransition
}

func (reservingState) Abort(t *Transaction, reason string) (txState, error) {
	t.AbortReason = reason
	return abortedState{}, nil
}

type awaitingPaymentState struct{}

func (awaitingPaymentState) Phase() Phase { return PhaseAwaitingPayment }

func (awaitingPaymentState) BeginReserving(*Transaction) (txState, error) {
	return nil, ErrInvalidStateTransition
}

func (awaitingPaymentState) AwaitPayment(*Transaction) (txState, error) {
	return nil, ErrInvalidStateTransition
}

func (awaitingPaymentState) Commit(t *Transaction) (txState, error) {
	t.AbortReason = ""
	return committedState{}, nil
}

func (awaitingPaymentState) Abort(t *Transaction, reason string) (txState, error) {
	t.AbortReason = reason
	return abortedState{}, nil
}

type committedState struct{}

func (committedState) Phase() Phase { return PhaseCommitted }

func (committedState) BeginReserving(*Transaction) (txState, error) {
	return nil, ErrInvalidStateTransition
}

func (committedState) AwaitPayment(*Transaction) (txState, error) {
	return nil, ErrInvalidStateTransition
}

// Commit is idempotent on a committed transaction to tolerate retry-after-timeout callers.
func (committedState) Commit(*Transaction) (txState, error) {
	return committedState{}, nil
}

func (committedState) Abort(*Transaction, string) (txState, error) {
	return nil, ErrInvalidStateTransition
}

type abortedState struct{}

func (abortedState) Phase() Phase { return PhaseAborted }

func (abortedState) BeginReserving(*Transaction) (txState, error) {
	return nil, ErrInvalidStateTransition
}

func (abortedState) AwaitPayment(*Transaction) (txState, error) {
	return nil, ErrInvalidStateTransition
}

func (abortedState) Commit(*Transaction) (txState, error) {
	return nil, ErrInvalidStateTransition
}

func (abortedState) Abort(t *Transaction, reason string) (txState, error) {
	t.AbortReason = reason
	return abortedState{}, nil
}
