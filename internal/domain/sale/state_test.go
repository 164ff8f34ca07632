package sale

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHappyPathTransitions(t *testing.T) {
	txn := NewTransaction("cart-1")
	require.Equal(t, PhaseOpen, txn.Phase())

	require.NoError(t, txn.BeginReserving())
	require.Equal(t, PhaseReserving, txn.Phase())

	require.NoError(t, txn.AwaitPayment())
	require.Equal(t, PhaseAwaitingPayment, txn.Phase())

	require.NoError(t, txn.Commit())
	require.Equal(t, PhaseCommitted, txn.Phase())
}

func TestAbortFromAnyPreCommitPhase(t *testing.T) {
	open := NewTransaction("c")
	require.NoError(t, open.Abort("cancelled"))
	require.Equal(t, PhaseAborted, open.Phase())
	require.Equal(t, "cancelled", open.AbortReason)

	reserving := NewTransaction("c")
	require.NoError(t, reserving.BeginReserving())
	require.NoError(t, reserving.Abort("INSUFFICIENT_STOCK"))
	require.Equal(t, PhaseAborted, reserving.Phase())

	awaiting := NewTransaction("c")
	require.NoError(t, awaiting.BeginReserving())
	require.NoError(t, awaiting.AwaitPayment())
	require.NoError(t, awaiting.Abort("PAYMENT_DECLINED"))
	require.Equal(t, PhaseAborted, awaiting.Phase())
	require.Equal(t, "PAYMENT_DECLINED", awaiting.AbortReason)
}

func TestInvalidTransitionsRejected(t *testing.T) {
	txn := NewTransaction("c")
	require.ErrorIs(t, txn.Commit(), ErrInvalidStateTransition)
	require.ErrorIs(t, txn.AwaitPayment(), ErrInvalidStateTransition)

	require.NoError(t, txn.BeginReserving())
	require.ErrorIs(t, txn.BeginReserving(), ErrInvalidStateTransition)
	require.ErrorIs(t, txn.Commit(), ErrInvalidStateTransition)
}

func TestCommittedIsTerminalAndIdempotent(t *testing.T) {
	txn := NewTransaction("c")
	require.NoError(t, txn.BeginReserving())
	require.NoError(t, txn.AwaitPayment())
	require.NoError(t, txn.Commit())

	require.NoError(t, txn.Commit(), "repeat commit is a no-op")
	require.Equal(t, PhaseCommitted, txn.Phase())

	require.ErrorIs(t, txn.Abort("late"), ErrInvalidStateTransition)
	require.ErrorIs(t, txn.BeginReserving(), ErrInvalidStateTransition)
}

func TestAbortedIsTerminal(t *testing.T) {
	txn := NewTransaction("c")
	require.NoError(t, txn.Abort("first"))

	require.NoError(t, txn.Abort("second"), "repeat abort is tolerated")
	require.Equal(t, PhaseAborted, txn.Phase())
	require.Equal(t, "second", txn.AbortReason)

	require.ErrorIs(t, txn.Commit(), ErrInvalidStateTransition)
	require.ErrorIs(t, txn.AwaitPayment(), ErrInvalidStateTransition)
}
