package outbox

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domoutbox "github.com/smartpos/sale-engine/internal/domain/outbox"
)

type testEvent struct{ name string }

func (e testEvent) EventName() string { return e.name }

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())

	var delivered atomic.Int64
	var wg sync.WaitGroup
	wg.Add(2)

	handler := func(context.Context, domoutbox.Event) error {
		delivered.Add(1)
		wg.Done()
		return nil
	}
	bus.Subscribe("sale.committed", handler)
	bus.Subscribe("sale.committed", handler)
	bus.Subscribe("sale.voided", func(context.Context, domoutbox.Event) error {
		t.Error("wrong event delivered")
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "sale.committed"}))

	waitDone(t, &wg)
	require.Equal(t, int64(2), delivered.Load())

	bus.Stop(context.Background())
}

func TestBusRecoversFromHandlerPanic(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)

	bus.Subscribe("boom", func(context.Context, domoutbox.Event) error {
		defer wg.Done()
		panic("handler exploded")
	})

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "boom"}))
	waitDone(t, &wg)

	// The dispatch loop survives; later events still flow.
	wg.Add(1)
	bus.Subscribe("after", func(context.Context, domoutbox.Event) error {
		wg.Done()
		return nil
	})
	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "after"}))
	waitDone(t, &wg)

	bus.Stop(context.Background())
}

func TestBusStopDrainsQueue(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())

	var delivered atomic.Int64
	bus.Subscribe("e", func(context.Context, domoutbox.Event) error {
		delivered.Add(1)
		return nil
	})

	for range 20 {
		require.NoError(t, bus.Publish(context.Background(), testEvent{name: "e"}))
	}

	bus.Stop(context.Background())
	require.Equal(t, int64(20), delivered.Load(), "stop waits for in-flight events")
}

func waitDone(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handlers")
	}
}

func TestPublishAfterStopReturnsError(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())
	bus.Stop(context.Background())

	err := bus.Publish(context.Background(), testEvent{name: "late"})
	require.ErrorIs(t, err, ErrStopped)
}
