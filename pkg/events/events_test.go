package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBus_DeliversInRegistrationOrder(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var calls []string
	bus.Subscribe("first", func(ctx context.Context, e Event) error {
		calls = append(calls, "first")
		return nil
	})
	bus.Subscribe("second", func(ctx context.Context, e Event) error {
		calls = append(calls, "second")
		return nil
	})

	bus.Publish(context.Background(), Event{Kind: FacilityCreated, FacilityID: 1})

	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestBus_FiltersByKind(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var got []Kind
	bus.Subscribe("deletes", func(ctx context.Context, e Event) error {
		got = append(got, e.Kind)
		return nil
	}, FacilityDeleted)

	bus.Publish(context.Background(), Event{Kind: FacilityCreated})
	bus.Publish(context.Background(), Event{Kind: FacilityDeleted})

	assert.Equal(t, []Kind{FacilityDeleted}, got)
}

func TestBus_HandlerFailureIsLoggedAndIsolated(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	bus := NewBus(zap.New(core))

	reached := false
	bus.Subscribe("broken", func(ctx context.Context, e Event) error {
		return errors.New("disk full")
	})
	bus.Subscribe("panicky", func(ctx context.Context, e Event) error {
		panic("boom")
	})
	bus.Subscribe("healthy", func(ctx context.Context, e Event) error {
		reached = true
		return nil
	})

	bus.Publish(context.Background(), Event{Kind: SettingsChanged})

	assert.True(t, reached)
	assert.Equal(t, 1, logs.FilterMessage("Event handler failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("Event handler panicked").Len())
}
