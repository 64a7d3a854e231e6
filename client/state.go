package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/looplab/fsm"
)

const (
	StateIdle             = "idle"
	StateParametersLoaded = "parameters_loaded"
	StateComputing        = "computing"
	StateResultReady      = "result_ready"

	eventLoad    = "load"
	eventCompute = "compute"
	eventFinish  = "finish"
	eventReport  = "report"
	eventFail    = "fail"
)

func newRoundFSM(logger *slog.Logger) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventLoad, Src: []string{StateIdle}, Dst: StateParametersLoaded},
			{Name: eventCompute, Src: []string{StateParametersLoaded}, Dst: StateComputing},
			{Name: eventFinish, Src: []string{StateComputing}, Dst: StateResultReady},
			{Name: eventReport, Src: []string{StateResultReady}, Dst: StateIdle},
			{Name: eventFail, Src: []string{StateParametersLoaded, StateComputing, StateResultReady}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug("round state changed",
					slog.String("event", e.Event),
					slog.String("from", e.Src),
					slog.String("to", e.Dst),
				)
			},
		},
	)
}

// Transitions ignore cancellation so a cancelled round still returns to idle.
func (c *client) fire(ctx context.Context, event string) error {
	if err := c.state.Event(context.WithoutCancel(ctx), event); err != nil {
		return fmt.Errorf("%w: %s from %s: %w", ErrInvalidState, event, c.state.Current(), err)
	}

	return nil
}

// abort returns the round to idle after a failure.
func (c *client) abort(ctx context.Context) {
	if c.state.Current() == StateIdle {
		return
	}
	if err := c.state.Event(context.WithoutCancel(ctx), eventFail); err != nil {
		c.logger.Error("failed to reset round state", slog.Any("error", err))
	}
}
