package vm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/taskvm/taskvm/compiler"
	"github.com/taskvm/taskvm/errors"
)

type recordingObserver struct {
	cfg    ObserverConfig
	events []StepEvent
	stopAt int
}

func (o *recordingObserver) Config() ObserverConfig { return o.cfg }

func (o *recordingObserver) OnStep(event StepEvent) bool {
	o.events = append(o.events, event)
	return o.stopAt == 0 || len(o.events) < o.stopAt
}

func TestObserverStepAll(t *testing.T) {
	code, err := compiler.Compile("real a = 1; print a;")
	require.Nil(t, err)
	obs := &recordingObserver{cfg: ObserverConfig{StepMode: StepAll}}
	machine := New(code, WithObserver(obs))
	require.Nil(t, machine.Run(context.Background()))

	var names []string
	for _, e := range obs.events {
		names = append(names, e.OpcodeName)
	}
	require.Equal(t, []string{"subsp", "ld_const", "store", "load", "print_real", "addsp"}, names)
	require.Equal(t, int64(6), machine.Steps())
	require.Equal(t, 0, obs.events[0].StackDepth)
	require.Equal(t, 1, obs.events[1].StackDepth)
	require.Equal(t, 1.0, obs.events[1].Instruction.Float)
}

func TestObserverOnLine(t *testing.T) {
	code, err := compiler.Compile("real a = 1;\nprint a;\nprint a;")
	require.Nil(t, err)
	obs := &recordingObserver{cfg: ObserverConfig{StepMode: StepOnLine}}
	require.Nil(t, New(code, WithObserver(obs)).Run(context.Background()))
	var lines []int
	for _, e := range obs.events {
		lines = append(lines, e.Line)
	}
	require.Equal(t, []int{1, 2, 3}, lines)
}

func TestObserverSampled(t *testing.T) {
	code, err := compiler.Compile("real i = 0; while (i < 10) i = i + 1;")
	require.Nil(t, err)
	obs := &recordingObserver{cfg: ObserverConfig{StepMode: StepSampled, SampleInterval: 10}}
	machine := New(code, WithObserver(obs))
	require.Nil(t, machine.Run(context.Background()))
	require.Equal(t, int(machine.Steps()/10), len(obs.events))
}

func TestObserverNone(t *testing.T) {
	code, err := compiler.Compile("print 1;")
	require.Nil(t, err)
	obs := &recordingObserver{cfg: ObserverConfig{StepMode: StepNone}}
	require.Nil(t, New(code, WithObserver(obs)).Run(context.Background()))
	require.Empty(t, obs.events)
}

func TestObserverHalts(t *testing.T) {
	code, err := compiler.Compile("while (1 == 1) ;")
	require.Nil(t, err)
	obs := &recordingObserver{cfg: ObserverConfig{StepMode: StepAll}, stopAt: 5}
	err = New(code, WithObserver(obs)).Run(context.Background())
	requireRuntimeError(t, err, errors.E3007)
	require.Len(t, obs.events, 5)
}

func TestNormalizeConfig(t *testing.T) {
	cfg := NormalizeConfig(ObserverConfig{StepMode: StepSampled})
	require.Equal(t, 1, cfg.SampleInterval)
	require.Equal(t, NoOpObserver{}.Config().StepMode, StepAll)
	require.True(t, NoOpObserver{}.OnStep(StepEvent{}))
}
