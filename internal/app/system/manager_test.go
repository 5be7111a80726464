package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingService struct {
	name     string
	startErr error
	stopErr  error
	log      *[]string
}

func (r *recordingService) Name() string { return r.name }

func (r *recordingService) Start(context.Context) error {
	*r.log = append(*r.log, "start "+r.name)
	return r.startErr
}

func (r *recordingService) Stop(context.Context) error {
	*r.log = append(*r.log, "stop "+r.name)
	return r.stopErr
}

func TestManagerOrdering(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(&recordingService{name: "a", log: &events}))
	require.NoError(t, m.Register(&recordingService{name: "b", log: &events}))
	assert.Error(t, m.Register(&recordingService{name: "a", log: &events}))
	assert.Error(t, m.Register(NoopService{}))
	assert.Equal(t, []string{"a", "b"}, m.Names())

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	assert.Error(t, m.Register(NoopService{ServiceName: "late"}))
	require.NoError(t, m.Stop(ctx))
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, events)
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	var events []string
	boom := errors.New("boom")
	m := NewManager()
	require.NoError(t, m.Register(&recordingService{name: "a", log: &events}))
	require.NoError(t, m.Register(&recordingService{name: "b", startErr: boom, log: &events}))
	require.NoError(t, m.Register(&recordingService{name: "c", log: &events}))

	err := m.Start(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start a", "start b", "stop a"}, events)
}

func TestManagerJoinsStopErrors(t *testing.T) {
	var events []string
	e1, e2 := errors.New("one"), errors.New("two")
	m := NewManager()
	require.NoError(t, m.Register(&recordingService{name: "a", stopErr: e1, log: &events}))
	require.NoError(t, m.Register(&recordingService{name: "b", stopErr: e2, log: &events}))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))

	err := m.Stop(ctx)
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e2)
}
