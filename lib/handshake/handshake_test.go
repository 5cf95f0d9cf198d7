package handshake

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowmerak/agentbridge/lib/instrument"
)

var finderJP = instrument.JoinPoint{Type: "fake.PluginFinder", Method: "BuildMatch"}

// fakeFinder stands in for a foreign agent's internal plugin registry.
type fakeFinder struct {
	inst   instrument.Instrumentation
	plugin string
}

func (f *fakeFinder) BuildMatch() (string, error) {
	if err := f.inst.Enter(finderJP, f); err != nil {
		return "", err
	}
	return "match:" + f.plugin, nil
}

func (f *fakeFinder) Find(name string) []string {
	if name == f.plugin {
		return []string{f.plugin}
	}
	return nil
}

// fakeAgent models a foreign bootstrap with a point of no return.
type fakeAgent struct {
	inst      instrument.Instrumentation
	installed int
}

func (a *fakeAgent) premain() error {
	finder := &fakeFinder{inst: a.inst, plugin: "com.example.Target"}
	if _, err := finder.BuildMatch(); err != nil {
		return fmt.Errorf("fake agent: build match: %w", err)
	}
	a.installed++
	return nil
}

func newArmed(t *testing.T, inst instrument.Instrumentation, methods ...string) *Handshake {
	t.Helper()
	h, err := New(finderJP, methods...)
	require.NoError(t, err)
	require.Equal(t, StatusIdle, h.Status())
	require.NoError(t, h.Arm(inst))
	require.Equal(t, StatusArmed, h.Status())
	return h
}

func TestHandshake_CapturesAndInterrupts(t *testing.T) {
	inst := instrument.NewAdviceTable()
	agent := &fakeAgent{inst: inst}
	h := newArmed(t, inst, "BuildMatch", "Find")

	require.NoError(t, h.Run(agent.premain))
	assert.Equal(t, StatusBridged, h.Status())
	assert.Zero(t, agent.installed, "foreign agent must not reach installation")
	assert.IsType(t, &fakeFinder{}, h.Receiver())

	out, err := h.Call("BuildMatch")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "match:com.example.Target", out[0])
	assert.Nil(t, out[1])

	out, err = h.Call("Find", "com.example.Target")
	require.NoError(t, err)
	assert.Equal(t, []string{"com.example.Target"}, out[0])
}

func TestHandshake_FiresOnce(t *testing.T) {
	inst := instrument.NewAdviceTable()
	h := newArmed(t, inst, "BuildMatch")

	var wg sync.WaitGroup
	var mu sync.Mutex
	sentinels := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if IsSentinel(inst.Enter(finderJP, &fakeFinder{inst: inst}), h.Token()) {
				mu.Lock()
				sentinels++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, sentinels)
	assert.Equal(t, StatusBridged, h.Status())
}

func TestHandshake_NotInterrupted(t *testing.T) {
	inst := instrument.NewAdviceTable()
	h := newArmed(t, inst, "BuildMatch")

	err := h.Run(func() error { return nil })
	assert.ErrorIs(t, err, ErrNotInterrupted)
	assert.Equal(t, StatusArmed, h.Status())

	_, err = h.Call("BuildMatch")
	assert.ErrorIs(t, err, ErrNotBridged)
}

func TestHandshake_ForeignError(t *testing.T) {
	inst := instrument.NewAdviceTable()
	h := newArmed(t, inst, "BuildMatch")
	boom := errors.New("boom")

	err := h.Run(func() error { return boom })
	assert.ErrorIs(t, err, ErrBootstrap)
	assert.ErrorIs(t, err, boom)
}

func TestHandshake_ForeignSentinelIsNotOurs(t *testing.T) {
	inst := instrument.NewAdviceTable()
	h := newArmed(t, inst, "BuildMatch")

	err := h.Run(func() error { return &Sentinel{Token: "someone-else"} })
	assert.ErrorIs(t, err, ErrBootstrap)
}

func TestIsSentinel_FindsOwnTokenBehindForeignSentinel(t *testing.T) {
	ours := &Sentinel{Token: "ours"}
	foreign := &Sentinel{Token: "other"}

	assert.True(t, IsSentinel(fmt.Errorf("%w: %w", foreign, ours), "ours"))
	assert.True(t, IsSentinel(fmt.Errorf("outer: %w", fmt.Errorf("%w", ours)), "ours"))
	assert.True(t, IsSentinel(errors.Join(foreign, ours), "ours"))
	assert.False(t, IsSentinel(fmt.Errorf("wrapped: %w", foreign), "ours"))
	assert.False(t, IsSentinel(errors.New("ours"), "ours"))
	assert.False(t, IsSentinel(nil, "ours"))
}

func TestHandshake_ResolveFailureIsSoft(t *testing.T) {
	inst := instrument.NewAdviceTable()
	agent := &fakeAgent{inst: inst}
	h := newArmed(t, inst, "BuildMatch", "FindAll")

	err := h.Run(agent.premain)
	assert.ErrorIs(t, err, ErrResolve)
	assert.Equal(t, StatusFailedResolve, h.Status())
	assert.Zero(t, agent.installed, "the bootstrap is still cancelled")

	_, err = h.Call("BuildMatch")
	assert.ErrorIs(t, err, ErrNotBridged)
}

func TestHandshake_PanickingBootstrap(t *testing.T) {
	inst := instrument.NewAdviceTable()
	h := newArmed(t, inst, "BuildMatch")

	err := h.Run(func() error {
		if err := inst.Enter(finderJP, &fakeFinder{inst: inst}); err != nil {
			panic(err)
		}
		return nil
	})
	assert.NoError(t, err, "a sentinel raised as a panic still completes the handshake")

	h2 := newArmed(t, instrument.NewAdviceTable(), "BuildMatch")
	err = h2.Run(func() error { panic("exploded") })
	assert.ErrorIs(t, err, ErrBootstrap)
}

func TestHandshake_SecondNaturalEntryPassesThrough(t *testing.T) {
	inst := instrument.NewAdviceTable()
	agent := &fakeAgent{inst: inst}
	h := newArmed(t, inst, "BuildMatch")
	require.NoError(t, h.Run(agent.premain))

	// The captured finder calls Enter again from BuildMatch.
	out, err := h.Call("BuildMatch")
	require.NoError(t, err)
	assert.Nil(t, out[1])

	require.NoError(t, agent.premain())
	assert.Equal(t, 1, agent.installed)
}

func TestHandshake_CallArguments(t *testing.T) {
	inst := instrument.NewAdviceTable()
	agent := &fakeAgent{inst: inst}
	h := newArmed(t, inst, "Find")
	require.NoError(t, h.Run(agent.premain))

	_, err := h.Call("Find")
	assert.Error(t, err)
	_, err = h.Call("Find", 42)
	assert.Error(t, err)
	_, err = h.Call("BuildMatch")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestHandshake_ArmTwice(t *testing.T) {
	inst := instrument.NewAdviceTable()
	h := newArmed(t, inst)
	assert.ErrorIs(t, h.Arm(inst), ErrAlreadyArmed)

	h.Disarm()
	assert.False(t, inst.Advised(finderJP))
}

func TestHandshake_RearmAfterDisarm(t *testing.T) {
	inst := instrument.NewAdviceTable()
	h := newArmed(t, inst)

	h.Disarm()
	require.NoError(t, h.Arm(inst))
	assert.True(t, inst.Advised(finderJP))

	h.Disarm()
	h.Disarm()
	assert.False(t, inst.Advised(finderJP))
}

func TestHandshake_TokensAreUnique(t *testing.T) {
	a, err := New(finderJP)
	require.NoError(t, err)
	b, err := New(finderJP)
	require.NoError(t, err)
	assert.NotEqual(t, a.Token(), b.Token())
	assert.Len(t, a.Token(), 32)
}
