package client_test

import (
	"testing"

	"github.com/dylanconnolly/starparty-be/client"
	"github.com/dylanconnolly/starparty-be/presence"
	"github.com/dylanconnolly/starparty-be/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	ready  bool
	frames [][]byte
}

func (s *fakeSender) TrySend(b []byte) bool {
	if !s.ready {
		return false
	}
	s.frames = append(s.frames, b)
	return true
}

func TestEmitter_SendsWhenReady(t *testing.T) {
	s := &fakeSender{ready: true}
	e := client.NewEmitter(s)

	assert.True(t, e.Tick(presence.VecState(1, 2, 3)))
	require.Len(t, s.frames, 1)

	msg, err := protocol.DecodeClient(s.frames[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.ClientMove{Position: presence.VecState(1, 2, 3)}, msg)
	assert.Equal(t, uint64(1), e.Sent())
	assert.Equal(t, uint64(0), e.Dropped())
}

func TestEmitter_DropsWhenNotReady(t *testing.T) {
	s := &fakeSender{}
	e := client.NewEmitter(s)

	assert.False(t, e.Tick(presence.VecState(1, 2, 3)))
	assert.False(t, e.Tick(presence.VecState(4, 5, 6)))

	s.ready = true
	assert.True(t, e.Tick(presence.VecState(7, 8, 9)))

	// only the latest sample goes out, nothing was queued
	require.Len(t, s.frames, 1)
	assert.JSONEq(t, `{"type":"move","position":{"x":7,"y":8,"z":9}}`, string(s.frames[0]))
	assert.Equal(t, uint64(2), e.Dropped())
	assert.Equal(t, uint64(1), e.Sent())
}

func TestEmitter_InvalidStateDropped(t *testing.T) {
	s := &fakeSender{ready: true}
	e := client.NewEmitter(s)

	assert.False(t, e.Tick(presence.State{}))
	assert.Empty(t, s.frames)
	assert.Equal(t, uint64(1), e.Dropped())
}
