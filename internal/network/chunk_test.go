package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkArenaReusesSlots(t *testing.T) {
	var a chunkArena
	i1 := a.alloc(Chunk{ID: 1}, chunkPending)
	i2 := a.alloc(Chunk{ID: 2}, chunkPending)
	assert.NotEqual(t, i1, i2)

	a.move(i1, chunkPending, chunkInFlight)
	a.release(i1, chunkInFlight)
	assert.Equal(t, 1, a.count(chunkPending))

	i3 := a.alloc(Chunk{ID: 3}, chunkBacklog)
	assert.Equal(t, i1, i3)
	assert.Equal(t, int32(3), a.get(i3).ID)
}

func TestChunkArenaRejectsInvalidMove(t *testing.T) {
	var a chunkArena
	idx := a.alloc(Chunk{}, chunkPending)

	require.Panics(t, func() { a.move(idx, chunkInFlight, chunkFree) })
	require.Panics(t, func() { a.release(idx, chunkDelivered) })
}

func TestIndexQueueFIFO(t *testing.T) {
	var q indexQueue
	q.push(4)
	q.push(7)
	assert.Equal(t, 2, q.len())
	assert.Equal(t, 4, q.pop())
	assert.Equal(t, 7, q.front())
	assert.Equal(t, 7, q.pop())
	assert.True(t, q.empty())
}
