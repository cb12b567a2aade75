package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/iso-game/internal/game"
	"github.com/annel0/iso-game/internal/vec"
)

func openMemory(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func newWorld(t *testing.T) (*game.World, game.EntityRef) {
	t.Helper()
	w := game.NewWorld(game.WorldConfig{Mode: game.ModeServer, Seed: 7})
	a := game.NewActor(w.Assets().Actor("male"), game.StanceStand)
	a.SetPos(vec.Vec3{X: 0, Y: 0, Z: 0}.Float())
	return w, w.AddEntity(a)
}

func TestJournalOrdersByTick(t *testing.T) {
	j := openMemory(t)
	ref := game.NewEntityRef(3, 2)

	j.Append(NewRecord(5, ref, game.NewMoveOrder(vec.Vec3{X: 1}, false), false))
	j.Append(NewRecord(5, ref, game.NewChangeStanceOrder(game.StanceCrouch), true))
	j.Append(NewRecord(2, ref, game.NewIdleOrder(), false))
	require.NoError(t, j.Flush())
	assert.Equal(t, 3, j.Len())

	recs, err := j.Records()
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, 2, recs[0].Tick)
	assert.Equal(t, 5, recs[1].Tick)
	assert.Equal(t, uint32(0), recs[1].Seq)
	assert.Equal(t, "move", recs[1].Kind)
	assert.Equal(t, uint32(1), recs[2].Seq)
	assert.True(t, recs[2].Force)
	assert.Equal(t, ref, recs[2].Actor())

	o, err := recs[2].DecodeOrder()
	require.NoError(t, err)
	stance, ok := o.Data.(*game.ChangeStanceOrder)
	require.True(t, ok)
	assert.Equal(t, game.StanceCrouch, stance.Target)
}

func TestJournalReplayRange(t *testing.T) {
	j := openMemory(t)
	ref := game.NewEntityRef(0, 1)
	for tick := 0; tick < 10; tick++ {
		j.Append(NewRecord(tick, ref, game.NewIdleOrder(), false))
	}
	require.NoError(t, j.Flush())

	var ticks []int
	require.NoError(t, j.Replay(3, 5, func(r Record) error {
		ticks = append(ticks, r.Tick)
		return nil
	}))
	assert.Equal(t, []int{3, 4, 5}, ticks)
}

func TestJournalReopenContinuesNumbering(t *testing.T) {
	dir := t.TempDir()
	ref := game.NewEntityRef(1, 1)

	j, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	j.Append(NewRecord(4, ref, game.NewIdleOrder(), false))
	require.NoError(t, j.Close())
	assert.ErrorIs(t, j.Flush(), ErrClosed)

	j, err = Open(Options{Dir: dir})
	require.NoError(t, err)
	defer j.Close()
	assert.Equal(t, 1, j.Len())

	j.Append(NewRecord(4, ref, game.NewIdleOrder(), true))
	require.NoError(t, j.Flush())

	recs, err := j.Records()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, uint32(1), recs[1].Seq)
}

func TestPlayerReproducesSession(t *testing.T) {
	j := openMemory(t)
	const dt = 0.05

	live, ref := newWorld(t)
	issue := func(o *game.Order, force bool) {
		rec := NewRecord(live.Frame(), ref, o, force)
		if live.Actor(ref).SetOrder(o, force) {
			j.Append(rec)
		}
	}
	for i := 0; i < 60; i++ {
		switch i {
		case 2:
			issue(game.NewMoveOrder(vec.Vec3{X: 6, Z: 3}, false), false)
		case 30:
			issue(game.NewMoveOrder(vec.Vec3{X: 1, Z: 5}, true), true)
		case 50:
			issue(game.NewChangeStanceOrder(game.StanceCrouch), false)
		}
		live.Simulate(dt)
	}
	require.NoError(t, j.Flush())

	recs, err := j.Records()
	require.NoError(t, err)
	require.Len(t, recs, 3)

	replayed, ref2 := newWorld(t)
	require.Equal(t, ref, ref2)
	p := NewPlayer(replayed, recs)
	for i := 0; i < 60; i++ {
		require.NoError(t, p.Step(dt))
	}

	assert.True(t, p.Done())
	assert.Zero(t, p.Skipped())
	assert.Equal(t, live.Actor(ref).Pos(), replayed.Actor(ref).Pos())
	assert.Equal(t, live.Actor(ref).Stance(), replayed.Actor(ref).Stance())
}
