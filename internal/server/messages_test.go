package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/iso-game/internal/game"
	"github.com/annel0/iso-game/internal/vec"
)

func TestJoinMessages(t *testing.T) {
	req, err := DecodeJoinRequest(JoinRequest{Name: "alice", Token: "a.b.c"}.Encode())
	require.NoError(t, err)
	assert.Equal(t, JoinRequest{Name: "alice", Token: "a.b.c"}, req)

	_, err = DecodeJoinRequest(JoinRequest{Name: "alice", Token: string(make([]byte, maxTokenLen+1))}.Encode())
	assert.Error(t, err)

	long := make([]byte, maxNameLen*2)
	for i := range long {
		long[i] = 'x'
	}
	req, err = DecodeJoinRequest(JoinRequest{Name: string(long)}.Encode())
	require.NoError(t, err)
	assert.Len(t, req.Name, maxNameLen)

	ack := JoinAck{PeerID: 3, MapName: "bunker", Actor: game.NewEntityRef(7, 2), Frame: 99}
	got, err := DecodeJoinAck(ack.Encode())
	require.NoError(t, err)
	assert.Equal(t, ack, got)

	ack.Actor = game.EntityRef{}
	got, err = DecodeJoinAck(ack.Encode())
	require.NoError(t, err)
	assert.False(t, got.Actor.IsValid())
}

func TestEntityMessages(t *testing.T) {
	reg := game.BuiltinRegistry()
	item := game.NewItemEntity(reg.Item("ammo"), 30, vec.Vec3{X: 4, Z: 1}.Float())

	full := EntityFull{Frame: 12, Ref: game.NewEntityRef(5, 3), Entity: item}
	got, err := DecodeEntityFull(full.Encode(), reg)
	require.NoError(t, err)
	assert.Equal(t, uint32(12), got.Frame)
	assert.Equal(t, full.Ref, got.Ref)
	decoded, ok := got.Entity.(*game.ItemEntity)
	require.True(t, ok)
	assert.Equal(t, 30, decoded.Count())
	assert.Equal(t, item.Pos(), decoded.Pos())

	del, err := DecodeEntityDelete(EntityDelete{Frame: 4, Index: 17}.Encode())
	require.NoError(t, err)
	assert.Equal(t, EntityDelete{Frame: 4, Index: 17}, del)
}

func TestOrderRequestMessage(t *testing.T) {
	req := OrderRequest{Force: true, Order: game.NewMoveOrder(vec.Vec3{X: 3, Z: 4}, true)}
	got, err := DecodeOrderRequest(req.Encode())
	require.NoError(t, err)
	assert.True(t, got.Force)
	move, ok := got.Order.Data.(*game.MoveOrder)
	require.True(t, ok)
	assert.Equal(t, vec.Vec3{X: 3, Z: 4}, move.Target)
}

func TestMalformedMessages(t *testing.T) {
	reg := game.BuiltinRegistry()

	tests := []struct {
		name   string
		decode func() error
	}{
		{"empty join ack", func() error { _, err := DecodeJoinAck(nil); return err }},
		{"trailing bytes", func() error {
			_, err := DecodeEntityDelete(append(EntityDelete{Index: 1}.Encode(), 0))
			return err
		}},
		{"entity without ref", func() error {
			full := EntityFull{Entity: game.NewItemEntity(reg.Item("ammo"), 1, vec.Vec3{}.Float())}
			_, err := DecodeEntityFull(full.Encode(), reg)
			return err
		}},
		{"truncated entity", func() error {
			full := EntityFull{Ref: game.NewEntityRef(0, 1), Entity: game.NewItemEntity(reg.Item("ammo"), 1, vec.Vec3{}.Float())}
			data := full.Encode()
			_, err := DecodeEntityFull(data[:len(data)-2], reg)
			return err
		}},
		{"garbage order", func() error { _, err := DecodeOrderRequest([]byte{1, 200, 7}); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.decode())
		})
	}
}

func TestSortUnique(t *testing.T) {
	assert.Equal(t, []int{1, 2, 5, 9}, sortUnique([]int{9, 2, 5, 2, 1, 9}))
	assert.Equal(t, []int{4}, sortUnique([]int{4}))
	assert.Empty(t, sortUnique(nil))
}
