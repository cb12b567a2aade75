package game

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalAssets = `
sprites:
  - name: dummy
    bbox: [3, 9, 3]
    sequences:
      - name: stand_idle_unarmed
        frames: 2
        dirs: 8
        loop: true
      - name: stand_attack_single_pistol
        frames: 3
        dirs: 8
        events:
          - frame: 1
            kind: fire
            offset: [1, 5, 2]
      - name: death_normal
        frames: 2
  - name: dummy_leather
    bbox: [3, 9, 3]
    sequences:
      - name: stand_idle_unarmed
        frames: 1
  - name: shot
    bbox: [1, 1, 1]
    sequences:
      - name: default
        frames: 1
  - name: pistol_item
    sequences:
      - name: default
        frames: 1
impacts:
  - id: spark
    sprite: shot
projectiles:
  - id: slug
    sprite: shot
    speed: 30
    max_distance: 50
    impact: spark
weapons:
  - id: fist
    class: unarmed
    modes: [punch]
    damage: 2
    damage_type: bludgeoning
  - id: pistol
    class: pistol
    modes: [single]
    damage: 10
    damage_type: bullet
    projectile: slug
items:
  - id: pistol
    name: Pistol
    type: weapon
    weight: 2
    sprite: pistol_item
    weapon: pistol
  - id: vest
    name: Vest
    type: armour
    sprite: pistol_item
    armour: leather
actors:
  - id: dummy
    sprite: dummy
    hit_points: 30
    speeds: [1, 2, 3, 4]
    punch: fist
    weapons: [pistol]
    can_change_stance: true
    is_alive: true
    armours:
      - item: vest
        sprite: dummy_leather
`

func TestParseRegistry(t *testing.T) {
	reg, err := ParseRegistry([]byte(minimalAssets))
	require.NoError(t, err)

	dummy := reg.Actor("dummy")
	require.NotNil(t, dummy)
	assert.Equal(t, float32(30), dummy.HitPoints)
	assert.Equal(t, 0, dummy.AnimID(ActionIdle, StanceStand, WeaponUnarmed))
	assert.Equal(t, 1, dummy.AnimID(ActionAttackSingle, StanceStand, WeaponPistol))
	assert.Equal(t, -1, dummy.AnimID(ActionWalk, StanceStand, WeaponUnarmed))
	assert.Equal(t, 2, dummy.DeathAnimID(DeathNormal))
	assert.Equal(t, -1, dummy.DeathAnimID(DeathMelt))
	assert.True(t, dummy.CanEquipWeapon(WeaponPistol))
	assert.False(t, dummy.CanEquipWeapon(WeaponRifle))

	seq := dummy.Sprite.Sequences[1]
	require.Len(t, seq.Frames[1].Events, 1)
	assert.Equal(t, FrameEvent{Kind: EventFire, Offset: v3(1, 5, 2)}, seq.Frames[1].Events[0])

	pistol := reg.Weapon("pistol")
	require.NotNil(t, pistol)
	assert.Same(t, reg.Projectile("slug"), pistol.Projectile)
	assert.Same(t, reg.Impact("spark"), pistol.Projectile.Impact)
	assert.Equal(t, AttackSingle, pistol.DefaultMode())

	vest := reg.Item("vest")
	variant := reg.ArmourVariant(dummy, vest)
	require.NotNil(t, variant)
	assert.Equal(t, "dummy:vest", variant.ID)
	assert.Equal(t, "dummy", variant.BaseID)
	assert.Same(t, dummy, reg.ArmourVariant(variant, nil))
	assert.Equal(t, []string{"dummy", "dummy:vest"}, reg.ActorIDs())
	assert.Equal(t, []string{"pistol", "vest"}, reg.ItemIDs())
	assert.Same(t, dummy, reg.ActorAt(dummy.Index))
	assert.Nil(t, reg.ActorAt(5))
}

func TestParseRegistryErrors(t *testing.T) {
	cases := map[string]string{
		"unknown sprite": `
weapons:
  - id: fist
    modes: [punch]
actors:
  - id: a
    sprite: nope
    punch: fist
`,
		"ranged without projectile": `
weapons:
  - id: gun
    class: pistol
    modes: [single]
`,
		"no idle animation": `
sprites:
  - name: s
    sequences:
      - name: stand_walk_unarmed
        frames: 1
weapons:
  - id: fist
    modes: [punch]
actors:
  - id: a
    sprite: s
    punch: fist
`,
		"event out of range": `
sprites:
  - name: s
    sequences:
      - name: x
        frames: 1
        events:
          - frame: 3
            kind: hit
`,
		"bad enum": `
weapons:
  - id: fist
    class: trebuchet
    modes: [punch]
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRegistry([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestMissingAnimationIsDataError(t *testing.T) {
	reg, err := ParseRegistry([]byte(minimalAssets))
	require.NoError(t, err)
	w := NewWorld(WorldConfig{Mode: ModeServer, Assets: reg})
	a := NewActor(reg.Actor("dummy"), StanceStand)
	w.AddEntity(a)

	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		_, ok := r.(DataError)
		assert.True(t, ok, "panic value %T", r)
	}()
	a.SetOrder(NewChangeStanceOrder(StanceCrouch), true)
}

func TestSpriteDirections(t *testing.T) {
	s := &Sprite{Name: "s", Sequences: []Sequence{{Name: "a", Frames: make([]Frame, 1), Dirs: 8}}}
	require.NoError(t, s.buildIndex())

	for dir := 0; dir < 8; dir++ {
		assert.Equal(t, dir, s.FindDir(0, s.DirAngle(0, dir)), "dir %d", dir)
	}
	assert.Equal(t, 0, s.FindDir(0, math.Pi+0.1))
	assert.Equal(t, 0, s.FindDir(0, -math.Pi))
}

func TestBuiltinRegistry(t *testing.T) {
	reg := BuiltinRegistry()
	male := reg.Actor("male")
	require.NotNil(t, male)

	for s := Stance(0); s < stanceCount; s++ {
		assert.NotEqual(t, -1, male.AnimID(ActionIdle, s, WeaponUnarmed), s.String())
		assert.NotEqual(t, -1, male.AnimID(ActionAttackBurst, s, WeaponRifle), s.String())
	}
	for d := DeathID(0); d < deathCount; d++ {
		assert.NotEqual(t, -1, male.DeathAnimID(d), d.String())
	}
	assert.NotNil(t, reg.ArmourVariant(male, reg.Item("leather")))
	assert.Equal(t, "stand_attack_burst_rifle", AnimationName(StanceStand, ActionAttackBurst, WeaponRifle))
}
