package game

import "github.com/annel0/iso-game/internal/vec"

// Встроенный набор ресурсов: гуманоид с анимациями для рукопашной, ножа,
// пистолета и винтовки, снаряды, эффекты попаданий и базовые предметы.

type seqSpec struct {
	frames int
	loop   bool
	events map[int][]FrameEvent
}

func (s seqSpec) build(name string, dirs int) Sequence {
	seq := Sequence{Name: name, Frames: make([]Frame, s.frames), Dirs: dirs, Loop: s.loop}
	for frame, evs := range s.events {
		seq.Frames[frame].Events = append(seq.Frames[frame].Events, evs...)
	}
	return seq
}

func ev(kind FrameEventKind) []FrameEvent { return []FrameEvent{{Kind: kind}} }

func fireAt(x, y, z int) []FrameEvent {
	return []FrameEvent{{Kind: EventFire, Offset: vec.Vec3{X: x, Y: y, Z: z}}}
}

var builtinWeaponClasses = []WeaponClass{WeaponUnarmed, WeaponKnife, WeaponPistol, WeaponRifle}

func humanSequences() []Sequence {
	const dirs = 8
	var out []Sequence
	add := func(stance Stance, action Action, weapon WeaponClass, spec seqSpec) {
		out = append(out, spec.build(AnimationName(stance, action, weapon), dirs))
	}

	for _, stance := range []Stance{StanceProne, StanceCrouch, StanceStand} {
		// Действия без оружия, используются как запасной вариант
		for _, w := range builtinWeaponClasses {
			add(stance, ActionIdle, w, seqSpec{frames: 4, loop: true})
			add(stance, ActionWalk, w, seqSpec{frames: 8, loop: true, events: map[int][]FrameEvent{
				2: ev(EventStepLeft), 6: ev(EventStepRight),
			}})
		}
		if stance != StanceStand {
			add(stance, ActionStanceUp, WeaponUnarmed, seqSpec{frames: 4})
		}
		if stance != StanceProne {
			add(stance, ActionStanceDown, WeaponUnarmed, seqSpec{frames: 4})
			add(stance, ActionPickup, WeaponUnarmed, seqSpec{frames: 4, events: map[int][]FrameEvent{2: ev(EventPickup)}})
		}
		add(stance, ActionGetHit, WeaponUnarmed, seqSpec{frames: 3, events: map[int][]FrameEvent{0: ev(EventSound)}})
		add(stance, ActionDodge, WeaponUnarmed, seqSpec{frames: 3})
		add(stance, ActionFallForward, WeaponUnarmed, seqSpec{frames: 4})
		add(stance, ActionFallBack, WeaponUnarmed, seqSpec{frames: 4})
		add(stance, ActionFallenForward, WeaponUnarmed, seqSpec{frames: 1, loop: true})
		add(stance, ActionFallenBack, WeaponUnarmed, seqSpec{frames: 1, loop: true})
		add(stance, ActionGetUpForward, WeaponUnarmed, seqSpec{frames: 4})
		add(stance, ActionGetUpBack, WeaponUnarmed, seqSpec{frames: 4})

		hit := map[int][]FrameEvent{2: ev(EventHit)}
		add(stance, ActionAttackPunch, WeaponUnarmed, seqSpec{frames: 4, events: hit})
		add(stance, ActionAttackKick, WeaponUnarmed, seqSpec{frames: 5, events: hit})
		add(stance, ActionAttackSlash, WeaponKnife, seqSpec{frames: 4, events: hit})
		add(stance, ActionAttackThrust, WeaponKnife, seqSpec{frames: 4, events: hit})

		fire := map[int][]FrameEvent{1: fireAt(1, 5, 2)}
		if stance == StanceProne {
			fire = map[int][]FrameEvent{1: fireAt(1, 1, 3)}
		}
		add(stance, ActionAttackSingle, WeaponPistol, seqSpec{frames: 4, events: fire})
		add(stance, ActionAttackSingle, WeaponRifle, seqSpec{frames: 4, events: fire})
		add(stance, ActionAttackBurst, WeaponRifle, seqSpec{frames: 6, events: fire})
	}
	add(StanceStand, ActionRun, WeaponUnarmed, seqSpec{frames: 8, loop: true, events: map[int][]FrameEvent{
		1: ev(EventStepLeft), 5: ev(EventStepRight),
	}})

	for d := DeathID(0); d < deathCount; d++ {
		spec := seqSpec{frames: 6, events: map[int][]FrameEvent{0: ev(EventSound)}}
		out = append(out, spec.build(DeathAnimationName(d), dirs))
	}
	return out
}

func simpleSprite(name string, bbox vec.Vec3, frames, dirs int, loop bool) *Sprite {
	return &Sprite{
		Name:      name,
		BBox:      bbox,
		Sequences: []Sequence{seqSpec{frames: frames, loop: loop}.build("default", dirs)},
	}
}

// BuiltinRegistry создаёт встроенный набор ресурсов
func BuiltinRegistry() *Registry {
	r := NewRegistry()
	must := func(err error) {
		if err != nil {
			dataErrorf("builtin assets: %v", err)
		}
	}

	human := &Sprite{Name: "human", BBox: vec.Vec3{X: 3, Y: 9, Z: 3}, Sequences: humanSequences()}
	humanLeather := &Sprite{Name: "human_leather", BBox: human.BBox, Sequences: humanSequences()}
	must(r.AddSprite(human))
	must(r.AddSprite(humanLeather))
	must(r.AddSprite(simpleSprite("bullet", vec.Vec3{X: 1, Y: 1, Z: 1}, 1, 8, true)))
	must(r.AddSprite(simpleSprite("impact_bullet", vec.Vec3{}, 3, 1, false)))
	must(r.AddSprite(simpleSprite("impact_melee", vec.Vec3{}, 2, 1, false)))
	for _, name := range []string{"item_rifle", "item_pistol", "item_knife", "item_ammo", "item_leather", "item_medkit"} {
		must(r.AddSprite(simpleSprite(name, vec.Vec3{X: 2, Y: 0, Z: 2}, 1, 1, false)))
	}

	r.addImpact(&ImpactProto{ID: "bullet", Sprite: r.Sprite("impact_bullet")})
	r.addImpact(&ImpactProto{ID: "melee", Sprite: r.Sprite("impact_melee")})
	r.addProjectile(&ProjectileProto{
		ID: "bullet", Sprite: r.Sprite("bullet"), Speed: 60, MaxDistance: 80, Impact: r.Impact("bullet"),
	})

	must(r.AddWeapon(&WeaponProto{
		ID: "punch", Class: WeaponUnarmed, Modes: []AttackMode{AttackPunch, AttackKick},
		Damage: 5, DamageType: DamageBludgeoning, Force: 4, Range: 1.5, Impact: r.Impact("melee"),
	}))
	must(r.AddWeapon(&WeaponProto{
		ID: "knife", Class: WeaponKnife, Modes: []AttackMode{AttackSlash, AttackThrust},
		Damage: 15, DamageType: DamageSlashing, Force: 3, Range: 1.5, Impact: r.Impact("melee"),
	}))
	must(r.AddWeapon(&WeaponProto{
		ID: "pistol", Class: WeaponPistol, Modes: []AttackMode{AttackSingle},
		Damage: 20, DamageType: DamageBullet, Force: 6, Spread: 0.02, Range: 40, Projectile: r.Projectile("bullet"),
	}))
	must(r.AddWeapon(&WeaponProto{
		ID: "rifle", Class: WeaponRifle, Modes: []AttackMode{AttackSingle, AttackBurst},
		Damage: 25, DamageType: DamageBullet, Force: 10, Spread: 0.01, Range: 60, Projectile: r.Projectile("bullet"),
	}))

	r.addItem(&ItemProto{ID: "rifle", Name: "Rifle", Type: ItemWeapon, Weight: 8, Sprite: r.Sprite("item_rifle"), Weapon: r.Weapon("rifle")})
	r.addItem(&ItemProto{ID: "pistol", Name: "Pistol", Type: ItemWeapon, Weight: 3, Sprite: r.Sprite("item_pistol"), Weapon: r.Weapon("pistol")})
	r.addItem(&ItemProto{ID: "knife", Name: "Knife", Type: ItemWeapon, Weight: 1, Sprite: r.Sprite("item_knife"), Weapon: r.Weapon("knife")})
	r.addItem(&ItemProto{ID: "ammo", Name: "Ammo", Type: ItemAmmo, Weight: 0.1, Sprite: r.Sprite("item_ammo")})
	r.addItem(&ItemProto{ID: "leather", Name: "Leather armour", Type: ItemArmour, Weight: 10, Sprite: r.Sprite("item_leather"), Armour: ArmourLeather})
	r.addItem(&ItemProto{ID: "medkit", Name: "Medkit", Type: ItemOther, Weight: 1, Sprite: r.Sprite("item_medkit")})

	male := &ActorProto{
		ID: "male", Sprite: human, HitPoints: 100, Speeds: [4]float32{3.5, 6, 10, 20},
		Punch: r.Weapon("punch"), Weapons: []WeaponClass{WeaponKnife, WeaponPistol, WeaponRifle},
		CanChangeStance: true, IsAlive: true,
	}
	must(r.AddActor(male))
	leather := *male
	leather.ID, leather.Sprite = "male:leather", humanLeather
	leather.anims = nil
	must(r.AddActor(&leather))

	return r
}
