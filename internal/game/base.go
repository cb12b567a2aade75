package game

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DataError сигнализирует о повреждённых игровых данных (например, отсутствует
// обязательная анимация). Такие ошибки фатальны и передаются через panic.
type DataError struct {
	Msg string
}

func (e DataError) Error() string { return "game data: " + e.Msg }

func dataErrorf(format string, args ...interface{}) {
	panic(DataError{Msg: fmt.Sprintf(format, args...)})
}

// enumNames общий разбор перечислений по именам
type enumNames []string

func (n enumNames) name(v int) string {
	if v < 0 || v >= len(n) {
		return fmt.Sprintf("invalid(%d)", v)
	}
	return n[v]
}

func (n enumNames) parse(kind, s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range n {
		if name == s {
			return i, nil
		}
	}
	return -1, fmt.Errorf("unknown %s %q", kind, s)
}

func (n enumNames) unmarshal(kind string, node *yaml.Node) (int, error) {
	var s string
	if err := node.Decode(&s); err != nil {
		return -1, err
	}
	return n.parse(kind, s)
}

// WeaponClass класс оружия
type WeaponClass uint8

const (
	WeaponUnarmed WeaponClass = iota
	WeaponClub
	WeaponHeavy
	WeaponKnife
	WeaponMinigun
	WeaponPistol
	WeaponRifle
	WeaponRocket
	WeaponSMG
	WeaponSpear
	weaponClassCount
)

var weaponClassNames = enumNames{"unarmed", "club", "heavy", "knife", "minigun", "pistol", "rifle", "rocket", "smg", "spear"}

func (c WeaponClass) String() string { return weaponClassNames.name(int(c)) }

func (c *WeaponClass) UnmarshalYAML(node *yaml.Node) error {
	v, err := weaponClassNames.unmarshal("weapon class", node)
	*c = WeaponClass(v)
	return err
}

// ArmourClass класс брони
type ArmourClass uint8

const (
	ArmourNone ArmourClass = iota
	ArmourLeather
	ArmourMetal
	ArmourEnvironmental
	ArmourPower
)

var armourClassNames = enumNames{"none", "leather", "metal", "environmental", "power"}

func (c ArmourClass) String() string { return armourClassNames.name(int(c)) }

func (c *ArmourClass) UnmarshalYAML(node *yaml.Node) error {
	v, err := armourClassNames.unmarshal("armour class", node)
	*c = ArmourClass(v)
	return err
}

// DamageType тип урона
type DamageType int8

const (
	DamageUndefined DamageType = iota - 1
	DamageBludgeoning
	DamageSlashing
	DamagePiercing
	DamageBullet
	DamageFire
	DamagePlasma
	DamageLaser
	DamageElectric
	DamageExplosive
)

var damageTypeNames = enumNames{"bludgeoning", "slashing", "piercing", "bullet", "fire", "plasma", "laser", "electric", "explosive"}

func (t DamageType) String() string {
	if t == DamageUndefined {
		return "undefined"
	}
	return damageTypeNames.name(int(t))
}

func (t *DamageType) UnmarshalYAML(node *yaml.Node) error {
	v, err := damageTypeNames.unmarshal("damage type", node)
	*t = DamageType(v)
	return err
}

// DeathID вид смерти, определяет анимацию
type DeathID uint8

const (
	DeathNormal DeathID = iota
	DeathBigHole
	DeathCutInHalf
	DeathElectrify
	DeathExplode
	DeathFire
	DeathMelt
	DeathRiddled
	deathCount
)

var deathNames = enumNames{"normal", "big_hole", "cut_in_half", "electrify", "explode", "fire", "melt", "riddled"}

func (d DeathID) String() string { return deathNames.name(int(d)) }

// IsSpecial сообщает, что смерть проигрывается отдельной анимацией даже у упавшего актёра
func (d DeathID) IsSpecial() bool {
	return d == DeathExplode || d == DeathFire || d == DeathElectrify || d == DeathMelt
}

// EntityID тип сущности
type EntityID uint8

const (
	EntityContainer EntityID = iota
	EntityDoor
	EntityActor
	EntityItem
	EntityProjectile
	EntityImpact
	EntityTrigger
	entityIDCount
)

var entityIDNames = enumNames{"container", "door", "actor", "item", "projectile", "impact", "trigger"}

func (id EntityID) String() string { return entityIDNames.name(int(id)) }

// TileID тип тайла
type TileID uint8

const (
	TileWall TileID = iota
	TileFloor
	TileObject
	TileStairs
	TileRoof
	TileUnknown
)

var tileIDNames = enumNames{"wall", "floor", "object", "stairs", "roof", "unknown"}

func (id TileID) String() string { return tileIDNames.name(int(id)) }

func (id *TileID) UnmarshalYAML(node *yaml.Node) error {
	v, err := tileIDNames.unmarshal("tile type", node)
	*id = TileID(v)
	return err
}

// Stance стойка актёра
type Stance uint8

const (
	StanceProne Stance = iota
	StanceCrouch
	StanceStand
	stanceCount
)

var stanceNames = enumNames{"prone", "crouch", "stand"}

func (s Stance) String() string { return stanceNames.name(int(s)) }

func (s *Stance) UnmarshalYAML(node *yaml.Node) error {
	v, err := stanceNames.unmarshal("stance", node)
	*s = Stance(v)
	return err
}

// AttackMode режим атаки
type AttackMode int8

const (
	AttackUndefined AttackMode = iota - 1
	AttackSingle
	AttackBurst
	AttackThrust
	AttackSlash
	AttackSwing
	AttackThrowing
	AttackPunch
	AttackKick
	attackModeCount
)

var attackModeNames = enumNames{"single", "burst", "thrust", "slash", "swing", "throwing", "punch", "kick"}

func (m AttackMode) String() string {
	if m == AttackUndefined {
		return "undefined"
	}
	return attackModeNames.name(int(m))
}

func (m *AttackMode) UnmarshalYAML(node *yaml.Node) error {
	v, err := attackModeNames.unmarshal("attack mode", node)
	*m = AttackMode(v)
	return err
}

// IsRanged сообщает, что атака выполняется снарядом
func (m AttackMode) IsRanged() bool {
	return m == AttackSingle || m == AttackBurst || m == AttackThrowing
}

// IsMelee сообщает, что атака ближнего боя
func (m AttackMode) IsMelee() bool { return m != AttackUndefined && !m.IsRanged() }

// SentryMode поведение охранника
type SentryMode uint8

const (
	SentryPassive SentryMode = iota
	SentryDefensive
	SentryAggressive
)

var sentryModeNames = enumNames{"passive", "defensive", "aggressive"}

func (m SentryMode) String() string { return sentryModeNames.name(int(m)) }

func (m *SentryMode) UnmarshalYAML(node *yaml.Node) error {
	v, err := sentryModeNames.unmarshal("sentry mode", node)
	*m = SentryMode(v)
	return err
}

// Action текущее действие актёра, определяет анимацию
type Action uint8

const (
	ActionIdle Action = iota
	ActionWalk
	ActionRun
	ActionStanceUp
	ActionStanceDown
	ActionAttackSingle
	ActionAttackBurst
	ActionAttackThrust
	ActionAttackSlash
	ActionAttackSwing
	ActionAttackThrow
	ActionAttackPunch
	ActionAttackKick
	ActionGetHit
	ActionDodge
	ActionFallForward
	ActionFallBack
	ActionFallenForward
	ActionFallenBack
	ActionGetUpForward
	ActionGetUpBack
	ActionPickup
	ActionDeath
	actionCount
)

var actionNames = enumNames{
	"idle", "walk", "run", "stance_up", "stance_down",
	"attack_single", "attack_burst", "attack_thrust", "attack_slash", "attack_swing",
	"attack_throw", "attack_punch", "attack_kick",
	"get_hit", "dodge", "fall_forward", "fall_back", "fallen_forward", "fallen_back",
	"get_up_forward", "get_up_back", "pickup", "death",
}

func (a Action) String() string { return actionNames.name(int(a)) }

// IsNormal действия, для которых при отсутствии анимации с текущим оружием
// используется анимация без оружия
func (a Action) IsNormal() bool {
	return a <= ActionStanceDown || (a >= ActionGetHit && a <= ActionPickup)
}

// IsFallen сообщает, что актёр падает или лежит после падения
func (a Action) IsFallen() bool {
	return a == ActionFallForward || a == ActionFallBack || a == ActionFallenForward || a == ActionFallenBack
}

func attackAction(mode AttackMode) Action {
	if mode < 0 || mode >= attackModeCount {
		return ActionAttackSingle
	}
	return ActionAttackSingle + Action(mode)
}

// ParseAction разбирает имя действия
func ParseAction(s string) (Action, error) {
	v, err := actionNames.parse("action", s)
	return Action(v), err
}

// Flags флаги объектов мира для запросов коллизий.
// Общие флаги: при проверке должен совпасть хотя бы один.
// Функциональные флаги: должны совпасть все выбранные.
type Flags uint32

func entityIDToFlag(id EntityID) Flags { return Flags(1) << (4 + id) }
func tileIDToFlag(id TileID) Flags     { return Flags(1) << (16 + id) }

const (
	FlagStaticEntity  Flags = 0x0001
	FlagDynamicEntity Flags = 0x0002 // Может менять позицию или размеры

	FlagContainer  Flags = 1 << (4 + EntityContainer)
	FlagDoor       Flags = 1 << (4 + EntityDoor)
	FlagActor      Flags = 1 << (4 + EntityActor)
	FlagItem       Flags = 1 << (4 + EntityItem)
	FlagProjectile Flags = 1 << (4 + EntityProjectile)
	FlagImpact     Flags = 1 << (4 + EntityImpact)
	FlagTrigger    Flags = 1 << (4 + EntityTrigger)

	FlagEntity Flags = 0xffff

	FlagWallTile     Flags = 1 << (16 + TileWall)
	FlagFloorTile    Flags = 1 << (16 + TileFloor)
	FlagObjectTile   Flags = 1 << (16 + TileObject)
	FlagStairsTile   Flags = 1 << (16 + TileStairs)
	FlagRoofTile     Flags = 1 << (16 + TileRoof)
	FlagWalkableTile       = FlagFloorTile | FlagStairsTile | FlagRoofTile

	FlagTile Flags = 0xff0000
	FlagAll  Flags = 0xffffff

	FlagVisible   Flags = 0x01000000
	FlagOccluding Flags = 0x02000000
	FlagColliding Flags = 0x04000000

	genericMask    Flags = 0x00ffffff
	functionalMask Flags = 0xff000000
)

// Test проверяет флаги объекта на соответствие запросу
func (f Flags) Test(query Flags) bool {
	return f&query&genericMask != 0 && f&query&functionalMask == query&functionalMask
}
