package game

import (
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/annel0/iso-game/internal/vec"
)

// FrameEventKind тип события, привязанного к кадру анимации
type FrameEventKind uint8

const (
	EventFire FrameEventKind = iota
	EventHit
	EventSound
	EventStepLeft
	EventStepRight
	EventPickup
)

var frameEventNames = enumNames{"fire", "hit", "sound", "step_left", "step_right", "pickup"}

func (k FrameEventKind) String() string { return frameEventNames.name(int(k)) }

func (k *FrameEventKind) UnmarshalYAML(node *yaml.Node) error {
	v, err := frameEventNames.unmarshal("frame event", node)
	*k = FrameEventKind(v)
	return err
}

// FrameEvent событие кадра. Offset используется событием fire (точка вылета снаряда).
type FrameEvent struct {
	Kind   FrameEventKind `yaml:"kind"`
	Offset vec.Vec3       `yaml:"-"`
}

// Frame кадр последовательности. События срабатывают, когда кадр становится текущим.
type Frame struct {
	Events []FrameEvent
}

// Sequence анимационная последовательность спрайта
type Sequence struct {
	Name     string
	Frames   []Frame
	Dirs     int
	Loop     bool
	LoopFrom int // Кадр, на который перескакивает зацикленная анимация
}

// Sprite набор последовательностей и размер ограничивающей коробки
type Sprite struct {
	Name      string
	BBox      vec.Vec3
	Sequences []Sequence
	index     map[string]int
}

// FindSequence возвращает индекс последовательности или -1
func (s *Sprite) FindSequence(name string) int {
	if id, ok := s.index[name]; ok {
		return id
	}
	return -1
}

// FrameCount возвращает количество кадров последовательности
func (s *Sprite) FrameCount(seq int) int {
	return len(s.Sequences[seq].Frames)
}

// DirCount возвращает количество направлений последовательности
func (s *Sprite) DirCount(seq int) int {
	if seq < 0 || seq >= len(s.Sequences) || s.Sequences[seq].Dirs <= 0 {
		return 1
	}
	return s.Sequences[seq].Dirs
}

// FindDir выбирает ближайшее к углу направление последовательности
func (s *Sprite) FindDir(seq int, angle float32) int {
	dirs := s.DirCount(seq)
	if dirs == 1 {
		return 0
	}
	pos := (float64(angle) - math.Pi) / (2 * math.Pi) * float64(dirs)
	dir := int(math.Floor(pos+0.5)) % dirs
	if dir < 0 {
		dir += dirs
	}
	return dir
}

// DirAngle возвращает угол, соответствующий индексу направления
func (s *Sprite) DirAngle(seq, dir int) float32 {
	return float32(dir)*(2*math.Pi)/float32(s.DirCount(seq)) + math.Pi
}

func (s *Sprite) buildIndex() error {
	s.index = make(map[string]int, len(s.Sequences))
	for i, seq := range s.Sequences {
		if len(seq.Frames) == 0 {
			return fmt.Errorf("sprite %s: sequence %s has no frames", s.Name, seq.Name)
		}
		if seq.LoopFrom < 0 || seq.LoopFrom >= len(seq.Frames) {
			return fmt.Errorf("sprite %s: sequence %s: invalid loop frame %d", s.Name, seq.Name, seq.LoopFrom)
		}
		if _, dup := s.index[seq.Name]; dup {
			return fmt.Errorf("sprite %s: duplicate sequence %s", s.Name, seq.Name)
		}
		s.index[seq.Name] = i
	}
	return nil
}

// AnimationName имя последовательности для стойки, действия и класса оружия
func AnimationName(stance Stance, action Action, weapon WeaponClass) string {
	return fmt.Sprintf("%s_%s_%s", stance, action, weapon)
}

// DeathAnimationName имя последовательности смерти
func DeathAnimationName(death DeathID) string {
	return "death_" + death.String()
}

// ImpactProto прототип эффекта попадания
type ImpactProto struct {
	ID     string
	Index  int
	Sprite *Sprite
}

// ProjectileProto прототип снаряда
type ProjectileProto struct {
	ID          string
	Index       int
	Sprite      *Sprite
	Speed       float32
	MaxDistance float32
	BlendAngles bool
	Impact      *ImpactProto
}

// WeaponProto прототип оружия
type WeaponProto struct {
	ID         string
	Class      WeaponClass
	Modes      []AttackMode
	Damage     float32
	DamageType DamageType
	Force      float32
	Spread     float32
	Range      float32
	Projectile *ProjectileProto
	Impact     *ImpactProto
}

// HasMode сообщает, поддерживает ли оружие режим атаки
func (w *WeaponProto) HasMode(mode AttackMode) bool {
	for _, m := range w.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// DefaultMode первый режим атаки оружия
func (w *WeaponProto) DefaultMode() AttackMode {
	if len(w.Modes) == 0 {
		return AttackUndefined
	}
	return w.Modes[0]
}

// ItemType тип предмета
type ItemType uint8

const (
	ItemWeapon ItemType = iota
	ItemAmmo
	ItemArmour
	ItemOther
)

var itemTypeNames = enumNames{"weapon", "ammo", "armour", "other"}

func (t ItemType) String() string { return itemTypeNames.name(int(t)) }

func (t *ItemType) UnmarshalYAML(node *yaml.Node) error {
	v, err := itemTypeNames.unmarshal("item type", node)
	*t = ItemType(v)
	return err
}

// ItemProto прототип предмета
type ItemProto struct {
	ID     string
	Index  int
	Name   string
	Type   ItemType
	Weight float32
	Sprite *Sprite
	Weapon *WeaponProto // Для оружия
	Armour ArmourClass  // Для брони
}

type animKey struct {
	stance Stance
	action Action
	weapon WeaponClass
}

// ActorProto прототип актёра. Варианты с бронёй хранятся как отдельные
// прототипы с идентификатором "<base>:<armour item>".
type ActorProto struct {
	ID              string
	BaseID          string
	Index           int
	Sprite          *Sprite
	HitPoints       float32
	Speeds          [4]float32 // prone, crouch, stand, run
	Punch           *WeaponProto
	Weapons         []WeaponClass
	CanChangeStance bool
	IsAlive         bool

	anims  map[animKey]int
	deaths [deathCount]int
}

// AnimID возвращает индекс последовательности или -1
func (p *ActorProto) AnimID(action Action, stance Stance, weapon WeaponClass) int {
	if id, ok := p.anims[animKey{stance, action, weapon}]; ok {
		return id
	}
	return -1
}

// DeathAnimID возвращает индекс последовательности смерти или -1
func (p *ActorProto) DeathAnimID(death DeathID) int {
	if death >= deathCount {
		return -1
	}
	return p.deaths[death]
}

// CanEquipWeapon сообщает, может ли актёр использовать оружие данного класса
func (p *ActorProto) CanEquipWeapon(class WeaponClass) bool {
	if class == WeaponUnarmed {
		return true
	}
	for _, c := range p.Weapons {
		if c == class {
			return true
		}
	}
	return false
}

func (p *ActorProto) connect() {
	p.anims = make(map[animKey]int)
	for s := Stance(0); s < stanceCount; s++ {
		for a := Action(0); a < actionCount; a++ {
			if a == ActionDeath {
				continue
			}
			for w := WeaponClass(0); w < weaponClassCount; w++ {
				if id := p.Sprite.FindSequence(AnimationName(s, a, w)); id != -1 {
					p.anims[animKey{s, a, w}] = id
				}
			}
		}
	}
	for d := DeathID(0); d < deathCount; d++ {
		p.deaths[d] = p.Sprite.FindSequence(DeathAnimationName(d))
	}
}

// Registry хранилище игровых ресурсов одной сессии симуляции
type Registry struct {
	sprites     map[string]*Sprite
	impacts     []*ImpactProto
	projectiles []*ProjectileProto
	weapons     map[string]*WeaponProto
	items       []*ItemProto
	actors      []*ActorProto

	impactByID     map[string]*ImpactProto
	projectileByID map[string]*ProjectileProto
	itemByID       map[string]*ItemProto
	actorByID      map[string]*ActorProto
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{
		sprites:        make(map[string]*Sprite),
		weapons:        make(map[string]*WeaponProto),
		impactByID:     make(map[string]*ImpactProto),
		projectileByID: make(map[string]*ProjectileProto),
		itemByID:       make(map[string]*ItemProto),
		actorByID:      make(map[string]*ActorProto),
	}
}

// AddSprite регистрирует спрайт
func (r *Registry) AddSprite(s *Sprite) error {
	if _, ok := r.sprites[s.Name]; ok {
		return fmt.Errorf("duplicate sprite %s", s.Name)
	}
	if err := s.buildIndex(); err != nil {
		return err
	}
	r.sprites[s.Name] = s
	return nil
}

func (r *Registry) Sprite(name string) *Sprite { return r.sprites[name] }

func (r *Registry) addImpact(p *ImpactProto) {
	p.Index = len(r.impacts)
	r.impacts = append(r.impacts, p)
	r.impactByID[p.ID] = p
}

func (r *Registry) addProjectile(p *ProjectileProto) {
	p.Index = len(r.projectiles)
	r.projectiles = append(r.projectiles, p)
	r.projectileByID[p.ID] = p
}

func (r *Registry) addItem(p *ItemProto) {
	p.Index = len(r.items)
	r.items = append(r.items, p)
	r.itemByID[p.ID] = p
}

func (r *Registry) addActor(p *ActorProto) {
	p.Index = len(r.actors)
	p.connect()
	r.actors = append(r.actors, p)
	r.actorByID[p.ID] = p
}

func (r *Registry) Impact(id string) *ImpactProto         { return r.impactByID[id] }
func (r *Registry) Projectile(id string) *ProjectileProto { return r.projectileByID[id] }
func (r *Registry) Weapon(id string) *WeaponProto         { return r.weapons[id] }
func (r *Registry) Item(id string) *ItemProto             { return r.itemByID[id] }
func (r *Registry) Actor(id string) *ActorProto           { return r.actorByID[id] }

func (r *Registry) ImpactAt(i int) *ImpactProto         { return protoAt(r.impacts, i) }
func (r *Registry) ProjectileAt(i int) *ProjectileProto { return protoAt(r.projectiles, i) }
func (r *Registry) ItemAt(i int) *ItemProto             { return protoAt(r.items, i) }
func (r *Registry) ActorAt(i int) *ActorProto           { return protoAt(r.actors, i) }

func protoAt[T any](list []*T, i int) *T {
	if i < 0 || i >= len(list) {
		return nil
	}
	return list[i]
}

// ArmourVariant ищет прототип актёра для надетой брони. nil броня возвращает базовый прототип.
func (r *Registry) ArmourVariant(p *ActorProto, armour *ItemProto) *ActorProto {
	if armour == nil {
		return r.Actor(p.BaseID)
	}
	return r.Actor(p.BaseID + ":" + armour.ID)
}

// Файловый формат реестра

type vec3YAML [3]int

func (v vec3YAML) vec() vec.Vec3 { return vec.Vec3{X: v[0], Y: v[1], Z: v[2]} }

type registryFile struct {
	Sprites []struct {
		Name      string   `yaml:"name"`
		BBox      vec3YAML `yaml:"bbox"`
		Sequences []struct {
			Name     string `yaml:"name"`
			Frames   int    `yaml:"frames"`
			Dirs     int    `yaml:"dirs"`
			Loop     bool   `yaml:"loop"`
			LoopFrom int    `yaml:"loop_from"`
			Events   []struct {
				Frame  int            `yaml:"frame"`
				Kind   FrameEventKind `yaml:"kind"`
				Offset vec3YAML       `yaml:"offset"`
			} `yaml:"events"`
		} `yaml:"sequences"`
	} `yaml:"sprites"`
	Impacts []struct {
		ID     string `yaml:"id"`
		Sprite string `yaml:"sprite"`
	} `yaml:"impacts"`
	Projectiles []struct {
		ID          string  `yaml:"id"`
		Sprite      string  `yaml:"sprite"`
		Speed       float32 `yaml:"speed"`
		MaxDistance float32 `yaml:"max_distance"`
		BlendAngles bool    `yaml:"blend_angles"`
		Impact      string  `yaml:"impact"`
	} `yaml:"projectiles"`
	Weapons []struct {
		ID         string       `yaml:"id"`
		Class      WeaponClass  `yaml:"class"`
		Modes      []AttackMode `yaml:"modes"`
		Damage     float32      `yaml:"damage"`
		DamageType DamageType   `yaml:"damage_type"`
		Force      float32      `yaml:"force"`
		Spread     float32      `yaml:"spread"`
		Range      float32      `yaml:"range"`
		Projectile string       `yaml:"projectile"`
		Impact     string       `yaml:"impact"`
	} `yaml:"weapons"`
	Items []struct {
		ID     string      `yaml:"id"`
		Name   string      `yaml:"name"`
		Type   ItemType    `yaml:"type"`
		Weight float32     `yaml:"weight"`
		Sprite string      `yaml:"sprite"`
		Weapon string      `yaml:"weapon"`
		Armour ArmourClass `yaml:"armour"`
	} `yaml:"items"`
	Actors []struct {
		ID              string        `yaml:"id"`
		Sprite          string        `yaml:"sprite"`
		HitPoints       float32       `yaml:"hit_points"`
		Speeds          [4]float32    `yaml:"speeds"`
		Punch           string        `yaml:"punch"`
		Weapons         []WeaponClass `yaml:"weapons"`
		CanChangeStance bool          `yaml:"can_change_stance"`
		IsAlive         bool          `yaml:"is_alive"`
		Armours         []struct {
			Item   string `yaml:"item"`
			Sprite string `yaml:"sprite"`
		} `yaml:"armours"`
	} `yaml:"actors"`
}

// LoadRegistry загружает реестр из YAML-файла
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение ресурсов %s: %w", path, err)
	}
	return ParseRegistry(data)
}

// ParseRegistry разбирает реестр из YAML и связывает ссылки между прототипами
func ParseRegistry(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("разбор ресурсов: %w", err)
	}

	r := NewRegistry()
	for _, sf := range f.Sprites {
		s := &Sprite{Name: sf.Name, BBox: sf.BBox.vec()}
		for _, qf := range sf.Sequences {
			seq := Sequence{Name: qf.Name, Dirs: qf.Dirs, Loop: qf.Loop, LoopFrom: qf.LoopFrom}
			if seq.Dirs <= 0 {
				seq.Dirs = 1
			}
			seq.Frames = make([]Frame, qf.Frames)
			for _, ev := range qf.Events {
				if ev.Frame < 0 || ev.Frame >= qf.Frames {
					return nil, fmt.Errorf("sprite %s: sequence %s: event frame %d out of range", sf.Name, qf.Name, ev.Frame)
				}
				seq.Frames[ev.Frame].Events = append(seq.Frames[ev.Frame].Events,
					FrameEvent{Kind: ev.Kind, Offset: ev.Offset.vec()})
			}
			s.Sequences = append(s.Sequences, seq)
		}
		if err := r.AddSprite(s); err != nil {
			return nil, err
		}
	}

	sprite := func(owner, name string) (*Sprite, error) {
		s := r.Sprite(name)
		if s == nil {
			return nil, fmt.Errorf("%s: unknown sprite %q", owner, name)
		}
		return s, nil
	}

	for _, pf := range f.Impacts {
		s, err := sprite("impact "+pf.ID, pf.Sprite)
		if err != nil {
			return nil, err
		}
		r.addImpact(&ImpactProto{ID: pf.ID, Sprite: s})
	}

	for _, pf := range f.Projectiles {
		s, err := sprite("projectile "+pf.ID, pf.Sprite)
		if err != nil {
			return nil, err
		}
		p := &ProjectileProto{ID: pf.ID, Sprite: s, Speed: pf.Speed, MaxDistance: pf.MaxDistance, BlendAngles: pf.BlendAngles}
		if pf.Impact != "" {
			if p.Impact = r.Impact(pf.Impact); p.Impact == nil {
				return nil, fmt.Errorf("projectile %s: unknown impact %q", pf.ID, pf.Impact)
			}
		}
		r.addProjectile(p)
	}

	for _, wf := range f.Weapons {
		w := &WeaponProto{
			ID: wf.ID, Class: wf.Class, Modes: wf.Modes, Damage: wf.Damage, DamageType: wf.DamageType,
			Force: wf.Force, Spread: wf.Spread, Range: wf.Range,
		}
		if wf.Projectile != "" {
			if w.Projectile = r.Projectile(wf.Projectile); w.Projectile == nil {
				return nil, fmt.Errorf("weapon %s: unknown projectile %q", wf.ID, wf.Projectile)
			}
		}
		if wf.Impact != "" {
			if w.Impact = r.Impact(wf.Impact); w.Impact == nil {
				return nil, fmt.Errorf("weapon %s: unknown impact %q", wf.ID, wf.Impact)
			}
		}
		if err := r.AddWeapon(w); err != nil {
			return nil, err
		}
	}

	for _, itf := range f.Items {
		it := &ItemProto{ID: itf.ID, Name: itf.Name, Type: itf.Type, Weight: itf.Weight, Armour: itf.Armour}
		s, err := sprite("item "+itf.ID, itf.Sprite)
		if err != nil {
			return nil, err
		}
		it.Sprite = s
		if itf.Type == ItemWeapon {
			if it.Weapon = r.Weapon(itf.Weapon); it.Weapon == nil {
				return nil, fmt.Errorf("item %s: unknown weapon %q", itf.ID, itf.Weapon)
			}
		}
		r.addItem(it)
	}

	for _, af := range f.Actors {
		s, err := sprite("actor "+af.ID, af.Sprite)
		if err != nil {
			return nil, err
		}
		punch := r.Weapon(af.Punch)
		if punch == nil {
			return nil, fmt.Errorf("actor %s: unknown punch weapon %q", af.ID, af.Punch)
		}
		base := &ActorProto{
			ID: af.ID, BaseID: af.ID, Sprite: s, HitPoints: af.HitPoints, Speeds: af.Speeds, Punch: punch,
			Weapons: af.Weapons, CanChangeStance: af.CanChangeStance, IsAlive: af.IsAlive,
		}
		if err := r.AddActor(base); err != nil {
			return nil, err
		}
		for _, arm := range af.Armours {
			item := r.Item(arm.Item)
			if item == nil || item.Type != ItemArmour {
				return nil, fmt.Errorf("actor %s: %q is not an armour item", af.ID, arm.Item)
			}
			as, err := sprite("actor "+af.ID+":"+arm.Item, arm.Sprite)
			if err != nil {
				return nil, err
			}
			variant := *base
			variant.ID = af.ID + ":" + arm.Item
			variant.Sprite = as
			if err := r.AddActor(&variant); err != nil {
				return nil, err
			}
		}
	}

	return r, nil
}

// AddWeapon регистрирует прототип оружия
func (r *Registry) AddWeapon(w *WeaponProto) error {
	if _, ok := r.weapons[w.ID]; ok {
		return fmt.Errorf("duplicate weapon %s", w.ID)
	}
	if len(w.Modes) == 0 {
		return fmt.Errorf("weapon %s has no attack modes", w.ID)
	}
	if w.Projectile == nil {
		for _, m := range w.Modes {
			if m.IsRanged() {
				return fmt.Errorf("weapon %s: ranged mode %s requires a projectile", w.ID, m)
			}
		}
	}
	r.weapons[w.ID] = w
	return nil
}

// AddActor регистрирует прототип актёра и строит таблицу анимаций
func (r *Registry) AddActor(p *ActorProto) error {
	if _, ok := r.actorByID[p.ID]; ok {
		return fmt.Errorf("duplicate actor %s", p.ID)
	}
	if p.Sprite == nil || p.Punch == nil {
		return fmt.Errorf("actor %s: sprite and punch weapon are required", p.ID)
	}
	if p.BaseID == "" {
		p.BaseID = p.ID
	}
	r.addActor(p)
	if p.AnimID(ActionIdle, StanceStand, WeaponUnarmed) == -1 {
		return fmt.Errorf("actor %s: sprite %s has no %s sequence", p.ID, p.Sprite.Name,
			AnimationName(StanceStand, ActionIdle, WeaponUnarmed))
	}
	return nil
}

// ActorIDs возвращает идентификаторы прототипов актёров в порядке индексов
func (r *Registry) ActorIDs() []string {
	out := make([]string, len(r.actors))
	for i, p := range r.actors {
		out[i] = p.ID
	}
	return out
}

// ItemIDs возвращает идентификаторы предметов по алфавиту
func (r *Registry) ItemIDs() []string {
	out := make([]string, 0, len(r.items))
	for _, p := range r.items {
		out = append(out, p.ID)
	}
	sort.Strings(out)
	return out
}
