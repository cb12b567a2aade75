package game

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/iso-game/internal/physics"
	"github.com/annel0/iso-game/internal/protocol"
	"github.com/annel0/iso-game/internal/vec"
)

// Entity объект симуляции: актёр, снаряд, предмет, эффект попадания
type Entity interface {
	Base() *EntityBase
	Type() EntityID
	Flags() Flags
	BoundingBox() physics.Box

	// OnImpact применяет урон к сущности
	OnImpact(damageType DamageType, damage float32, force mgl32.Vec3)

	think()
	nextFrame()
	onAnimFinished()
	onFrameEvent(ev FrameEvent)
	protoIndex() int
	encode(w *protocol.Writer)
	decode(r *protocol.Reader, reg *Registry)
}

// EntityBase общее состояние сущностей: позиция, направление, анимация
type EntityBase struct {
	self   Entity
	world  *World
	ref    EntityRef
	sprite *Sprite

	pos      mgl32.Vec3
	angle    float32
	seq      int
	frame    int
	dir      int
	looped   bool
	finished bool
}

func (b *EntityBase) init(self Entity, sprite *Sprite) {
	b.self = self
	b.sprite = sprite
	b.seq = -1
	b.playSequence(0, false)
}

func (b *EntityBase) Base() *EntityBase   { return b }
func (b *EntityBase) Ref() EntityRef      { return b.ref }
func (b *EntityBase) World() *World       { return b.world }
func (b *EntityBase) Sprite() *Sprite     { return b.sprite }
func (b *EntityBase) Pos() mgl32.Vec3     { return b.pos }
func (b *EntityBase) DirAngle() float32   { return b.angle }
func (b *EntityBase) SequenceIndex() int  { return b.seq }
func (b *EntityBase) FrameIndex() int     { return b.frame }
func (b *EntityBase) DirIndex() int       { return b.dir }
func (b *EntityBase) IsLooped() bool      { return b.looped }
func (b *EntityBase) IsAnimFinished() bool { return b.finished }

// IsClient сообщает, что сущность живёт в клиентской копии мира
func (b *EntityBase) IsClient() bool { return b.world != nil && b.world.IsClient() }

// IsServer сообщает, что сущность живёт в серверном мире
func (b *EntityBase) IsServer() bool { return b.world != nil && b.world.IsServer() }

// SetPos перемещает сущность
func (b *EntityBase) SetPos(pos mgl32.Vec3) {
	b.pos = pos
}

// SetDirAngle поворачивает сущность и выбирает направление спрайта
func (b *EntityBase) SetDirAngle(angle float32) {
	b.angle = angle
	b.dir = b.sprite.FindDir(b.seq, angle)
}

// ActualDirAngle угол текущего направления спрайта (с учётом дискретизации)
func (b *EntityBase) ActualDirAngle() float32 {
	return b.sprite.DirAngle(b.seq, b.dir)
}

// BoundingBox коробка по размеру спрайта
func (b *EntityBase) BoundingBox() physics.Box {
	return physics.NewBox(b.pos, b.sprite.BBox.Float())
}

// Remove помечает сущность на удаление в конце такта
func (b *EntityBase) Remove() {
	if b.world != nil {
		b.world.RemoveEntity(b.ref)
	}
}

func (b *EntityBase) replicate() {
	if b.world != nil {
		b.world.replicate(b.ref)
	}
}

func (b *EntityBase) timeDelta() float32 {
	if b.world == nil {
		return 0
	}
	return b.world.TimeDelta()
}

func (b *EntityBase) fireFrameEvents(seq, frame int) {
	for _, ev := range b.sprite.Sequences[seq].Frames[frame].Events {
		b.self.onFrameEvent(ev)
	}
}

// playSequence запускает последовательность с первого кадра.
// Зацикленная последовательность, которая уже играет, не перезапускается.
func (b *EntityBase) playSequence(seq int, handleEvents bool) {
	if seq < 0 || seq >= len(b.sprite.Sequences) {
		dataErrorf("sprite %s: invalid sequence %d", b.sprite.Name, seq)
	}

	b.finished = false
	restart := seq != b.seq || !b.looped
	if seq != b.seq {
		b.seq = seq
		b.dir = b.sprite.FindDir(seq, b.angle)
		b.looped = b.sprite.Sequences[seq].Loop
	}
	if restart {
		b.frame = 0
		if handleEvents {
			b.fireFrameEvents(seq, 0)
		}
	}
}

// stepAnimation переходит к следующему кадру и вызывает события кадра.
// По окончании незацикленной последовательности кадр остаётся последним.
func (b *EntityBase) stepAnimation() {
	if b.finished {
		return
	}

	seq := &b.sprite.Sequences[b.seq]
	next := b.frame + 1
	if next >= len(seq.Frames) {
		if !seq.Loop {
			b.finished = true
			b.self.onAnimFinished()
			return
		}
		next = seq.LoopFrom
	}
	b.frame = next
	b.fireFrameEvents(b.seq, next)
}

func (b *EntityBase) nextFrame()                  { b.stepAnimation() }
func (b *EntityBase) onAnimFinished()             {}
func (b *EntityBase) onFrameEvent(ev FrameEvent)  {}
func (b *EntityBase) think()                      {}
func (b *EntityBase) OnImpact(DamageType, float32, mgl32.Vec3) {}

const (
	entityFlagCompressed = 1
	entityFlagLooped     = 2
	entityFlagFinished   = 4
)

func (b *EntityBase) encodeBase(w *protocol.Writer) {
	compress := b.seq >= 0 && b.seq <= 255 && b.frame <= 255 && b.dir <= 255
	var flags uint8
	if compress {
		flags |= entityFlagCompressed
	}
	if b.looped {
		flags |= entityFlagLooped
	}
	if b.finished {
		flags |= entityFlagFinished
	}
	w.U8(flags)
	writeFloat3(w, b.pos)
	w.F32(b.angle)
	if compress {
		w.U8(uint8(b.seq))
		w.U8(uint8(b.frame))
		w.U8(uint8(b.dir))
	} else {
		w.Varint(int64(b.seq))
		w.Varint(int64(b.frame))
		w.Varint(int64(b.dir))
	}
}

func (b *EntityBase) decodeBase(r *protocol.Reader) {
	flags := r.U8()
	b.pos = readFloat3(r)
	b.angle = r.F32()
	if flags&entityFlagCompressed != 0 {
		b.seq = int(r.U8())
		b.frame = int(r.U8())
		b.dir = int(r.U8())
	} else {
		b.seq = int(r.Varint())
		b.frame = int(r.Varint())
		b.dir = int(r.Varint())
	}
	b.looped = flags&entityFlagLooped != 0
	b.finished = flags&entityFlagFinished != 0

	if r.Err() != nil {
		return
	}
	if b.seq < 0 || b.seq >= len(b.sprite.Sequences) ||
		b.frame < 0 || b.frame >= b.sprite.FrameCount(b.seq) ||
		b.dir < 0 || b.dir >= b.sprite.DirCount(b.seq) {
		r.Fail(errBadAnimState)
	}
}

// AreAdjacent сообщает, что коробки сущностей пересекаются по высоте
// и находятся вплотную на плоскости карты
func AreAdjacent(a, b Entity) bool {
	boxA, boxB := a.BoundingBox(), b.BoundingBox()
	if boxA.Max[1] < boxB.Min[1] || boxB.Max[1] < boxA.Min[1] {
		return false
	}
	return physics.RectDistanceSq(boxA, boxB) <= 1
}

// lookAtAngle угол направления от точки from к точке to на плоскости XZ.
// ok = false, если точки совпадают.
func lookAtAngle(from, to mgl32.Vec3) (float32, bool) {
	dx, dz := to[0]-from[0], to[2]-from[2]
	if math.Abs(float64(dx)) < 1e-4 && math.Abs(float64(dz)) < 1e-4 {
		return 0, false
	}
	return vec.VectorToAngle(dx, dz), true
}

func roundPos(e Entity) vec.Vec3 {
	return vec.Round(e.Base().Pos())
}
