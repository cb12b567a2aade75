package game

import (
	"fmt"
	"math"
)

// EntityRef ссылка на сущность мира: индекс слота плюс поколение.
// Поколение 0 означает пустую ссылку. После удаления сущности поколение
// слота увеличивается, и старые ссылки перестают разрешаться.
type EntityRef struct {
	index int32
	gen   uint32
}

// NewEntityRef собирает ссылку из индекса и поколения (используется при декодировании)
func NewEntityRef(index int, gen uint32) EntityRef {
	if index < 0 || gen == 0 {
		return EntityRef{}
	}
	return EntityRef{index: int32(index), gen: gen}
}

func (r EntityRef) IsValid() bool      { return r.gen != 0 }
func (r EntityRef) Index() int         { return int(r.index) }
func (r EntityRef) Generation() uint32 { return r.gen }

func (r EntityRef) String() string {
	if !r.IsValid() {
		return "entity(-)"
	}
	return fmt.Sprintf("entity(%d#%d)", r.index, r.gen)
}

// ObjectKind тип объекта, на который указывает ObjectRef
type ObjectKind uint8

const (
	ObjectNone ObjectKind = iota
	ObjectTile
	ObjectEntity
)

// ObjectRef результат пространственного запроса: тайл или сущность
type ObjectRef struct {
	Kind  ObjectKind
	Index int
	gen   uint32
}

func tileRef(index int) ObjectRef { return ObjectRef{Kind: ObjectTile, Index: index} }

func entityObjectRef(ref EntityRef) ObjectRef {
	return ObjectRef{Kind: ObjectEntity, Index: ref.Index(), gen: ref.gen}
}

func (r ObjectRef) IsValid() bool  { return r.Kind != ObjectNone }
func (r ObjectRef) IsTile() bool   { return r.Kind == ObjectTile }
func (r ObjectRef) IsEntity() bool { return r.Kind == ObjectEntity }

// Entity возвращает ссылку на сущность (пустую, если объект не сущность)
func (r ObjectRef) Entity() EntityRef {
	if r.Kind != ObjectEntity {
		return EntityRef{}
	}
	return EntityRef{index: int32(r.Index), gen: r.gen}
}

// Intersection результат трассировки отрезка
type Intersection struct {
	Ref      ObjectRef
	Distance float32
}

func noIntersection() Intersection {
	return Intersection{Distance: float32(math.Inf(1))}
}

func (i Intersection) IsEmpty() bool { return !i.Ref.IsValid() }
