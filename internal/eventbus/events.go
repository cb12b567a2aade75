package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrClosed шина закрыта
var ErrClosed = errors.New("eventbus: closed")

// Типы игровых событий
const (
	EventActorDied  = "actor_died"
	EventPeerJoined = "peer_joined"
	EventPeerLeft   = "peer_left"
)

// PayloadVersion текущая версия схемы полезной нагрузки
const PayloadVersion = 1

// ActorDied актёр погиб
type ActorDied struct {
	Actor  string  `json:"actor"` // Строковое представление ссылки
	Index  int     `json:"index"`
	Proto  string  `json:"proto"`
	Death  string  `json:"death"`
	PosX   float32 `json:"x"`
	PosY   float32 `json:"y"`
	PosZ   float32 `json:"z"`
}

// PeerJoined клиент подключился и получил актёра
type PeerJoined struct {
	PeerID  int    `json:"peer_id"`
	Address string `json:"address"`
	Name    string `json:"name"`
	Actor   string `json:"actor"`
}

// PeerLeft клиент отключился
type PeerLeft struct {
	PeerID int    `json:"peer_id"`
	Reason string `json:"reason"` // leave | timeout | shutdown
}

// NewEnvelope упаковывает полезную нагрузку в конверт с новым UUID
func NewEnvelope(source, eventType string, frame, priority int, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   PayloadVersion,
		Priority:  priority,
		Frame:     frame,
		Payload:   data,
	}, nil
}

// Decode разбирает полезную нагрузку конверта в out
func (ev *Envelope) Decode(out any) error {
	if err := json.Unmarshal(ev.Payload, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", ev.EventType, err)
	}
	return nil
}
