package eventbus

import (
	"context"

	"github.com/annel0/iso-game/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в лог сервера.
// Функция неблокирующая.
func StartLoggingListener(bus EventBus) (Subscription, error) {
	log := logging.GetServerLogger()
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		switch ev.EventType {
		case EventActorDied:
			var p ActorDied
			if err := ev.Decode(&p); err == nil {
				log.Info("☠️ [кадр %d] %s (%s) погиб: %s", ev.Frame, p.Actor, p.Proto, p.Death)
				return
			}
		case EventPeerJoined:
			var p PeerJoined
			if err := ev.Decode(&p); err == nil {
				log.Info("👋 [кадр %d] Клиент %d (%s, %s) управляет %s", ev.Frame, p.PeerID, p.Name, p.Address, p.Actor)
				return
			}
		case EventPeerLeft:
			var p PeerLeft
			if err := ev.Decode(&p); err == nil {
				log.Info("🚪 [кадр %d] Клиент %d отключился (%s)", ev.Frame, p.PeerID, p.Reason)
				return
			}
		}
		log.Debug("[EventBus] %s %s src=%s prio=%d size=%dB", ev.ID, ev.EventType, ev.Source, ev.Priority, len(ev.Payload))
	})
	if err != nil {
		return nil, err
	}
	log.Debug("🪵 LoggingListener: подписка на все события активирована")
	return sub, nil
}
