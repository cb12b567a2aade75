package replay

import (
	"fmt"

	"github.com/annel0/iso-game/internal/game"
)

// Player повторяет записанные приказы в мире, созданном с тем же зерном и картой.
// Приказы такта N выдаются перед шагом симуляции N.
type Player struct {
	world   *game.World
	records []Record
	next    int
	skipped int
}

// NewPlayer создаёт проигрыватель журнала
func NewPlayer(world *game.World, records []Record) *Player {
	return &Player{world: world, records: records}
}

// Done сообщает, что все записи выданы
func (p *Player) Done() bool { return p.next >= len(p.records) }

// Skipped число приказов, которые не удалось выдать
func (p *Player) Skipped() int { return p.skipped }

// Step выдаёт приказы текущего такта и продвигает мир на dt
func (p *Player) Step(dt float32) error {
	frame := p.world.Frame()
	for p.next < len(p.records) && p.records[p.next].Tick <= frame {
		rec := p.records[p.next]
		p.next++
		if rec.Tick < frame {
			p.skipped++
			continue
		}

		o, err := rec.DecodeOrder()
		if err != nil {
			return err
		}
		actor := p.world.Actor(rec.Actor())
		if actor == nil {
			return fmt.Errorf("replay: tick %d: no actor %s", rec.Tick, rec.Actor())
		}
		if !actor.SetOrder(o, rec.Force) {
			p.skipped++
		}
	}
	p.world.Simulate(dt)
	return nil
}
