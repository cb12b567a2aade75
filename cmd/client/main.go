package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"net/netip"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/iso-game/internal/client"
	"github.com/annel0/iso-game/internal/game"
	"github.com/annel0/iso-game/internal/logging"
	"github.com/annel0/iso-game/internal/network"
	"github.com/annel0/iso-game/internal/vec"
)

// Консольный бот: подключается к серверу и бродит по карте случайными приказами.
func main() {
	serverAddr := flag.String("s", "127.0.0.1:7777", "адрес игрового сервера")
	name := flag.String("n", "bot", "имя игрока")
	assetsPath := flag.String("a", "", "YAML файл ресурсов (пусто - встроенные)")
	tickRate := flag.Int("r", 30, "кадров в секунду")
	wander := flag.Int("w", 8, "радиус случайных перемещений")
	duration := flag.Duration("d", 0, "время работы (0 - до сигнала)")
	token := flag.String("t", "", "токен подключения (если сервер их проверяет)")
	flag.Parse()

	if err := logging.InitDefaultLogger("client"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	addr, err := netip.ParseAddrPort(*serverAddr)
	if err != nil {
		log.Fatalf("❌ Неверный адрес сервера %q: %v", *serverAddr, err)
	}
	assets := game.BuiltinRegistry()
	if *assetsPath != "" {
		if assets, err = game.LoadRegistry(*assetsPath); err != nil {
			log.Fatalf("❌ %v", err)
		}
	}

	sock, err := network.ListenUDP(":0")
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer sock.Close()
	cfg := network.DefaultHostConfig()
	cfg.AcceptPeers = false
	c, err := client.New(network.NewLocalHost(sock, cfg), addr, assets, *name)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	c.SetToken(*token)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	logging.Info("🔌 Подключение к %s как %q", addr, *name)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(time.Second / time.Duration(*tickRate))
	defer ticker.Stop()
	nextOrder := time.Now()
	dt := 1 / float32(*tickRate)

	for {
		select {
		case <-ctx.Done():
			c.Leave()
			c.Frame(dt)
			logging.Info("👋 Отключено (снимков применено %d, устаревших %d)", c.Applied(), c.Stale())
			return
		case now := <-ticker.C:
			c.Frame(dt)
			if c.State() == client.StateDisconnected {
				logging.Info("Соединение закрыто")
				return
			}
			if now.Before(nextOrder) {
				continue
			}
			actor := c.Actor()
			if actor == nil || actor.IsDying() {
				continue
			}
			pos := vec.Round(actor.Pos())
			r := *wander
			target := vec.Vec3{X: pos.X + rng.Intn(2*r+1) - r, Y: pos.Y, Z: pos.Z + rng.Intn(2*r+1) - r}
			if err := c.SendOrder(game.NewMoveOrder(target, rng.Intn(3) == 0), false); err != nil {
				logging.Debug("%v", err)
			}
			nextOrder = now.Add(time.Duration(2+rng.Intn(4)) * time.Second)
		}
	}
}
