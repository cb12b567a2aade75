package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/annel0/iso-game/internal/api"
	"github.com/annel0/iso-game/internal/auth"
	"github.com/annel0/iso-game/internal/config"
	"github.com/annel0/iso-game/internal/eventbus"
	"github.com/annel0/iso-game/internal/game"
	"github.com/annel0/iso-game/internal/logging"
	"github.com/annel0/iso-game/internal/mapgen"
	"github.com/annel0/iso-game/internal/network"
	"github.com/annel0/iso-game/internal/observability"
	"github.com/annel0/iso-game/internal/replay"
	"github.com/annel0/iso-game/internal/server"
	"github.com/annel0/iso-game/internal/storage"
)

// Размер карты, генерируемой при запуске без -m
const (
	generatedWidth = 64
	generatedDepth = 64
)

func main() {
	port := flag.Int("p", 0, "UDP порт игрового сервера (обязательно)")
	mapPath := flag.String("m", "", "YAML файл карты (пусто - сгенерировать)")
	configPath := flag.String("c", "", "YAML файл конфигурации")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if *port > 0 {
		cfg.Server.GamePort = *port
	}
	gamePort := cfg.Server.GetGamePort()
	if gamePort <= 0 {
		log.Fatalf("❌ Не задан порт сервера: используйте -p <port>")
	}

	if cfg.Logging.Dir != "" {
		logging.SetLogDir(cfg.Logging.Dir)
	}
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	logging.SetConsoleLevel(level)
	logging.GetLoggerManager().SetAllLevels(level)
	defer logging.GetLoggerManager().CloseAll()

	if err := run(cfg, gamePort, *mapPath); err != nil {
		logging.Error("❌ %v", err)
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func run(cfg *config.Config, gamePort int, mapPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srvCfg := server.DefaultConfig()
	srvCfg.SessionID = uuid.NewString()
	srvCfg.TickRate = cfg.Simulation.TickRate
	srvCfg.TimeScale = cfg.Simulation.TimeScale
	srvCfg.MaxPeers = cfg.Server.MaxPeers
	srvCfg.PlayerActor = cfg.Server.PlayerActor

	logging.Info("🎮 Запуск игрового сервера (сессия %s)", srvCfg.SessionID)

	// === ТЕЛЕМЕТРИЯ ===
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName, srvCfg.SessionID)
		if err != nil {
			return fmt.Errorf("инициализация телеметрии: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logging.Warn("Ошибка завершения телеметрии: %v", err)
			}
		}()
	}

	// === РЕСУРСЫ И КАРТА ===
	assets := game.BuiltinRegistry()
	if cfg.Server.Assets != "" {
		reg, err := game.LoadRegistry(cfg.Server.Assets)
		if err != nil {
			return err
		}
		assets = reg
	}

	var m *mapgen.Map
	var err error
	if mapPath != "" {
		m, err = mapgen.Load(mapPath)
	} else {
		m, err = mapgen.NewGenerator(cfg.Simulation.Seed, generatedWidth, generatedDepth).Generate()
	}
	if err != nil {
		return err
	}
	srvCfg.Spawns = m.Spawns

	player := assets.Actor(srvCfg.PlayerActor)
	if player == nil {
		return fmt.Errorf("неизвестный актёр игрока %q", srvCfg.PlayerActor)
	}
	world := game.NewWorld(game.WorldConfig{
		Mode:      game.ModeServer,
		MapName:   m.Name,
		Assets:    assets,
		Tiles:     m.Tiles,
		Navigator: m.Navigator(int(player.Sprite.BBox.Y)),
		Seed:      cfg.Simulation.Seed,
	})
	logging.Info("🗺️  Карта %s: %d тайлов, %d точек появления", m.Name, m.Tiles.Len(), len(m.Spawns))

	// === МЕТРИКИ ===
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// === ШИНА СОБЫТИЙ ===
	var bus eventbus.EventBus
	if cfg.EventBus.URL != "" {
		jb, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream, cfg.EventBus.RetentionDuration())
		if err != nil {
			return fmt.Errorf("подключение к NATS: %w", err)
		}
		bus = jb
	} else {
		bus = eventbus.NewMemoryBus(cfg.EventBus.Capacity)
	}
	defer bus.Close()
	if err := eventbus.RegisterMetrics(registry, bus); err != nil {
		return err
	}
	if sub, err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("Не удалось подписать логгер событий: %v", err)
	} else {
		defer sub.Unsubscribe()
	}

	// === ЖУРНАЛ ПРИКАЗОВ ===
	var journal *replay.Journal
	if cfg.Replay.Enabled {
		journal, err = replay.Open(replay.Options{Dir: cfg.Replay.Dir})
		if err != nil {
			return err
		}
		defer journal.Close()
		logging.Info("📼 Журнал приказов: %s (%d записей)", cfg.Replay.Dir, journal.Len())
	}

	// === ПОЗИЦИИ ИГРОКОВ ===
	positions, err := storage.Open(storage.Config{
		Backend: cfg.Positions.Backend,
		Addr:    cfg.Positions.Addr,
		DSN:     cfg.Positions.DSN,
		TTL:     cfg.Positions.TTL,
	})
	if err != nil {
		return err
	}
	if positions != nil {
		defer positions.Close()
		logging.Info("💾 Позиции игроков сохраняются (%s)", cfg.Positions.Backend)
	}

	// === ТОКЕНЫ ПОДКЛЮЧЕНИЯ ===
	var tokens *auth.TokenIssuer
	if secret := cfg.Auth.GetSecret(); secret != "" {
		tokens, err = auth.NewTokenIssuer(secret, cfg.Auth.TokenTTL)
		if err != nil {
			return err
		}
		logging.Info("🔐 Проверка токенов подключения включена")
	}

	// === СЕТЬ ===
	sock, err := network.ListenUDP(fmt.Sprintf(":%d", gamePort))
	if err != nil {
		return err
	}
	defer sock.Close()

	hostCfg := network.DefaultHostConfig()
	hostCfg.AcceptPeers = true
	if cfg.Transport.MaxBytesPerFrame > 0 {
		hostCfg.MaxBytesPerFrame = cfg.Transport.MaxBytesPerFrame
	}
	hostCfg.UnverifiedTimeout = cfg.Transport.UnverifiedTimeout
	hostCfg.Timeout = cfg.Transport.Timeout
	host := network.NewLocalHost(sock, hostCfg)
	host.SetMetrics(network.NewMetrics(registry))

	srv := server.New(srvCfg, host, world, server.Options{
		Bus:       bus,
		Journal:   journal,
		Metrics:   server.NewMetrics(registry),
		Positions: positions,
		Tokens:    tokens,
	})
	if refs, err := m.Populate(world); err != nil {
		return err
	} else if len(refs) > 0 {
		logging.Info("Размещено сущностей карты: %d", len(refs))
	}

	// === REST API ===
	if cfg.API.Enabled {
		rs, err := api.NewRestServer(api.Config{
			Port:     fmt.Sprintf(":%d", cfg.API.GetPort()),
			Game:     srv,
			Registry: registry,
			Bus:      bus,
		})
		if err != nil {
			return err
		}
		rs.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := rs.Stop(ctx); err != nil {
				logging.Error("❌ Ошибка остановки REST API: %v", err)
			}
		}()
	}

	logging.Info("✅ Сервер слушает UDP %s", sock.LocalAddr())
	return srv.Run(ctx)
}
