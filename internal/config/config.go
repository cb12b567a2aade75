package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Transport  TransportConfig  `yaml:"transport"`
	Simulation SimulationConfig `yaml:"simulation"`
	EventBus   EventBusConfig   `yaml:"eventbus"`
	Replay     ReplayConfig     `yaml:"replay"`
	Positions  PositionsConfig  `yaml:"positions"`
	Auth       AuthConfig       `yaml:"auth"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	GamePort    int    `yaml:"game_port"`
	Assets      string `yaml:"assets"` // YAML реестра ассетов; пусто - встроенный
	MaxPeers    int    `yaml:"max_peers"`
	PlayerActor string `yaml:"player_actor"`
}

type TransportConfig struct {
	MaxBytesPerFrame  int    `yaml:"max_bytes_per_frame"`
	UnverifiedTimeout uint32 `yaml:"unverified_timeout_frames"`
	Timeout           uint32 `yaml:"timeout_frames"`
}

type SimulationConfig struct {
	TickRate  int     `yaml:"tick_rate"`
	TimeScale float32 `yaml:"time_scale"`
	Seed      int64   `yaml:"seed"`
}

// EventBusConfig пустой URL означает шину в памяти
type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Capacity  int    `yaml:"capacity"`
}

type ReplayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// PositionsConfig хранилище позиций вышедших игроков; пустой Backend отключает сохранение
type PositionsConfig struct {
	Backend string        `yaml:"backend"` // memory, redis, mysql
	Addr    string        `yaml:"addr"`
	DSN     string        `yaml:"dsn"`
	TTL     time.Duration `yaml:"ttl"`
}

// AuthConfig секрет токенов подключения в base64; пустой отключает проверку
type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// GetSecret возвращает секрет с fallback на ENV GAME_AUTH_SECRET
func (a *AuthConfig) GetSecret() string {
	if a.Secret != "" {
		return a.Secret
	}
	return os.Getenv("GAME_AUTH_SECRET")
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type APIConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			MaxPeers:    32,
			PlayerActor: "male",
		},
		Transport: TransportConfig{
			MaxBytesPerFrame:  5600,
			UnverifiedTimeout: 120,
			Timeout:           600,
		},
		Simulation: SimulationConfig{
			TickRate:  30,
			TimeScale: 1,
		},
		EventBus: EventBusConfig{
			Stream:    "GAME_EVENTS",
			Retention: 24,
			Capacity:  1024,
		},
		Replay: ReplayConfig{
			Dir: "data/replay",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "iso-game-server",
		},
		API: APIConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GetGamePort возвращает UDP порт игры с поддержкой fallback значений (0 - не задан)
func (s *ServerConfig) GetGamePort() int {
	return getPortWithEnvFallback(s.GamePort, "GAME_UDP_PORT", 0)
}

// GetPort возвращает порт REST API с поддержкой fallback значений
func (a *APIConfig) GetPort() int {
	return getPortWithEnvFallback(a.Port, "GAME_REST_PORT", 8088)
}

// RetentionDuration срок хранения событий в JetStream
func (e *EventBusConfig) RetentionDuration() time.Duration {
	return time.Duration(e.Retention) * time.Hour
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}
	return defaultPort
}

// Validate проверяет значения, которые нельзя исправить значениями по умолчанию
func (c *Config) Validate() error {
	if c.Simulation.TickRate <= 0 || c.Simulation.TickRate > 1000 {
		return fmt.Errorf("simulation.tick_rate: %d вне диапазона 1..1000", c.Simulation.TickRate)
	}
	if c.Simulation.TimeScale <= 0 {
		return fmt.Errorf("simulation.time_scale: должен быть положительным")
	}
	if c.Server.MaxPeers <= 0 {
		return fmt.Errorf("server.max_peers: должен быть положительным")
	}
	if c.Replay.Enabled && c.Replay.Dir == "" {
		return fmt.Errorf("replay.dir: не задан")
	}
	switch c.Positions.Backend {
	case "", "memory", "redis":
	case "mysql", "mariadb":
		if c.Positions.DSN == "" {
			return fmt.Errorf("positions.dsn: не задан для %s", c.Positions.Backend)
		}
	default:
		return fmt.Errorf("positions.backend: неизвестное хранилище %q", c.Positions.Backend)
	}
	return nil
}

// Load читает YAML файл поверх значений по умолчанию.
// Если path == "", пытается прочитать путь из ENV GAME_CONFIG; без файла возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("GAME_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
