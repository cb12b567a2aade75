// Package storage хранит последние позиции игроков между подключениями.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/annel0/iso-game/internal/vec"
)

// ErrInvalidPlayer пустое имя игрока
var ErrInvalidPlayer = errors.New("storage: empty player name")

// PositionRepo определяет интерфейс для сохранения и загрузки позиций игроков.
// Позиции привязаны к имени игрока и карте, так что вернувшийся игрок
// появляется там, где вышел.
type PositionRepo interface {
	// Save сохраняет позицию игрока на карте.
	Save(ctx context.Context, mapName, player string, pos vec.Vec3) error

	// Load загружает позицию игрока. found = false, если игрок на карте не был.
	Load(ctx context.Context, mapName, player string) (pos vec.Vec3, found bool, err error)

	// Delete удаляет сохранённую позицию
	Delete(ctx context.Context, mapName, player string) error

	Close() error
}

// Config выбор хранилища позиций
type Config struct {
	Backend string        `yaml:"backend"` // memory, redis, mysql; пусто - не сохранять
	Addr    string        `yaml:"addr"`    // адрес Redis
	DSN     string        `yaml:"dsn"`     // строка подключения MySQL/MariaDB
	TTL     time.Duration `yaml:"ttl"`     // срок хранения позиции (0 - бессрочно)
}

// Open создаёт хранилище по конфигурации. Пустой Backend возвращает nil.
func Open(cfg Config) (PositionRepo, error) {
	switch strings.ToLower(cfg.Backend) {
	case "":
		return nil, nil
	case "memory":
		return NewMemoryPositionRepo(), nil
	case "redis":
		repo, err := NewRedisPositionRepo(RedisConfig{Addr: cfg.Addr, TTL: cfg.TTL})
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "mysql", "mariadb":
		repo, err := NewMariaPositionRepo(cfg.DSN, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
	return nil, fmt.Errorf("storage: неизвестное хранилище %q", cfg.Backend)
}

func validate(mapName, player string) error {
	if player == "" || mapName == "" {
		return ErrInvalidPlayer
	}
	return nil
}
