package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/iso-game/internal/logging"
	"github.com/annel0/iso-game/internal/vec"
)

// RedisPositionRepo хранит позиции игроков в Redis с ограниченным сроком жизни
type RedisPositionRepo struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// PlayerPosition запись позиции игрока
type PlayerPosition struct {
	Player    string    `json:"player"`
	Map       string    `json:"map"`
	Position  vec.Vec3  `json:"position"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни записей (0 - без ограничения)
}

// NewRedisPositionRepo подключается к Redis и проверяет соединение
func NewRedisPositionRepo(cfg RedisConfig) (*RedisPositionRepo, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "game:pos:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetStorageLogger().Info("🔴 Подключено к Redis %s", cfg.Addr)
	return &RedisPositionRepo{client: client, keyPrefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

func (r *RedisPositionRepo) key(mapName, player string) string {
	return r.keyPrefix + mapName + ":" + player
}

// Save сохраняет позицию игрока
func (r *RedisPositionRepo) Save(ctx context.Context, mapName, player string, pos vec.Vec3) error {
	if err := validate(mapName, player); err != nil {
		return err
	}
	data, err := json.Marshal(PlayerPosition{Player: player, Map: mapName, Position: pos, UpdatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}
	if err := r.client.Set(ctx, r.key(mapName, player), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// Load получает позицию игрока
func (r *RedisPositionRepo) Load(ctx context.Context, mapName, player string) (vec.Vec3, bool, error) {
	if err := validate(mapName, player); err != nil {
		return vec.Vec3{}, false, err
	}
	data, err := r.client.Get(ctx, r.key(mapName, player)).Bytes()
	if err == redis.Nil {
		return vec.Vec3{}, false, nil // Позиция не найдена
	} else if err != nil {
		return vec.Vec3{}, false, fmt.Errorf("failed to get position: %w", err)
	}

	var pos PlayerPosition
	if err := json.Unmarshal(data, &pos); err != nil {
		return vec.Vec3{}, false, fmt.Errorf("failed to unmarshal position: %w", err)
	}
	return pos.Position, true, nil
}

// Delete удаляет позицию игрока
func (r *RedisPositionRepo) Delete(ctx context.Context, mapName, player string) error {
	if err := validate(mapName, player); err != nil {
		return err
	}
	if err := r.client.Del(ctx, r.key(mapName, player)).Err(); err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func (r *RedisPositionRepo) Close() error {
	return r.client.Close()
}
