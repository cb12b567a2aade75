package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/annel0/iso-game/internal/logging"
	"github.com/annel0/iso-game/internal/vec"
)

const createPositionsTable = `
CREATE TABLE IF NOT EXISTS player_positions (
	map_name   VARCHAR(128) NOT NULL,
	player     VARCHAR(64)  NOT NULL,
	x          INT          NOT NULL,
	y          INT          NOT NULL,
	z          INT          NOT NULL,
	updated_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	PRIMARY KEY (map_name, player),
	INDEX idx_updated_at (updated_at)
) ENGINE=InnoDB`

// MariaPositionRepo PositionRepo поверх MySQL/MariaDB, таблица player_positions.
// При ttl > 0 записи старше ttl считаются отсутствующими и удаляются Prune.
type MariaPositionRepo struct {
	db  *sql.DB
	ttl time.Duration
}

// NewMariaPositionRepo подключается по dsn (user:pass@tcp(host:port)/db?parseTime=true)
// и создаёт таблицу, если её нет
func NewMariaPositionRepo(dsn string, ttl time.Duration) (*MariaPositionRepo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql open: %w", err)
	}
	// Сервер обращается к хранилищу только при входе и выходе игроков
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, createPositionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("создание таблицы player_positions: %w", err)
	}

	logging.GetStorageLogger().Info("🐬 Позиции игроков в MySQL (ttl %s)", ttl)
	return &MariaPositionRepo{db: db, ttl: ttl}, nil
}

// Save записывает позицию (upsert по карте и игроку)
func (r *MariaPositionRepo) Save(ctx context.Context, mapName, player string, pos vec.Vec3) error {
	if err := validate(mapName, player); err != nil {
		return err
	}
	const q = `INSERT INTO player_positions (map_name, player, x, y, z) VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE x = VALUES(x), y = VALUES(y), z = VALUES(z), updated_at = CURRENT_TIMESTAMP`
	if _, err := r.db.ExecContext(ctx, q, mapName, player, pos.X, pos.Y, pos.Z); err != nil {
		return fmt.Errorf("сохранение позиции %s/%s: %w", mapName, player, err)
	}
	return nil
}

func (r *MariaPositionRepo) Load(ctx context.Context, mapName, player string) (vec.Vec3, bool, error) {
	if err := validate(mapName, player); err != nil {
		return vec.Vec3{}, false, err
	}
	q := `SELECT x, y, z FROM player_positions WHERE map_name = ? AND player = ?`
	args := []any{mapName, player}
	if r.ttl > 0 {
		q += ` AND updated_at >= NOW() - INTERVAL ? SECOND`
		args = append(args, int64(r.ttl/time.Second))
	}

	var pos vec.Vec3
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&pos.X, &pos.Y, &pos.Z)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return vec.Vec3{}, false, nil
	case err != nil:
		return vec.Vec3{}, false, fmt.Errorf("загрузка позиции %s/%s: %w", mapName, player, err)
	}
	return pos, true, nil
}

func (r *MariaPositionRepo) Delete(ctx context.Context, mapName, player string) error {
	if err := validate(mapName, player); err != nil {
		return err
	}
	const q = `DELETE FROM player_positions WHERE map_name = ? AND player = ?`
	if _, err := r.db.ExecContext(ctx, q, mapName, player); err != nil {
		return fmt.Errorf("удаление позиции %s/%s: %w", mapName, player, err)
	}
	return nil
}

// Prune удаляет устаревшие записи и возвращает их число. Без ttl ничего не делает.
func (r *MariaPositionRepo) Prune(ctx context.Context) (int64, error) {
	if r.ttl <= 0 {
		return 0, nil
	}
	const q = `DELETE FROM player_positions WHERE updated_at < NOW() - INTERVAL ? SECOND`
	res, err := r.db.ExecContext(ctx, q, int64(r.ttl/time.Second))
	if err != nil {
		return 0, fmt.Errorf("очистка позиций: %w", err)
	}
	return res.RowsAffected()
}

func (r *MariaPositionRepo) Close() error {
	return r.db.Close()
}
