package storage

import (
	"context"
	"sync"

	"github.com/annel0/iso-game/internal/vec"
)

type positionKey struct {
	mapName, player string
}

// MemoryPositionRepo реализует PositionRepo в памяти.
// Используется, когда внешнее хранилище не настроено, и в тестах.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemoryPositionRepo struct {
	mu   sync.RWMutex
	data map[positionKey]vec.Vec3
}

// NewMemoryPositionRepo создает новый репозиторий позиций в памяти.
func NewMemoryPositionRepo() *MemoryPositionRepo {
	return &MemoryPositionRepo{
		data: make(map[positionKey]vec.Vec3),
	}
}

// Save сохраняет позицию игрока в памяти.
func (r *MemoryPositionRepo) Save(ctx context.Context, mapName, player string, pos vec.Vec3) error {
	if err := validate(mapName, player); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[positionKey{mapName, player}] = pos
	return nil
}

// Load загружает позицию игрока из памяти.
func (r *MemoryPositionRepo) Load(ctx context.Context, mapName, player string) (vec.Vec3, bool, error) {
	if err := validate(mapName, player); err != nil {
		return vec.Vec3{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return vec.Vec3{}, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.data[positionKey{mapName, player}]
	return pos, ok, nil
}

// Delete удаляет позицию игрока из памяти.
func (r *MemoryPositionRepo) Delete(ctx context.Context, mapName, player string) error {
	if err := validate(mapName, player); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, positionKey{mapName, player})
	return nil
}

// Count возвращает количество сохраненных позиций (для отладки и тестов).
func (r *MemoryPositionRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

func (r *MemoryPositionRepo) Close() error { return nil }
