// Package replay хранит журнал принятых приказов сессии для повтора и отладки.
package replay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/annel0/iso-game/internal/game"
	"github.com/annel0/iso-game/internal/logging"
	"github.com/annel0/iso-game/internal/protocol"
)

var keyPrefix = []byte("order/")

// ErrClosed журнал закрыт
var ErrClosed = errors.New("replay: journal closed")

// Record принятый приказ
type Record struct {
	Tick  int    `msgpack:"t"`
	Seq   uint32 `msgpack:"s"` // Порядок внутри такта
	Index int32  `msgpack:"i"` // Слот актёра
	Gen   uint32 `msgpack:"g"`
	Force bool   `msgpack:"f"`
	Kind  string `msgpack:"k"`
	Order []byte `msgpack:"o"` // game.EncodeOrder
}

// NewRecord кодирует приказ актёра
func NewRecord(tick int, actor game.EntityRef, o *game.Order, force bool) Record {
	w := protocol.NewWriter(32)
	game.EncodeOrder(w, o)
	return Record{
		Tick:  tick,
		Index: int32(actor.Index()),
		Gen:   actor.Generation(),
		Force: force,
		Kind:  o.Kind().String(),
		Order: w.Bytes(),
	}
}

// Actor ссылка на актёра, получившего приказ
func (r Record) Actor() game.EntityRef {
	return game.NewEntityRef(int(r.Index), r.Gen)
}

// DecodeOrder восстанавливает приказ
func (r Record) DecodeOrder() (*game.Order, error) {
	o, err := game.DecodeOrder(protocol.NewReader(r.Order))
	if err != nil {
		return nil, fmt.Errorf("record %d/%d: %w", r.Tick, r.Seq, err)
	}
	return o, nil
}

// Options параметры журнала
type Options struct {
	Dir      string
	InMemory bool // Для тестов
}

// Journal журнал приказов поверх BadgerDB. Записи копятся в памяти и
// сбрасываются пачкой в Flush; ключи упорядочены по (такт, номер).
type Journal struct {
	mu      sync.Mutex
	db      *badger.DB
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	pending []Record
	tick    int
	seq     uint32
	written int
	closed  bool
	logger  *logging.Logger
}

// Open открывает журнал
func Open(opts Options) (*Journal, error) {
	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, err
	}

	j := &Journal{db: db, enc: enc, dec: dec, tick: -1, logger: logging.GetStorageLogger()}
	if err := j.restoreTail(); err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}

// restoreTail продолжает нумерацию после последней записи
func (j *Journal) restoreTail() error {
	return j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seekKey := append(append([]byte{}, keyPrefix...), 0xff)
		if it.Seek(seekKey); it.ValidForPrefix(keyPrefix) {
			tick, seq := parseKey(it.Item().Key())
			j.tick, j.seq = tick, seq+1
		}
		for it.Rewind(); it.ValidForPrefix(keyPrefix); it.Next() {
			j.written++
		}
		return nil
	})
}

func makeKey(tick int, seq uint32) []byte {
	key := make([]byte, len(keyPrefix)+12)
	n := copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[n:], uint64(tick))
	binary.BigEndian.PutUint32(key[n+8:], seq)
	return key
}

func parseKey(key []byte) (int, uint32) {
	key = key[len(keyPrefix):]
	return int(binary.BigEndian.Uint64(key)), binary.BigEndian.Uint32(key[8:])
}

// Append ставит запись в очередь; номер внутри такта назначается журналом
func (j *Journal) Append(rec Record) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if rec.Tick != j.tick {
		j.tick, j.seq = rec.Tick, 0
	}
	rec.Seq = j.seq
	j.seq++
	j.pending = append(j.pending, rec)
}

// Flush записывает накопленные записи
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if len(j.pending) == 0 {
		return nil
	}

	wb := j.db.NewWriteBatch()
	defer wb.Cancel()
	for _, rec := range j.pending {
		data, err := msgpack.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("msgpack: %w", err)
		}
		if err := wb.Set(makeKey(rec.Tick, rec.Seq), j.enc.EncodeAll(data, nil)); err != nil {
			return fmt.Errorf("ошибка записи в BadgerDB: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("ошибка записи в BadgerDB: %w", err)
	}

	j.written += len(j.pending)
	j.logger.Trace("Журнал: записано %d приказов (всего %d)", len(j.pending), j.written)
	j.pending = j.pending[:0]
	return nil
}

// Len число записанных приказов
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}

// Replay вызывает fn для записей с тактом из [from, to] в порядке (такт, номер).
// to < 0 означает без верхней границы.
func (j *Journal) Replay(from, to int, fn func(Record) error) error {
	if from < 0 {
		from = 0
	}
	return j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(makeKey(from, 0)); it.ValidForPrefix(keyPrefix); it.Next() {
			tick, _ := parseKey(it.Item().Key())
			if to >= 0 && tick > to {
				break
			}

			var rec Record
			err := it.Item().Value(func(val []byte) error {
				data, err := j.dec.DecodeAll(val, nil)
				if err != nil {
					return fmt.Errorf("zstd: %w", err)
				}
				return msgpack.Unmarshal(data, &rec)
			})
			if err != nil {
				return err
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Records возвращает все записи журнала
func (j *Journal) Records() ([]Record, error) {
	var out []Record
	err := j.Replay(0, -1, func(r Record) error {
		out = append(out, r)
		return nil
	})
	return out, err
}

// Close сбрасывает очередь и закрывает базу
func (j *Journal) Close() error {
	flushErr := j.Flush()
	if errors.Is(flushErr, ErrClosed) {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	j.enc.Close()
	j.dec.Close()
	if err := j.db.Close(); err != nil {
		return err
	}
	return flushErr
}
