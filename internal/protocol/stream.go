package protocol

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// ErrShortBuffer возвращается при попытке прочитать больше данных, чем осталось
	ErrShortBuffer = errors.New("protocol: short buffer")
	// ErrVarintOverflow возвращается при чтении повреждённого varint
	ErrVarintOverflow = errors.New("protocol: varint overflow")
)

// Writer накапливает бинарные данные в little-endian порядке
type Writer struct {
	buf []byte
}

// NewWriter создаёт writer с заранее выделенной ёмкостью
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Bytes возвращает записанные данные
func (w *Writer) Bytes() []byte { return w.buf }

// Len возвращает количество записанных байт
func (w *Writer) Len() int { return len(w.buf) }

// Reset очищает writer, сохраняя выделенную память
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// Truncate обрезает записанные данные до n байт
func (w *Writer) Truncate(n int) { w.buf = w.buf[:n] }

func (w *Writer) U8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) I8(v int8)    { w.buf = append(w.buf, byte(v)) }
func (w *Writer) U16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *Writer) I16(v int16)  { w.U16(uint16(v)) }
func (w *Writer) U32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *Writer) I32(v int32)  { w.U32(uint32(v)) }
func (w *Writer) F32(v float32) {
	w.U32(math.Float32bits(v))
}

// Bool пишет булево значение одним байтом
func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

// Varint пишет знаковое целое в zigzag varint кодировке
func (w *Writer) Varint(v int64) {
	w.buf = binary.AppendVarint(w.buf, v)
}

// Uvarint пишет беззнаковое целое в varint кодировке
func (w *Writer) Uvarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

// Raw дописывает байты без префикса длины
func (w *Writer) Raw(data []byte) {
	w.buf = append(w.buf, data...)
}

// String пишет строку с varint префиксом длины
func (w *Writer) String(s string) {
	w.Uvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// VarintSize возвращает размер zigzag varint кодировки значения
func VarintSize(v int64) int {
	var tmp [binary.MaxVarintLen64]byte
	return binary.PutVarint(tmp[:], v)
}

// Reader читает данные, записанные Writer. Первая ошибка запоминается,
// все последующие чтения возвращают нулевые значения.
type Reader struct {
	data []byte
	pos  int
	err  error
}

// NewReader создаёт reader поверх буфера
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Err возвращает первую возникшую ошибку чтения
func (r *Reader) Err() error { return r.err }

// Remaining возвращает количество непрочитанных байт
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// Pos возвращает текущую позицию
func (r *Reader) Pos() int { return r.pos }

// AtEnd сообщает, что данные закончились или произошла ошибка
func (r *Reader) AtEnd() bool { return r.err != nil || r.pos >= len(r.data) }

// Fail принудительно помечает поток как повреждённый
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = ErrShortBuffer
		return nil
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out
}

func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) I8() int8 { return int8(r.U8()) }

func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) I16() int16 { return int16(r.U16()) }

func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) I32() int32 { return int32(r.U32()) }

func (r *Reader) F32() float32 { return math.Float32frombits(r.U32()) }

func (r *Reader) Bool() bool { return r.U8() != 0 }

// Raw читает n байт без копирования
func (r *Reader) Raw(n int) []byte { return r.take(n) }

// Varint читает zigzag varint
func (r *Reader) Varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.data[r.pos:])
	if n == 0 {
		r.err = ErrShortBuffer
		return 0
	}
	if n < 0 {
		r.err = ErrVarintOverflow
		return 0
	}
	r.pos += n
	return v
}

// Uvarint читает беззнаковый varint
func (r *Reader) Uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.data[r.pos:])
	if n == 0 {
		r.err = ErrShortBuffer
		return 0
	}
	if n < 0 {
		r.err = ErrVarintOverflow
		return 0
	}
	r.pos += n
	return v
}

// String читает строку с varint префиксом длины
func (r *Reader) String() string {
	n := r.Uvarint()
	if n > uint64(r.Remaining()) {
		r.Fail(ErrShortBuffer)
		return ""
	}
	return string(r.take(int(n)))
}
