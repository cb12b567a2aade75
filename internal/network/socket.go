package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"
)

// Socket неблокирующий датаграммный сокет.
// Receive возвращает n == 0, если данных больше нет.
type Socket interface {
	Send(data []byte, addr netip.AddrPort) error
	Receive(buf []byte) (int, netip.AddrPort, error)
	LocalAddr() netip.AddrPort
	Close() error
}

type datagram struct {
	data []byte
	from netip.AddrPort
}

// UDPSocket реализация Socket поверх UDP. Чтение выполняется в отдельной
// горутине, Receive забирает уже принятые датаграммы без блокировки.
type UDPSocket struct {
	conn   *net.UDPConn
	queue  chan datagram
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ListenUDP открывает UDP сокет на указанном адресе (например ":20001")
func ListenUDP(address string) (*UDPSocket, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", address, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", address, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &UDPSocket{
		conn:   conn,
		queue:  make(chan datagram, 1024),
		ctx:    ctx,
		cancel: cancel,
	}

	s.wg.Add(1)
	go s.receiveLoop()
	return s, nil
}

// receiveLoop принимает UDP пакеты
func (s *UDPSocket) receiveLoop() {
	defer s.wg.Done()
	buffer := make([]byte, MaxPacketSize*2)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		// Таймаут чтения, чтобы можно было проверять контекст
		_ = s.conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))

		n, addr, err := s.conn.ReadFromUDPAddrPort(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			netLogger().Debug("Ошибка чтения UDP: %v", err)
			continue
		}

		data := make([]byte, n)
		copy(data, buffer[:n])

		select {
		case s.queue <- datagram{data: data, from: addr}:
		default:
			// Очередь переполнена: датаграмма теряется как при потере в сети
			netLogger().Warn("UDP очередь переполнена, пакет от %s отброшен", addr)
		}
	}
}

// Send отправляет датаграмму
func (s *UDPSocket) Send(data []byte, addr netip.AddrPort) error {
	_, err := s.conn.WriteToUDPAddrPort(data, addr)
	return err
}

// Receive возвращает очередную принятую датаграмму или 0, если очередь пуста
func (s *UDPSocket) Receive(buf []byte) (int, netip.AddrPort, error) {
	select {
	case d := <-s.queue:
		n := copy(buf, d.data)
		return n, d.from, nil
	default:
		return 0, netip.AddrPort{}, nil
	}
}

// LocalAddr возвращает адрес, на котором слушает сокет
func (s *UDPSocket) LocalAddr() netip.AddrPort {
	return s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Close закрывает сокет и дожидается завершения горутины чтения
func (s *UDPSocket) Close() error {
	s.cancel()
	err := s.conn.Close()
	s.wg.Wait()
	return err
}
