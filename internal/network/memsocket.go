package network

import (
	"fmt"
	"net/netip"
	"sync"
)

// DropFunc решает, нужно ли потерять датаграмму при передаче
type DropFunc func(from, to netip.AddrPort, data []byte) bool

// MemoryNetwork детерминированная сеть в памяти для тестов и локальной игры
type MemoryNetwork struct {
	mu       sync.Mutex
	sockets  map[netip.AddrPort]*MemorySocket
	nextPort uint16

	// Drop вызывается для каждой отправленной датаграммы
	Drop DropFunc
}

// NewMemoryNetwork создаёт пустую сеть
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		sockets:  make(map[netip.AddrPort]*MemorySocket),
		nextPort: 40000,
	}
}

// Listen создаёт сокет на указанном порту (0 выбирает свободный порт)
func (n *MemoryNetwork) Listen(port uint16) (*MemorySocket, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if port == 0 {
		for {
			port = n.nextPort
			n.nextPort++
			if _, busy := n.sockets[memAddr(port)]; !busy {
				break
			}
		}
	}

	addr := memAddr(port)
	if _, busy := n.sockets[addr]; busy {
		return nil, fmt.Errorf("memory network: port %d is busy", port)
	}

	s := &MemorySocket{net: n, addr: addr}
	n.sockets[addr] = s
	return s, nil
}

// SetDrop устанавливает функцию потерь
func (n *MemoryNetwork) SetDrop(drop DropFunc) {
	n.mu.Lock()
	n.Drop = drop
	n.mu.Unlock()
}

func (n *MemoryNetwork) deliver(from, to netip.AddrPort, data []byte) {
	n.mu.Lock()
	target := n.sockets[to]
	drop := n.Drop
	n.mu.Unlock()

	if target == nil || (drop != nil && drop(from, to, data)) {
		return
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	target.mu.Lock()
	target.queue = append(target.queue, datagram{data: buf, from: from})
	target.mu.Unlock()
}

func memAddr(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), port)
}

// MemorySocket сокет MemoryNetwork
type MemorySocket struct {
	net   *MemoryNetwork
	addr  netip.AddrPort
	mu    sync.Mutex
	queue []datagram
}

func (s *MemorySocket) Send(data []byte, addr netip.AddrPort) error {
	s.net.deliver(s.addr, addr, data)
	return nil
}

func (s *MemorySocket) Receive(buf []byte) (int, netip.AddrPort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return 0, netip.AddrPort{}, nil
	}
	d := s.queue[0]
	s.queue = s.queue[1:]
	return copy(buf, d.data), d.from, nil
}

func (s *MemorySocket) LocalAddr() netip.AddrPort { return s.addr }

// Close отключает сокет от сети
func (s *MemorySocket) Close() error {
	s.net.mu.Lock()
	delete(s.net.sockets, s.addr)
	s.net.mu.Unlock()
	return nil
}

// Pending возвращает число непрочитанных датаграмм
func (s *MemorySocket) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
