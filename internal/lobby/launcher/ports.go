package launcher

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// ErrNoFreePort 端口范围内没有可用端口
var ErrNoFreePort = errors.New("no free game port")

// PortAllocator 在 [min, max] 内轮转分配对局端口，跳过已被占用的端口
type PortAllocator struct {
	mu   sync.Mutex
	host string
	min  int
	max  int
	next int

	// probe 检查端口是否可用，测试中可替换
	probe func(host string, port int) bool
}

// NewPortAllocator 创建端口分配器
func NewPortAllocator(host string, min, max int) *PortAllocator {
	return &PortAllocator{
		host:  host,
		min:   min,
		max:   max,
		next:  min,
		probe: portFree,
	}
}

func portFree(host string, port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// Allocate 返回下一个可用端口，到达上界后回绕
func (p *PortAllocator) Allocate() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	span := p.max - p.min + 1
	for range span {
		port := p.next
		p.next++
		if p.next > p.max {
			p.next = p.min
		}
		if p.probe(p.host, port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w in [%d, %d]", ErrNoFreePort, p.min, p.max)
}
