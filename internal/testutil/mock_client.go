//go:build !production

package testutil

import (
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/palemoky/tetris-battle/internal/protocol"
)

// MockConn 实现 transport.Conn 的 mock
type MockConn struct {
	mock.Mock
}

func (m *MockConn) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConn) Send(body []byte) error {
	args := m.Called(body)
	return args.Error(0)
}

func (m *MockConn) Receive() ([]byte, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockConn) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockConn) RemoteAddr() string {
	args := m.Called()
	return args.String(0)
}

// ErrConnClosed SimpleConn 关闭后 Receive/Send 返回的错误
var ErrConnClosed = errors.New("conn closed")

// SimpleConn 简单的内存连接，记录发出的帧（用于不需要断言调用的测试）
type SimpleConn struct {
	ConnID string

	mu     sync.Mutex
	sent   [][]byte
	inbox  chan []byte
	closed bool
}

// NewSimpleConn 创建内存连接
func NewSimpleConn(id string) *SimpleConn {
	return &SimpleConn{ConnID: id, inbox: make(chan []byte, 64)}
}

func (c *SimpleConn) ID() string         { return c.ConnID }
func (c *SimpleConn) RemoteAddr() string { return "pipe:" + c.ConnID }

func (c *SimpleConn) Send(body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	c.sent = append(c.sent, append([]byte(nil), body...))
	return nil
}

// Receive 返回 Push 放入的下一帧，关闭后返回 ErrConnClosed
func (c *SimpleConn) Receive() ([]byte, error) {
	body, ok := <-c.inbox
	if !ok {
		return nil, ErrConnClosed
	}
	return body, nil
}

// Push 放入一帧供 Receive 读取
func (c *SimpleConn) Push(body []byte) {
	c.inbox <- body
}

func (c *SimpleConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbox)
	}
	return nil
}

// Closed 连接是否已关闭
func (c *SimpleConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Sent 返回已发出的帧
func (c *SimpleConn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

// LastMessage 解码最近发出的一帧
func (c *SimpleConn) LastMessage() *protocol.Message {
	sent := c.Sent()
	if len(sent) == 0 {
		return nil
	}
	msg, err := protocol.Decode(sent[len(sent)-1])
	if err != nil {
		return nil
	}
	return msg
}
