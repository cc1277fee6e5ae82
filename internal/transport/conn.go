package transport

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Conn 一条按帧收发的连接，TCP 与 WebSocket 共用
type Conn interface {
	ID() string
	Send(body []byte) error
	Receive() ([]byte, error)
	Close() error
	RemoteAddr() string
}

// TCPConn 长度前缀帧的 TCP 连接
type TCPConn struct {
	id     string
	conn   net.Conn
	reader *bufio.Reader

	writeMu      sync.Mutex
	writeTimeout time.Duration
	closed       atomic.Bool
}

// NewTCPConn 包装一个已建立的 net.Conn
func NewTCPConn(conn net.Conn) *TCPConn {
	return &TCPConn{
		id:     uuid.NewString(),
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// Dial 建立到 addr 的帧连接
func Dial(addr string, timeout time.Duration) (*TCPConn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return NewTCPConn(conn), nil
}

// SetWriteTimeout 设置单帧写超时，0 表示不限
func (c *TCPConn) SetWriteTimeout(d time.Duration) {
	c.writeTimeout = d
}

func (c *TCPConn) ID() string { return c.id }

func (c *TCPConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// Send 发送一帧，并发调用时帧不会交错
func (c *TCPConn) Send(body []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return WriteFrame(c.conn, body)
}

// Receive 阻塞读取一帧，只能由一个 goroutine 调用
func (c *TCPConn) Receive() ([]byte, error) {
	return ReadFrame(c.reader)
}

// SetDeadline 设置读写超时，零值表示取消
func (c *TCPConn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline 设置读超时，用于握手阶段
func (c *TCPConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *TCPConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}
