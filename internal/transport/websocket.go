package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WSConn WebSocket 连接，一条 WebSocket 消息即一帧
type WSConn struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}
}

// NewWSConn 包装已升级的 WebSocket 连接并启动心跳
func NewWSConn(conn *websocket.Conn) *WSConn {
	c := &WSConn{
		id:   uuid.NewString(),
		conn: conn,
		done: make(chan struct{}),
	}
	conn.SetReadLimit(MaxFrameSize + 1)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.pingLoop()
	return c
}

func (c *WSConn) ID() string { return c.id }

func (c *WSConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (c *WSConn) Send(body []byte) error {
	if len(body) == 0 || len(body) > MaxFrameSize {
		return fmt.Errorf("%w: frame length %d", ErrProtocolViolation, len(body))
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, body)
}

func (c *WSConn) Receive() ([]byte, error) {
	for {
		kind, body, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, fmt.Errorf("%w: peer closed: %v", ErrProtocolViolation, err)
			}
			if err == websocket.ErrReadLimit {
				return nil, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
			}
			return nil, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		if len(body) == 0 || len(body) > MaxFrameSize {
			return nil, fmt.Errorf("%w: frame length %d", ErrProtocolViolation, len(body))
		}
		return body, nil
	}
}

// pingLoop 定期发送 ping，WriteControl 可与 WriteMessage 并发调用
func (c *WSConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *WSConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return c.conn.Close()
}
