package gameserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/transport"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 2 * time.Second
)

// seat 已通过握手的玩家
type seat struct {
	userID int
	role   string
	conn   *transport.TCPConn
	queue  *intentQueue
}

// waitForPlayers 接受连接直到两名玩家完成握手；每个连接在独立 goroutine 中握手，
// 一个不说话的连接不会阻塞另一名玩家
func (s *Server) waitForPlayers(ctx context.Context) error {
	joinCtx, cancel := context.WithTimeout(ctx, s.cfg.JoinTimeoutDuration())
	defer cancel()

	go s.acceptLoop()

	select {
	case <-s.seated:
		_ = s.listener.Close()
		s.mu.Lock()
		s.accepting = false
		for conn := range s.pending {
			_ = conn.Close()
		}
		s.mu.Unlock()
		return nil
	case <-joinCtx.Done():
		if ctx.Err() != nil {
			return ErrStopped
		}
		s.log.Errorf("⏰ %v 内玩家未到齐", s.cfg.JoinTimeoutDuration())
		return ErrJoinTimeout
	}
}

func (s *Server) acceptLoop() {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handshake(transport.NewTCPConn(nc))
	}
}

// handshake 第一帧必须是合法的 HELLO，否则直接关闭连接，不做回复
func (s *Server) handshake(conn *transport.TCPConn) {
	if !s.trackPending(conn) {
		_ = conn.Close()
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	hello, err := s.readHello(conn)
	if err != nil {
		s.reject(conn, err)
		return
	}

	s.mu.Lock()
	delete(s.pending, conn)
	if err := s.seatLocked(hello.UserID, conn); err != nil {
		s.mu.Unlock()
		s.reject(conn, err)
		return
	}
	s.mu.Unlock()
}

func (s *Server) trackPending(conn *transport.TCPConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accepting {
		return false
	}
	s.pending[conn] = struct{}{}
	return true
}

// readHello 读取并校验握手消息
func (s *Server) readHello(conn *transport.TCPConn) (*protocol.HelloPayload, error) {
	body, err := conn.Receive()
	if err != nil {
		return nil, err
	}
	msg, err := protocol.Decode(body)
	if err != nil {
		return nil, err
	}
	if msg.Type != protocol.MsgHello {
		return nil, fmt.Errorf("first message is %s, not HELLO", msg.Type)
	}
	hello, err := protocol.ParsePayload[protocol.HelloPayload](msg)
	if err != nil {
		return nil, err
	}

	if hello.RoomID != s.opts.RoomID ||
		subtle.ConstantTimeCompare([]byte(hello.RoomToken), []byte(s.opts.Token)) != 1 {
		return nil, fmt.Errorf("room/token mismatch from user %d", hello.UserID)
	}
	if !s.opts.authorized(hello.UserID) {
		return nil, fmt.Errorf("user %d is not in this match", hello.UserID)
	}
	return hello, nil
}

// seatLocked 按握手完成顺序分配 P1/P2；调用方需持有 s.mu
func (s *Server) seatLocked(userID int, conn *transport.TCPConn) error {
	if !s.accepting || len(s.seats) == 2 {
		return errors.New("match already full")
	}
	for _, st := range s.seats {
		if st.userID == userID {
			return fmt.Errorf("duplicate user %d", userID)
		}
	}

	role := protocol.RoleP1
	if len(s.seats) == 1 {
		role = protocol.RoleP2
	}

	_ = conn.SetReadDeadline(time.Time{})
	conn.SetWriteTimeout(writeTimeout)
	s.seats = append(s.seats, &seat{
		userID: userID,
		role:   role,
		conn:   conn,
		queue:  &intentQueue{},
	})
	s.log.Infof("🙋 玩家 %d 加入，角色 %s", userID, role)

	if len(s.seats) == 2 {
		s.accepting = false
		close(s.seated)
	}
	return nil
}

func (s *Server) reject(conn *transport.TCPConn, err error) {
	s.mu.Lock()
	delete(s.pending, conn)
	s.mu.Unlock()

	s.log.Warnf("🚫 拒绝连接 %s: %v", conn.RemoteAddr(), err)
	_ = conn.Close()
}
