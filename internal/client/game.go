package client

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/palemoky/tetris-battle/internal/logger"
	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/transport"
)

const (
	// 对局进程刚启动时端口可能尚未监听
	dialAttempts = 30
	dialInterval = 100 * time.Millisecond
	dialTimeout  = time.Second
)

// Event 对局服务器推送的一条消息，Snapshot 与 GameOver 恰有一个非空
type Event struct {
	Snapshot *protocol.SnapshotPayload
	GameOver *protocol.GameOverPayload
}

// GameClient 对局客户端
type GameClient struct {
	conn    *transport.TCPConn
	Welcome *protocol.WelcomePayload
}

// DialGame 连接对局服务器，使用默认重试参数
func DialGame(ctx context.Context, addr string) (*GameClient, error) {
	return DialWithRetry(ctx, addr, dialAttempts, dialInterval)
}

// DialWithRetry 连接对局服务器，失败时按固定间隔重试 attempts 次
func DialWithRetry(ctx context.Context, addr string, attempts int, delay time.Duration) (*GameClient, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := transport.Dial(addr, dialTimeout)
		if err == nil {
			return &GameClient{conn: conn}, nil
		}
		lastErr = err
		logger.Debug("连接对局服务器 %s 失败 (%d/%d): %v", addr, attempt, attempts, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("dial game %s after %d attempts: %w", addr, attempts, lastErr)
}

// JoinGame 按大厅返回的开局信息连接对局并完成握手
func JoinGame(ctx context.Context, start *protocol.GameStartPayload, userID int) (*GameClient, error) {
	addr := net.JoinHostPort(start.GameHost, strconv.Itoa(start.GamePort))
	g, err := DialGame(ctx, addr)
	if err != nil {
		return nil, err
	}
	if _, err := g.Hello(userID, start.RoomID, start.RoomToken); err != nil {
		_ = g.Close()
		return nil, err
	}
	return g, nil
}

// Hello 发送握手并等待 WELCOME；对方未到齐时会一直阻塞
func (g *GameClient) Hello(userID, roomID int, token string) (*protocol.WelcomePayload, error) {
	hello := protocol.MustNewMessage(protocol.MsgHello, protocol.HelloPayload{
		UserID:    userID,
		RoomID:    roomID,
		RoomToken: token,
	})
	if err := g.conn.Send(hello.Payload); err != nil {
		return nil, fmt.Errorf("send HELLO: %w", err)
	}

	msg, err := g.receive()
	if err != nil {
		return nil, fmt.Errorf("handshake rejected: %w", err)
	}
	if msg.Type != protocol.MsgWelcome {
		return nil, fmt.Errorf("unexpected %s before WELCOME", msg.Type)
	}
	welcome, err := protocol.ParsePayload[protocol.WelcomePayload](msg)
	if err != nil {
		return nil, err
	}
	g.Welcome = welcome
	return welcome, nil
}

// SendInput 发送一个操作
func (g *GameClient) SendInput(action string) error {
	msg := protocol.MustNewMessage(protocol.MsgInput, protocol.InputPayload{Action: action})
	return g.conn.Send(msg.Payload)
}

// Next 阻塞读取下一条快照或结算
func (g *GameClient) Next() (Event, error) {
	for {
		msg, err := g.receive()
		if err != nil {
			return Event{}, err
		}
		switch msg.Type {
		case protocol.MsgSnapshot:
			snap, err := protocol.ParsePayload[protocol.SnapshotPayload](msg)
			if err != nil {
				return Event{}, err
			}
			return Event{Snapshot: snap}, nil
		case protocol.MsgGameOver:
			over, err := protocol.ParsePayload[protocol.GameOverPayload](msg)
			if err != nil {
				return Event{}, err
			}
			return Event{GameOver: over}, nil
		default:
			logger.Debug("忽略对局消息 %s", msg.Type)
		}
	}
}

func (g *GameClient) receive() (*protocol.Message, error) {
	body, err := g.conn.Receive()
	if err != nil {
		return nil, err
	}
	return protocol.Decode(body)
}

// SetReadDeadline 设置读超时
func (g *GameClient) SetReadDeadline(t time.Time) error {
	return g.conn.SetReadDeadline(t)
}

// Close 关闭连接
func (g *GameClient) Close() error {
	return g.conn.Close()
}
