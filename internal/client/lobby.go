// Package client 大厅与对局服务器的 TCP 客户端
package client

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/transport"
)

const defaultRequestTimeout = 10 * time.Second

// ErrNotLoggedIn 需要会话的请求在登录前发出
var ErrNotLoggedIn = errors.New("not logged in")

// ServerError 服务端返回的失败响应（ERROR / REGISTER_FAIL / LOGIN_FAIL）
type ServerError struct {
	Type   protocol.MessageType
	Code   int
	Reason string
}

func (e *ServerError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s %d: %s", e.Type, e.Code, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Reason)
}

// LobbyClient 大厅客户端，请求与响应一问一答，可并发调用
type LobbyClient struct {
	conn    *transport.TCPConn
	timeout time.Duration
	mu      sync.Mutex

	UserID    int
	Name      string
	SessionID string
}

// DialLobby 连接大厅
func DialLobby(addr string, timeout time.Duration) (*LobbyClient, error) {
	conn, err := transport.Dial(addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial lobby %s: %w", addr, err)
	}
	return &LobbyClient{conn: conn, timeout: defaultRequestTimeout}, nil
}

// SetTimeout 设置单次请求的超时
func (c *LobbyClient) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Close 关闭连接
func (c *LobbyClient) Close() error {
	return c.conn.Close()
}

// Request 发送一条请求并读取对应响应；失败响应转换为 *ServerError
func (c *LobbyClient) Request(msgType protocol.MessageType, payload any) (*protocol.Message, error) {
	req, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
		defer func() { _ = c.conn.SetDeadline(time.Time{}) }()
	}
	if err := c.conn.Send(req.Payload); err != nil {
		return nil, fmt.Errorf("send %s: %w", msgType, err)
	}
	body, err := c.conn.Receive()
	if err != nil {
		return nil, fmt.Errorf("receive reply to %s: %w", msgType, err)
	}
	resp, err := protocol.Decode(body)
	if err != nil {
		return nil, err
	}

	switch resp.Type {
	case protocol.MsgError:
		p, err := protocol.ParsePayload[protocol.ErrorPayload](resp)
		if err != nil {
			return nil, err
		}
		return nil, &ServerError{Type: resp.Type, Code: p.Code, Reason: p.Reason}
	case protocol.MsgRegisterFail, protocol.MsgLoginFail:
		p, err := protocol.ParsePayload[protocol.FailPayload](resp)
		if err != nil {
			return nil, err
		}
		return nil, &ServerError{Type: resp.Type, Reason: p.Reason}
	}
	return resp, nil
}

// call 发送请求并把期望类型的响应解析为 T
func call[T any](c *LobbyClient, msgType protocol.MessageType, payload any, want protocol.MessageType) (*T, error) {
	resp, err := c.Request(msgType, payload)
	if err != nil {
		return nil, err
	}
	if resp.Type != want {
		return nil, fmt.Errorf("unexpected reply %s to %s", resp.Type, msgType)
	}
	return protocol.ParsePayload[T](resp)
}

func (c *LobbyClient) session() (string, error) {
	if c.SessionID == "" {
		return "", ErrNotLoggedIn
	}
	return c.SessionID, nil
}

// Register 注册账号，返回用户 ID
func (c *LobbyClient) Register(name, email, password string) (int, error) {
	resp, err := call[protocol.RegisterOKPayload](c, protocol.MsgRegister,
		protocol.RegisterPayload{Name: name, Email: email, Password: password}, protocol.MsgRegisterOK)
	if err != nil {
		return 0, err
	}
	return resp.UserID, nil
}

// Login 登录并记录会话
func (c *LobbyClient) Login(name, password string) error {
	resp, err := call[protocol.LoginOKPayload](c, protocol.MsgLogin,
		protocol.LoginPayload{Name: name, Password: password}, protocol.MsgLoginOK)
	if err != nil {
		return err
	}
	c.UserID = resp.UserID
	c.Name = resp.Name
	c.SessionID = resp.SessionID
	return nil
}

// Logout 注销当前会话
func (c *LobbyClient) Logout() error {
	sid, err := c.session()
	if err != nil {
		return err
	}
	resp, err := c.Request(protocol.MsgLogout, protocol.SessionPayload{SessionID: sid})
	if err != nil {
		return err
	}
	if resp.Type != protocol.MsgLogoutOK {
		return fmt.Errorf("unexpected reply %s to LOGOUT", resp.Type)
	}
	c.SessionID = ""
	return nil
}

// ListUsers 在线用户
func (c *LobbyClient) ListUsers() ([]protocol.UserInfo, error) {
	sid, err := c.session()
	if err != nil {
		return nil, err
	}
	resp, err := call[protocol.UsersPayload](c, protocol.MsgListUsers, protocol.SessionPayload{SessionID: sid}, protocol.MsgUsers)
	if err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// ListRooms 可见房间
func (c *LobbyClient) ListRooms() ([]protocol.RoomInfo, error) {
	sid, err := c.session()
	if err != nil {
		return nil, err
	}
	resp, err := call[protocol.RoomsPayload](c, protocol.MsgListRooms, protocol.SessionPayload{SessionID: sid}, protocol.MsgRooms)
	if err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// ListInvites 收到的邀请
func (c *LobbyClient) ListInvites() ([]protocol.InviteInfo, error) {
	sid, err := c.session()
	if err != nil {
		return nil, err
	}
	resp, err := call[protocol.InvitesPayload](c, protocol.MsgListInvites, protocol.SessionPayload{SessionID: sid}, protocol.MsgInvites)
	if err != nil {
		return nil, err
	}
	return resp.Invites, nil
}

// CreateRoom 创建房间，返回房间 ID
func (c *LobbyClient) CreateRoom(name, visibility string) (int, error) {
	sid, err := c.session()
	if err != nil {
		return 0, err
	}
	resp, err := call[protocol.CreateRoomOKPayload](c, protocol.MsgCreateRoom,
		protocol.CreateRoomPayload{SessionID: sid, Name: name, Visibility: visibility}, protocol.MsgCreateRoomOK)
	if err != nil {
		return 0, err
	}
	return resp.RoomID, nil
}

// JoinRoom 加入房间，返回房间内玩家
func (c *LobbyClient) JoinRoom(roomID int) ([]int, error) {
	return c.joinLike(protocol.MsgJoinRoom, roomID)
}

// AcceptInvite 接受邀请并加入房间
func (c *LobbyClient) AcceptInvite(roomID int) ([]int, error) {
	return c.joinLike(protocol.MsgAcceptInvite, roomID)
}

func (c *LobbyClient) joinLike(msgType protocol.MessageType, roomID int) ([]int, error) {
	sid, err := c.session()
	if err != nil {
		return nil, err
	}
	resp, err := call[protocol.JoinRoomOKPayload](c, msgType,
		protocol.RoomPayload{SessionID: sid, RoomID: roomID}, protocol.MsgJoinRoomOK)
	if err != nil {
		return nil, err
	}
	return resp.Players, nil
}

// LeaveRoom 离开房间，返回房间是否随之解散
func (c *LobbyClient) LeaveRoom(roomID int) (bool, error) {
	sid, err := c.session()
	if err != nil {
		return false, err
	}
	resp, err := call[protocol.LeaveRoomOKPayload](c, protocol.MsgLeaveRoom,
		protocol.RoomPayload{SessionID: sid, RoomID: roomID}, protocol.MsgLeaveRoomOK)
	if err != nil {
		return false, err
	}
	return resp.RoomDeleted, nil
}

// Invite 邀请用户加入房间
func (c *LobbyClient) Invite(roomID, targetUserID int) error {
	sid, err := c.session()
	if err != nil {
		return err
	}
	resp, err := c.Request(protocol.MsgInvite,
		protocol.InvitePayload{SessionID: sid, RoomID: roomID, TargetUserID: targetUserID})
	if err != nil {
		return err
	}
	if resp.Type != protocol.MsgInviteOK {
		return fmt.Errorf("unexpected reply %s to INVITE", resp.Type)
	}
	return nil
}

// StartGame 房主开局
func (c *LobbyClient) StartGame(roomID int) (*protocol.GameStartPayload, error) {
	return c.gameStart(protocol.MsgStartGame, roomID)
}

// GetGameStart 查询已开局房间的对局地址
func (c *LobbyClient) GetGameStart(roomID int) (*protocol.GameStartPayload, error) {
	return c.gameStart(protocol.MsgGetGameStart, roomID)
}

func (c *LobbyClient) gameStart(msgType protocol.MessageType, roomID int) (*protocol.GameStartPayload, error) {
	sid, err := c.session()
	if err != nil {
		return nil, err
	}
	return call[protocol.GameStartPayload](c, msgType,
		protocol.RoomPayload{SessionID: sid, RoomID: roomID}, protocol.MsgGameStart)
}

// GameFinished 通知大厅对局结束，房间回到空闲
func (c *LobbyClient) GameFinished(roomID int) error {
	sid, err := c.session()
	if err != nil {
		return err
	}
	resp, err := c.Request(protocol.MsgGameFinished, protocol.RoomPayload{SessionID: sid, RoomID: roomID})
	if err != nil {
		return err
	}
	if resp.Type != protocol.MsgOK {
		return fmt.Errorf("unexpected reply %s to GAME_FINISHED", resp.Type)
	}
	return nil
}

// Ping 心跳，返回往返延迟
func (c *LobbyClient) Ping() (time.Duration, error) {
	start := time.Now()
	resp, err := call[protocol.PongPayload](c, protocol.MsgPing,
		protocol.PingPayload{Timestamp: start.UnixMilli()}, protocol.MsgPong)
	if err != nil {
		return 0, err
	}
	if resp.ClientTimestamp != start.UnixMilli() {
		return 0, errors.New("pong does not match ping")
	}
	return time.Since(start), nil
}

// WaitGameStart 轮询直到房间开局，供非房主玩家使用
func (c *LobbyClient) WaitGameStart(roomID int, interval, timeout time.Duration) (*protocol.GameStartPayload, error) {
	deadline := time.Now().Add(timeout)
	for {
		start, err := c.GetGameStart(roomID)
		if err == nil {
			return start, nil
		}
		var serr *ServerError
		if !errors.As(err, &serr) || serr.Code != protocol.ErrCodeGameNotStarted {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("room %d did not start within %v", roomID, timeout)
		}
		time.Sleep(interval)
	}
}
