package protocol

import "encoding/json"

// Message 基础消息结构
//
// 线上格式为扁平 JSON 对象：{"type":"JOIN_ROOM","sessionId":"...","roomId":1}。
// Payload 保存完整帧体（包含 type 字段），由 ParsePayload 解析为具体结构。
type Message struct {
	Type    MessageType
	Payload json.RawMessage
}

// MessageType 消息类型
type MessageType string

// 客户端 → 大厅 消息类型
const (
	// 账号
	MsgRegister MessageType = "REGISTER"
	MsgLogin    MessageType = "LOGIN"
	MsgLogout   MessageType = "LOGOUT"

	// 查询
	MsgListUsers   MessageType = "LIST_USERS"
	MsgListRooms   MessageType = "LIST_ROOMS"
	MsgListInvites MessageType = "LIST_INVITES"

	// 房间操作
	MsgCreateRoom   MessageType = "CREATE_ROOM"
	MsgJoinRoom     MessageType = "JOIN_ROOM"
	MsgLeaveRoom    MessageType = "LEAVE_ROOM"
	MsgInvite       MessageType = "INVITE"
	MsgAcceptInvite MessageType = "ACCEPT_INVITE"

	// 对局
	MsgStartGame    MessageType = "START_GAME"
	MsgGetGameStart MessageType = "GET_GAME_START"
	MsgGameFinished MessageType = "GAME_FINISHED"

	MsgPing MessageType = "PING" // 心跳
)

// 大厅 → 客户端 消息类型
const (
	MsgRegisterOK   MessageType = "REGISTER_OK"
	MsgRegisterFail MessageType = "REGISTER_FAIL"
	MsgLoginOK      MessageType = "LOGIN_OK"
	MsgLoginFail    MessageType = "LOGIN_FAIL"
	MsgLogoutOK     MessageType = "LOGOUT_OK"

	MsgUsers   MessageType = "USERS"
	MsgRooms   MessageType = "ROOMS"
	MsgInvites MessageType = "INVITES"

	MsgCreateRoomOK MessageType = "CREATE_ROOM_OK"
	MsgJoinRoomOK   MessageType = "JOIN_ROOM_OK"
	MsgLeaveRoomOK  MessageType = "LEAVE_ROOM_OK"
	MsgInviteOK     MessageType = "INVITE_OK"

	MsgGameStart MessageType = "GAME_START"
	MsgOK        MessageType = "OK"
	MsgError     MessageType = "ERROR"
	MsgPong      MessageType = "PONG"
)

// 对局服务器消息类型
const (
	MsgHello    MessageType = "HELLO"     // 客户端 → 对局：握手
	MsgInput    MessageType = "INPUT"     // 客户端 → 对局：操作
	MsgWelcome  MessageType = "WELCOME"   // 对局 → 客户端：开局参数
	MsgSnapshot MessageType = "SNAPSHOT"  // 对局 → 客户端：棋盘快照
	MsgGameOver MessageType = "GAME_OVER" // 对局 → 客户端：结算
)

// 玩家操作
const (
	ActionLeft       = "LEFT"
	ActionRight      = "RIGHT"
	ActionRotate     = "ROTATE"
	ActionCW         = "CW"
	ActionSoft       = "SOFT"
	ActionHard       = "HARD"
	ActionHold       = "HOLD"
	ActionDisconnect = "DISCONNECT"
)

// 房间状态与可见性
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"

	RoomStatusIdle    = "idle"
	RoomStatusPlaying = "playing"
)

// 对局角色
const (
	RoleP1 = "P1"
	RoleP2 = "P2"
)
