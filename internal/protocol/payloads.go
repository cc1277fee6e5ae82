package protocol

// --- 大厅请求 Payloads ---

// RegisterPayload 注册请求，缺少字段时由处理器返回 REGISTER_FAIL
type RegisterPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password"`
}

// LoginPayload 登录请求
type LoginPayload struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// SessionPayload 仅携带会话的请求（LOGOUT / LIST_*）
type SessionPayload struct {
	SessionID string `json:"sessionId"`
}

// CreateRoomPayload 创建房间请求
type CreateRoomPayload struct {
	SessionID  string `json:"sessionId"`
	Name       string `json:"name" validate:"max=64"`
	Visibility string `json:"visibility" validate:"omitempty,oneof=public private"`
}

// RoomPayload 针对单个房间的请求（JOIN / LEAVE / ACCEPT_INVITE / START_GAME / GET_GAME_START / GAME_FINISHED）
type RoomPayload struct {
	SessionID string `json:"sessionId"`
	RoomID    int    `json:"roomId" validate:"required,gt=0"`
}

// InvitePayload 邀请请求
type InvitePayload struct {
	SessionID    string `json:"sessionId"`
	RoomID       int    `json:"roomId" validate:"required,gt=0"`
	TargetUserID int    `json:"targetUserId" validate:"required,gt=0"`
}

// PingPayload 心跳请求
type PingPayload struct {
	Timestamp int64 `json:"timestamp"` // 客户端时间戳（毫秒）
}

// --- 大厅响应 Payloads ---

// FailPayload REGISTER_FAIL / LOGIN_FAIL
type FailPayload struct {
	Reason string `json:"reason"`
}

// ErrorPayload 通用错误响应
type ErrorPayload struct {
	Reason string `json:"reason"`
	Code   int    `json:"code"`
}

// RegisterOKPayload 注册成功
type RegisterOKPayload struct {
	UserID int `json:"userId"`
}

// LoginOKPayload 登录成功
type LoginOKPayload struct {
	UserID    int    `json:"userId"`
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}

// UserInfo 在线用户
type UserInfo struct {
	UserID int    `json:"userId"`
	Name   string `json:"name"`
}

// UsersPayload 在线用户列表
type UsersPayload struct {
	Users []UserInfo `json:"users"`
}

// RoomInfo 房间信息
type RoomInfo struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	HostUserID int    `json:"hostUserId"`
	Visibility string `json:"visibility"`
	Status     string `json:"status"`
	Players    []int  `json:"players"`
}

// RoomsPayload 房间列表
type RoomsPayload struct {
	Rooms []RoomInfo `json:"rooms"`
}

// CreateRoomOKPayload 创建房间成功
type CreateRoomOKPayload struct {
	RoomID int `json:"roomId"`
}

// JoinRoomOKPayload 加入房间成功
type JoinRoomOKPayload struct {
	RoomID  int   `json:"roomId"`
	Players []int `json:"players"`
}

// LeaveRoomOKPayload 离开房间成功
type LeaveRoomOKPayload struct {
	RoomDeleted bool `json:"roomDeleted"`
}

// InviteInfo 待处理邀请
type InviteInfo struct {
	RoomID     int    `json:"roomId"`
	FromUserID int    `json:"fromUserId"`
	RoomName   string `json:"roomName"`
}

// InvitesPayload 邀请列表
type InvitesPayload struct {
	Invites []InviteInfo `json:"invites"`
}

// GameStartPayload 对局启动信息，START_GAME 与 GET_GAME_START 返回同一份
type GameStartPayload struct {
	RoomID    int    `json:"roomId"`
	GameHost  string `json:"gameHost"`
	GamePort  int    `json:"gamePort"`
	RoomToken string `json:"roomToken"`
}

// PongPayload 心跳响应
type PongPayload struct {
	ClientTimestamp int64 `json:"clientTimestamp"`
	ServerTimestamp int64 `json:"serverTimestamp"`
}

// --- 对局 Payloads ---

// HelloPayload 对局握手
type HelloPayload struct {
	UserID    int    `json:"userId" validate:"required"`
	RoomID    int    `json:"roomId" validate:"required"`
	RoomToken string `json:"roomToken" validate:"required"`
}

// InputPayload 玩家操作
type InputPayload struct {
	Action string `json:"action" validate:"required"`
	UserID int    `json:"userId,omitempty"`
}

// GravityPlan 重力参数
type GravityPlan struct {
	Mode   string `json:"mode"`
	DropMs int    `json:"dropMs"`
}

// WelcomePayload 开局参数
type WelcomePayload struct {
	Role        string      `json:"role"`
	Seed        uint64      `json:"seed"`
	BagRule     string      `json:"bagRule"`
	GravityPlan GravityPlan `json:"gravityPlan"`
	BoardWidth  int         `json:"boardWidth"`
	BoardHeight int         `json:"boardHeight"`
}

// ActivePiece 当前下落方块
type ActivePiece struct {
	Shape string `json:"shape"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Rot   int    `json:"rot"`
}

// SnapshotPayload 单个玩家的状态快照
type SnapshotPayload struct {
	Tick        int          `json:"tick"`
	UserID      int          `json:"userId"`
	Board       []int        `json:"board"`
	Active      *ActivePiece `json:"active"`
	Hold        *string      `json:"hold"`
	Next        []string     `json:"next"`
	Score       int          `json:"score"`
	Lines       int          `json:"lines"`
	Alive       bool         `json:"alive"`
	RemainingMs int          `json:"remainingMs"`
}

// PlayerResult 单个玩家的结算
type PlayerResult struct {
	UserID int  `json:"userId"`
	Score  int  `json:"score"`
	Lines  int  `json:"lines"`
	Win    bool `json:"win"`
}

// GameOverPayload 对局结算
type GameOverPayload struct {
	Reason  string         `json:"reason"` // timeUp / bothDead
	Results []PlayerResult `json:"results"`
}
