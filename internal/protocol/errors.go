package protocol

// 错误码
const (
	ErrCodeUnknown     = 1000
	ErrCodeInvalidMsg  = 1001
	ErrCodeRateLimit   = 1002 // 速率限制
	ErrCodeUnknownType = 1003

	ErrCodeInvalidSession = 1101
	ErrCodeNotHost        = 1102
	ErrCodeNotInRoom      = 1103
	ErrCodeWrongPassword  = 1104
	ErrCodeLoggedIn       = 1105
	ErrCodeRoomPrivate    = 1106

	ErrCodeRoomNotFound    = 2001
	ErrCodeRoomFull        = 2002
	ErrCodeAlreadyInRoom   = 2003
	ErrCodeGameStarted     = 2004
	ErrCodeNeedTwoPlayers  = 2005
	ErrCodeGameNotStarted  = 2006
	ErrCodeNameTaken       = 2007
	ErrCodeUserNotFound    = 2008
	ErrCodeInviteNotFound  = 2009
	ErrCodeMissingField    = 2010

	ErrCodeStore  = 5001 // 存储不可用
	ErrCodeLaunch = 5002 // 对局进程启动失败
)

// ErrorMessages 错误码对应的默认消息
var ErrorMessages = map[int]string{
	ErrCodeUnknown:         "unknown error",
	ErrCodeInvalidMsg:      "invalid message",
	ErrCodeRateLimit:       "too many requests",
	ErrCodeUnknownType:     "unknown type",
	ErrCodeInvalidSession:  "invalid session",
	ErrCodeNotHost:         "only host can do this",
	ErrCodeNotInRoom:       "not in this room",
	ErrCodeWrongPassword:   "wrong password",
	ErrCodeLoggedIn:        "user already logged in",
	ErrCodeRoomPrivate:     "room is private",
	ErrCodeRoomNotFound:    "no such room",
	ErrCodeRoomFull:        "room full",
	ErrCodeAlreadyInRoom:   "user already in room",
	ErrCodeGameStarted:     "game already started",
	ErrCodeNeedTwoPlayers:  "need exactly 2 players",
	ErrCodeGameNotStarted:  "game not started",
	ErrCodeNameTaken:       "name taken",
	ErrCodeUserNotFound:    "no such user",
	ErrCodeInviteNotFound:  "no such invite for this room",
	ErrCodeMissingField:    "missing field",
	ErrCodeStore:           "db error",
	ErrCodeLaunch:          "failed to start game server",
}
