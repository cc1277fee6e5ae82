package apperrors

import (
	"errors"

	"github.com/palemoky/tetris-battle/internal/protocol"
)

// Kind 错误分类，决定处理边界如何响应
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthorization
	KindStateConflict
	KindNotFound
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindStateConflict:
		return "state_conflict"
	case KindNotFound:
		return "not_found"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// Error 业务错误（大厅各处理器共享），在处理边界转换为 ERROR 响应
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error // 底层原因，仅记录日志，不下发客户端
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按错误码匹配，包装后的错误仍与预定义错误相等
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code && t.Message == e.Message
}

// New 创建错误，Message 为空时使用错误码默认消息
func New(kind Kind, code int, message string) *Error {
	if message == "" {
		message = protocol.ErrorMessages[code]
	}
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation 创建字段校验错误
func Validation(message string) *Error {
	return New(KindValidation, protocol.ErrCodeMissingField, message)
}

// Wrap 为预定义错误附加底层原因
func Wrap(base *Error, cause error) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: base.Message, Err: cause}
}

// KindOf 返回错误的分类，非业务错误视为基础设施错误
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// 预定义错误
var (
	ErrInvalidSession     = New(KindAuthorization, protocol.ErrCodeInvalidSession, "")
	ErrMissingCredentials = New(KindValidation, protocol.ErrCodeMissingField, "missing name/password")
	ErrNoSuchUser         = New(KindNotFound, protocol.ErrCodeUserNotFound, "")
	ErrWrongPassword      = New(KindAuthorization, protocol.ErrCodeWrongPassword, "")
	ErrAlreadyLoggedIn    = New(KindAuthorization, protocol.ErrCodeLoggedIn, "")
	ErrNameTaken          = New(KindStateConflict, protocol.ErrCodeNameTaken, "")

	ErrRoomNotFound   = New(KindNotFound, protocol.ErrCodeRoomNotFound, "")
	ErrRoomGone       = New(KindNotFound, protocol.ErrCodeRoomNotFound, "room no longer exists")
	ErrRoomPrivate    = New(KindAuthorization, protocol.ErrCodeRoomPrivate, "")
	ErrRoomFull       = New(KindStateConflict, protocol.ErrCodeRoomFull, "")
	ErrRoomPlaying    = New(KindStateConflict, protocol.ErrCodeGameStarted, "")
	ErrAlreadyInRoom  = New(KindStateConflict, protocol.ErrCodeAlreadyInRoom, "")
	ErrNotInRoom      = New(KindAuthorization, protocol.ErrCodeNotInRoom, "")
	ErrNotMember      = New(KindAuthorization, protocol.ErrCodeNotInRoom, "not in room")
	ErrNotHostInvite  = New(KindAuthorization, protocol.ErrCodeNotHost, "only host can invite")
	ErrNotHostStart   = New(KindAuthorization, protocol.ErrCodeNotHost, "only host can start")
	ErrNeedTwoPlayers = New(KindStateConflict, protocol.ErrCodeNeedTwoPlayers, "")
	ErrGameNotStarted = New(KindNotFound, protocol.ErrCodeGameNotStarted, "")

	ErrNoInvites      = New(KindNotFound, protocol.ErrCodeInviteNotFound, "no invites")
	ErrNoSuchInvite   = New(KindNotFound, protocol.ErrCodeInviteNotFound, "")
	ErrUnknownType    = New(KindValidation, protocol.ErrCodeUnknownType, "")

	ErrStore        = New(KindInfrastructure, protocol.ErrCodeStore, "")
	ErrLaunchFailed = New(KindInfrastructure, protocol.ErrCodeLaunch, "")
)
