package handler

import (
	"context"
	"errors"

	"github.com/palemoky/tetris-battle/internal/apperrors"
	"github.com/palemoky/tetris-battle/internal/lobby"
	"github.com/palemoky/tetris-battle/internal/logger"
	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/transport"
)

// Handler 大厅消息处理器
type Handler struct {
	lobby    *lobby.Lobby
	handlers map[protocol.MessageType]handlerFunc
}

// handlerFunc 统一的处理器函数签名，返回要回给客户端的一条消息
type handlerFunc func(ctx context.Context, conn transport.Conn, msg *protocol.Message) *protocol.Message

// NewHandler 创建处理器
func NewHandler(l *lobby.Lobby) *Handler {
	h := &Handler{lobby: l}
	h.initHandlers()
	return h
}

// initHandlers 初始化消息处理器映射
func (h *Handler) initHandlers() {
	h.handlers = map[protocol.MessageType]handlerFunc{
		// 连接
		protocol.MsgPing: h.handlePing,

		// 账号
		protocol.MsgRegister:  h.handleRegister,
		protocol.MsgLogin:     h.handleLogin,
		protocol.MsgLogout:    h.handleLogout,
		protocol.MsgListUsers: h.handleListUsers,

		// 房间
		protocol.MsgListRooms:  h.handleListRooms,
		protocol.MsgCreateRoom: h.handleCreateRoom,
		protocol.MsgJoinRoom:   h.handleJoinRoom,
		protocol.MsgLeaveRoom:  h.handleLeaveRoom,

		// 邀请
		protocol.MsgInvite:       h.handleInvite,
		protocol.MsgListInvites:  h.handleListInvites,
		protocol.MsgAcceptInvite: h.handleAcceptInvite,

		// 对局
		protocol.MsgStartGame:    h.handleStartGame,
		protocol.MsgGetGameStart: h.handleGetGameStart,
		protocol.MsgGameFinished: h.handleGameFinished,
	}
}

// Handle 处理一条消息，每个请求都恰好得到一条响应
func (h *Handler) Handle(ctx context.Context, conn transport.Conn, msg *protocol.Message) *protocol.Message {
	if handler, ok := h.handlers[msg.Type]; ok {
		return handler(ctx, conn, msg)
	}

	logger.Warn("⚠️  未知消息类型: '%s' (连接: %s)", msg.Type, conn.ID())
	return errorMessage(apperrors.ErrUnknownType)
}

// errorMessage 把错误转换为 ERROR 响应
func errorMessage(err error) *protocol.Message {
	var fieldErr *protocol.FieldError
	if errors.As(err, &fieldErr) {
		return protocol.NewErrorMessageWithText(protocol.ErrCodeMissingField, fieldErr.Error())
	}

	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		if appErr.Err != nil {
			logger.Warn("%s: %v", appErr.Message, appErr.Err)
		}
		return protocol.NewErrorMessageWithText(appErr.Code, appErr.Message)
	}

	logger.Error("未分类的错误: %v", err)
	return protocol.NewErrorMessage(protocol.ErrCodeUnknown)
}

// failMessage 把错误转换为 REGISTER_FAIL / LOGIN_FAIL 响应
func failMessage(msgType protocol.MessageType, err error) *protocol.Message {
	reason := protocol.ErrorMessages[protocol.ErrCodeUnknown]

	var fieldErr *protocol.FieldError
	var appErr *apperrors.Error
	switch {
	case errors.As(err, &fieldErr):
		reason = fieldErr.Error()
	case errors.As(err, &appErr):
		if appErr.Err != nil {
			logger.Warn("%s: %v", appErr.Message, appErr.Err)
		}
		reason = appErr.Message
	default:
		logger.Error("未分类的错误: %v", err)
	}
	return protocol.MustNewMessage(msgType, protocol.FailPayload{Reason: reason})
}
