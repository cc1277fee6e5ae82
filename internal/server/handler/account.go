package handler

import (
	"context"

	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/transport"
)

// handleRegister 处理注册
func (h *Handler) handleRegister(ctx context.Context, _ transport.Conn, msg *protocol.Message) *protocol.Message {
	payload, err := protocol.ParsePayload[protocol.RegisterPayload](msg)
	if err != nil {
		return failMessage(protocol.MsgRegisterFail, err)
	}

	userID, err := h.lobby.Register(ctx, payload.Name, payload.Email, payload.Password)
	if err != nil {
		return failMessage(protocol.MsgRegisterFail, err)
	}
	return protocol.MustNewMessage(protocol.MsgRegisterOK, protocol.RegisterOKPayload{UserID: userID})
}

// handleLogin 处理登录，会话绑定到当前连接
func (h *Handler) handleLogin(ctx context.Context, conn transport.Conn, msg *protocol.Message) *protocol.Message {
	payload, err := protocol.ParsePayload[protocol.LoginPayload](msg)
	if err != nil {
		return failMessage(protocol.MsgLoginFail, err)
	}

	s, err := h.lobby.Login(ctx, conn.ID(), payload.Name, payload.Password)
	if err != nil {
		return failMessage(protocol.MsgLoginFail, err)
	}
	return protocol.MustNewMessage(protocol.MsgLoginOK, protocol.LoginOKPayload{
		UserID:    s.UserID,
		SessionID: s.ID,
		Name:      s.Name,
	})
}

// handleLogout 处理注销，总是返回成功
func (h *Handler) handleLogout(ctx context.Context, conn transport.Conn, msg *protocol.Message) *protocol.Message {
	if payload, err := protocol.ParsePayload[protocol.SessionPayload](msg); err == nil {
		h.lobby.Logout(ctx, conn.ID(), payload.SessionID)
	}
	return protocol.MustNewMessage(protocol.MsgLogoutOK, nil)
}

// handleListUsers 列出在线用户
func (h *Handler) handleListUsers(_ context.Context, conn transport.Conn, msg *protocol.Message) *protocol.Message {
	payload, err := protocol.ParsePayload[protocol.SessionPayload](msg)
	if err != nil {
		return errorMessage(err)
	}

	users, err := h.lobby.ListUsers(conn.ID(), payload.SessionID)
	if err != nil {
		return errorMessage(err)
	}
	return protocol.MustNewMessage(protocol.MsgUsers, protocol.UsersPayload{Users: users})
}
