package handler

import (
	"context"

	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/transport"
)

// handleListRooms 列出所有房间
func (h *Handler) handleListRooms(_ context.Context, conn transport.Conn, msg *protocol.Message) *protocol.Message {
	payload, err := protocol.ParsePayload[protocol.SessionPayload](msg)
	if err != nil {
		return errorMessage(err)
	}

	rooms, err := h.lobby.ListRooms(conn.ID(), payload.SessionID)
	if err != nil {
		return errorMessage(err)
	}
	return protocol.MustNewMessage(protocol.MsgRooms, protocol.RoomsPayload{Rooms: rooms})
}

// handleCreateRoom 处理创建房间
func (h *Handler) handleCreateRoom(ctx context.Context, conn transport.Conn, msg *protocol.Message) *protocol.Message {
	payload, err := protocol.ParsePayload[protocol.CreateRoomPayload](msg)
	if err != nil {
		return errorMessage(err)
	}

	roomID, err := h.lobby.CreateRoom(ctx, conn.ID(), payload.SessionID, payload.Name, payload.Visibility)
	if err != nil {
		return errorMessage(err)
	}
	return protocol.MustNewMessage(protocol.MsgCreateRoomOK, protocol.CreateRoomOKPayload{RoomID: roomID})
}

// handleJoinRoom 处理加入房间
func (h *Handler) handleJoinRoom(ctx context.Context, conn transport.Conn, msg *protocol.Message) *protocol.Message {
	payload, err := protocol.ParsePayload[protocol.RoomPayload](msg)
	if err != nil {
		return errorMessage(err)
	}

	players, err := h.lobby.JoinRoom(ctx, conn.ID(), payload.SessionID, payload.RoomID)
	if err != nil {
		return errorMessage(err)
	}
	return protocol.MustNewMessage(protocol.MsgJoinRoomOK, protocol.JoinRoomOKPayload{
		RoomID:  payload.RoomID,
		Players: players,
	})
}

// handleLeaveRoom 处理离开房间
func (h *Handler) handleLeaveRoom(ctx context.Context, conn transport.Conn, msg *protocol.Message) *protocol.Message {
	payload, err := protocol.ParsePayload[protocol.RoomPayload](msg)
	if err != nil {
		return errorMessage(err)
	}

	deleted, err := h.lobby.LeaveRoom(ctx, conn.ID(), payload.SessionID, payload.RoomID)
	if err != nil {
		return errorMessage(err)
	}
	return protocol.MustNewMessage(protocol.MsgLeaveRoomOK, protocol.LeaveRoomOKPayload{RoomDeleted: deleted})
}

// handleInvite 处理邀请
func (h *Handler) handleInvite(_ context.Context, conn transport.Conn, msg *protocol.Message) *protocol.Message {
	payload, err := protocol.ParsePayload[protocol.InvitePayload](msg)
	if err != nil {
		return errorMessage(err)
	}

	if err := h.lobby.Invite(conn.ID(), payload.SessionID, payload.RoomID, payload.TargetUserID); err != nil {
		return errorMessage(err)
	}
	return protocol.MustNewMessage(protocol.MsgInviteOK, nil)
}

// handleListInvites 列出待处理邀请
func (h *Handler) handleListInvites(_ context.Context, conn transport.Conn, msg *protocol.Message) *protocol.Message {
	payload, err := protocol.ParsePayload[protocol.SessionPayload](msg)
	if err != nil {
		return errorMessage(err)
	}

	invites, err := h.lobby.ListInvites(conn.ID(), payload.SessionID)
	if err != nil {
		return errorMessage(err)
	}
	return protocol.MustNewMessage(protocol.MsgInvites, protocol.InvitesPayload{Invites: invites})
}

// handleAcceptInvite 接受邀请，响应与加入房间相同
func (h *Handler) handleAcceptInvite(ctx context.Context, conn transport.Conn, msg *protocol.Message) *protocol.Message {
	payload, err := protocol.ParsePayload[protocol.RoomPayload](msg)
	if err != nil {
		return errorMessage(err)
	}

	players, err := h.lobby.AcceptInvite(ctx, conn.ID(), payload.SessionID, payload.RoomID)
	if err != nil {
		return errorMessage(err)
	}
	return protocol.MustNewMessage(protocol.MsgJoinRoomOK, protocol.JoinRoomOKPayload{
		RoomID:  payload.RoomID,
		Players: players,
	})
}
