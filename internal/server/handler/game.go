package handler

import (
	"context"

	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/transport"
)

// handleStartGame 房主开始对局
func (h *Handler) handleStartGame(ctx context.Context, conn transport.Conn, msg *protocol.Message) *protocol.Message {
	payload, err := protocol.ParsePayload[protocol.RoomPayload](msg)
	if err != nil {
		return errorMessage(err)
	}

	start, err := h.lobby.StartGame(ctx, conn.ID(), payload.SessionID, payload.RoomID)
	if err != nil {
		return errorMessage(err)
	}
	return protocol.MustNewMessage(protocol.MsgGameStart, start)
}

// handleGetGameStart 轮询对局启动信息
func (h *Handler) handleGetGameStart(_ context.Context, conn transport.Conn, msg *protocol.Message) *protocol.Message {
	payload, err := protocol.ParsePayload[protocol.RoomPayload](msg)
	if err != nil {
		return errorMessage(err)
	}

	start, err := h.lobby.GetGameStart(conn.ID(), payload.SessionID, payload.RoomID)
	if err != nil {
		return errorMessage(err)
	}
	return protocol.MustNewMessage(protocol.MsgGameStart, start)
}

// handleGameFinished 对局结束报告
func (h *Handler) handleGameFinished(ctx context.Context, conn transport.Conn, msg *protocol.Message) *protocol.Message {
	payload, err := protocol.ParsePayload[protocol.RoomPayload](msg)
	if err != nil {
		return errorMessage(err)
	}

	if err := h.lobby.GameFinished(ctx, conn.ID(), payload.SessionID, payload.RoomID); err != nil {
		return errorMessage(err)
	}
	return protocol.MustNewMessage(protocol.MsgOK, nil)
}
