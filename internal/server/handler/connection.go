package handler

import (
	"context"
	"time"

	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/transport"
)

// handlePing 处理心跳消息
func (h *Handler) handlePing(_ context.Context, _ transport.Conn, msg *protocol.Message) *protocol.Message {
	payload, err := protocol.ParsePayload[protocol.PingPayload](msg)
	if err != nil {
		return errorMessage(err)
	}

	return protocol.MustNewMessage(protocol.MsgPong, protocol.PongPayload{
		ClientTimestamp: payload.Timestamp,
		ServerTimestamp: time.Now().UnixMilli(),
	})
}
