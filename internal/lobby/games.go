package lobby

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/palemoky/tetris-battle/internal/apperrors"
	"github.com/palemoky/tetris-battle/internal/lobby/launcher"
	"github.com/palemoky/tetris-battle/internal/logger"
	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/storage"
)

// newRoomToken 生成 32 位十六进制的对局口令
func newRoomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// StartGame 房主开始对局：切换为 playing、分配端口与口令、启动对局进程并缓存启动信息
func (l *Lobby) StartGame(ctx context.Context, connID, sessionID string, roomID int) (protocol.GameStartPayload, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var zero protocol.GameStartPayload

	me, err := l.authLocked(connID, sessionID)
	if err != nil {
		return zero, err
	}
	r, err := l.roomLocked(roomID)
	if err != nil {
		return zero, err
	}
	if r.HostUserID != me.UserID {
		return zero, apperrors.ErrNotHostStart
	}
	if r.Status == protocol.RoomStatusPlaying {
		return zero, apperrors.ErrRoomPlaying
	}
	if len(r.Players) != maxPlayers {
		return zero, apperrors.ErrNeedTwoPlayers
	}

	r.Status = protocol.RoomStatusPlaying
	if err := l.setStatus(ctx, r.ID, protocol.RoomStatusPlaying); err != nil {
		r.Status = protocol.RoomStatusIdle
		return zero, apperrors.Wrap(apperrors.ErrStore, err)
	}

	spec := launcher.Spec{
		RoomID: r.ID,
		Token:  newRoomToken(),
		P1:     r.Players[0],
		P2:     r.Players[1],
	}
	spec.Port, err = l.ports.Allocate()
	if err == nil {
		err = l.launcher.Launch(ctx, spec)
	}
	if err != nil {
		logger.Error("房间 %d 启动对局失败: %v", r.ID, err)
		r.Status = protocol.RoomStatusIdle
		if err := l.setStatus(ctx, r.ID, protocol.RoomStatusIdle); err != nil {
			logger.Warn("回滚房间 %d 状态失败: %v", r.ID, err)
		}
		return zero, apperrors.Wrap(apperrors.ErrLaunchFailed, err)
	}

	start := protocol.GameStartPayload{
		RoomID:    r.ID,
		GameHost:  l.gameHost,
		GamePort:  spec.Port,
		RoomToken: spec.Token,
	}
	l.launches[r.ID] = start
	logger.Info("🚀 房间 %d 开始对局: %d vs %d @ %s:%d", r.ID, spec.P1, spec.P2, l.gameHost, spec.Port)
	return start, nil
}

func (l *Lobby) setStatus(ctx context.Context, roomID int, status string) error {
	_, err := l.store.Update(ctx, storage.CollectionRoom,
		storage.Filter{"id": roomID}, storage.Document{"status": status})
	return err
}

// GetGameStart 房间成员查询已缓存的启动信息
func (l *Lobby) GetGameStart(connID, sessionID string, roomID int) (protocol.GameStartPayload, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var zero protocol.GameStartPayload

	me, err := l.authLocked(connID, sessionID)
	if err != nil {
		return zero, err
	}
	r, err := l.roomLocked(roomID)
	if err != nil {
		return zero, err
	}
	if !r.Has(me.UserID) {
		return zero, apperrors.ErrNotInRoom
	}
	start, ok := l.launches[roomID]
	if !ok {
		return zero, apperrors.ErrGameNotStarted
	}
	return start, nil
}

// GameFinished 房间成员报告对局结束：恢复 idle 并丢弃启动信息
func (l *Lobby) GameFinished(ctx context.Context, connID, sessionID string, roomID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	me, err := l.authLocked(connID, sessionID)
	if err != nil {
		return err
	}
	r, err := l.roomLocked(roomID)
	if err != nil {
		return err
	}
	if !r.Has(me.UserID) {
		return apperrors.ErrNotMember
	}

	r.Status = protocol.RoomStatusIdle
	delete(l.launches, roomID)
	if err := l.setStatus(ctx, roomID, protocol.RoomStatusIdle); err != nil {
		logger.Warn("更新房间 %d 状态失败: %v", roomID, err)
	}
	return nil
}
