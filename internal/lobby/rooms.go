package lobby

import (
	"context"
	"slices"

	"github.com/palemoky/tetris-battle/internal/apperrors"
	"github.com/palemoky/tetris-battle/internal/logger"
	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/storage"
)

// ListRooms 返回所有房间，按 id 升序
func (l *Lobby) ListRooms(connID, sessionID string) ([]protocol.RoomInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.authLocked(connID, sessionID); err != nil {
		return nil, err
	}

	rooms := make([]protocol.RoomInfo, 0, len(l.rooms))
	for _, id := range l.sortedRoomIDs() {
		rooms = append(rooms, l.rooms[id].Info())
	}
	return rooms, nil
}

// CreateRoom 创建房间，创建者为房主和唯一玩家
func (l *Lobby) CreateRoom(ctx context.Context, connID, sessionID, name, visibility string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	me, err := l.authLocked(connID, sessionID)
	if err != nil {
		return 0, err
	}
	if name == "" {
		name = me.Name + "'s room"
	}
	if visibility == "" {
		visibility = protocol.VisibilityPublic
	}

	r := &Room{
		ID:         l.nextRoomID,
		Name:       name,
		HostUserID: me.UserID,
		Visibility: visibility,
		Status:     protocol.RoomStatusIdle,
		Players:    []int{me.UserID},
	}

	_, err = l.store.Create(ctx, storage.CollectionRoom, storage.Document{
		"id":         r.ID,
		"name":       r.Name,
		"hostUserId": r.HostUserID,
		"visibility": r.Visibility,
		"status":     r.Status,
		"players":    r.Players,
		"createdAt":  now(),
	})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStore, err)
	}

	l.nextRoomID++
	l.rooms[r.ID] = r
	logger.Info("🏠 %s 创建了房间 %d (%s)", me.Name, r.ID, r.Visibility)
	return r.ID, nil
}

// JoinRoom 加入公开房间
func (l *Lobby) JoinRoom(ctx context.Context, connID, sessionID string, roomID int) ([]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	me, err := l.authLocked(connID, sessionID)
	if err != nil {
		return nil, err
	}
	r, err := l.roomLocked(roomID)
	if err != nil {
		return nil, err
	}
	if r.Visibility == protocol.VisibilityPrivate {
		return nil, apperrors.ErrRoomPrivate
	}
	if r.Full() {
		return nil, apperrors.ErrRoomFull
	}
	if r.Status == protocol.RoomStatusPlaying {
		return nil, apperrors.ErrRoomPlaying
	}

	return l.addPlayerLocked(ctx, r, me.UserID)
}

// addPlayerLocked 追加玩家并写回存储，写入失败时回滚
func (l *Lobby) addPlayerLocked(ctx context.Context, r *Room, userID int) ([]int, error) {
	prev := slices.Clone(r.Players)
	if !r.Has(userID) {
		r.Players = append(r.Players, userID)
	}

	if _, err := l.store.Update(ctx, storage.CollectionRoom,
		storage.Filter{"id": r.ID}, storage.Document{"players": r.Players}); err != nil {
		r.Players = prev
		return nil, apperrors.Wrap(apperrors.ErrStore, err)
	}
	return slices.Clone(r.Players), nil
}

// LeaveRoom 离开房间，房间空了或房主离开时解散，返回房间是否被删除
func (l *Lobby) LeaveRoom(ctx context.Context, connID, sessionID string, roomID int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	me, err := l.authLocked(connID, sessionID)
	if err != nil {
		return false, err
	}
	r, err := l.roomLocked(roomID)
	if err != nil {
		return false, err
	}

	r.remove(me.UserID)
	if len(r.Players) == 0 || r.HostUserID == me.UserID {
		l.dissolveLocked(ctx, r)
		return true, nil
	}
	l.persistPlayers(ctx, r)
	return false, nil
}
