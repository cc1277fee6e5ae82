package lobby

import (
	"context"
	"slices"

	"github.com/palemoky/tetris-battle/internal/apperrors"
	"github.com/palemoky/tetris-battle/internal/protocol"
)

// Invite 房主邀请用户加入房间
func (l *Lobby) Invite(connID, sessionID string, roomID, targetUserID int) error {
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
	if r.HostUserID != me.UserID {
		return apperrors.ErrNotHostInvite
	}
	if r.Full() {
		return apperrors.ErrRoomFull
	}
	if r.Has(targetUserID) {
		return apperrors.ErrAlreadyInRoom
	}

	l.invites[targetUserID] = append(l.invites[targetUserID], Invite{
		RoomID:     r.ID,
		FromUserID: me.UserID,
		RoomName:   r.Name,
	})
	return nil
}

// ListInvites 返回当前用户的待处理邀请
func (l *Lobby) ListInvites(connID, sessionID string) ([]protocol.InviteInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	me, err := l.authLocked(connID, sessionID)
	if err != nil {
		return nil, err
	}

	pending := l.invites[me.UserID]
	out := make([]protocol.InviteInfo, 0, len(pending))
	for _, inv := range pending {
		out = append(out, protocol.InviteInfo{
			RoomID:     inv.RoomID,
			FromUserID: inv.FromUserID,
			RoomName:   inv.RoomName,
		})
	}
	return out, nil
}

// AcceptInvite 消耗一条邀请并加入房间，私有房间也可通过邀请加入
func (l *Lobby) AcceptInvite(ctx context.Context, connID, sessionID string, roomID int) ([]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	me, err := l.authLocked(connID, sessionID)
	if err != nil {
		return nil, err
	}

	pending := l.invites[me.UserID]
	if len(pending) == 0 {
		return nil, apperrors.ErrNoInvites
	}
	idx := slices.IndexFunc(pending, func(inv Invite) bool { return inv.RoomID == roomID })
	if idx < 0 {
		return nil, apperrors.ErrNoSuchInvite
	}

	r, ok := l.rooms[roomID]
	if !ok {
		l.consumeInviteLocked(me.UserID, idx)
		return nil, apperrors.ErrRoomGone
	}
	if r.Full() {
		l.consumeInviteLocked(me.UserID, idx)
		return nil, apperrors.ErrRoomFull
	}

	players, err := l.addPlayerLocked(ctx, r, me.UserID)
	if err != nil {
		return nil, err
	}
	l.consumeInviteLocked(me.UserID, idx)
	return players, nil
}

func (l *Lobby) consumeInviteLocked(userID, idx int) {
	pending := slices.Delete(l.invites[userID], idx, idx+1)
	if len(pending) == 0 {
		delete(l.invites, userID)
		return
	}
	l.invites[userID] = pending
}
