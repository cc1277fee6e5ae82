package lobby

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/palemoky/tetris-battle/internal/apperrors"
	"github.com/palemoky/tetris-battle/internal/lobby/launcher"
	"github.com/palemoky/tetris-battle/internal/logger"
	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/storage"
)

// Deps 大厅依赖
type Deps struct {
	Store    storage.Store
	Launcher launcher.Launcher
	Ports    *launcher.PortAllocator
	GameHost string

	// BcryptCost 密码哈希强度，0 表示 bcrypt.DefaultCost
	BcryptCost int
}

// Lobby 大厅状态：会话、房间、邀请与对局启动记录。
// 所有读写都在同一把锁下完成，包括其中的存储调用。
type Lobby struct {
	mu sync.Mutex

	store    storage.Store
	launcher launcher.Launcher
	ports    *launcher.PortAllocator
	gameHost string
	cost     int

	sessions     map[string]*Session // sessionId → 会话
	userSessions map[int]string      // userId → sessionId
	rooms        map[int]*Room
	nextRoomID   int
	invites      map[int][]Invite                   // 被邀请人 → 邀请
	launches     map[int]protocol.GameStartPayload // roomId → 启动信息
}

// New 创建大厅
func New(deps Deps) *Lobby {
	return &Lobby{
		store:        deps.Store,
		launcher:     deps.Launcher,
		ports:        deps.Ports,
		gameHost:     deps.GameHost,
		cost:         deps.BcryptCost,
		sessions:     make(map[string]*Session),
		userSessions: make(map[int]string),
		rooms:        make(map[int]*Room),
		nextRoomID:   1,
		invites:      make(map[int][]Invite),
		launches:     make(map[int]protocol.GameStartPayload),
	}
}

// Bootstrap 删除上次运行遗留的房间文档；房间只存在于内存中
func (l *Lobby) Bootstrap(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.store.Delete(ctx, storage.CollectionRoom, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStore, err)
	}
	if n > 0 {
		logger.Info("🧹 清理了 %d 个遗留房间", n)
	}
	return nil
}

// authLocked 校验会话存在且属于当前连接；调用方需持有锁
func (l *Lobby) authLocked(connID, sessionID string) (*Session, error) {
	s, ok := l.sessions[sessionID]
	if !ok || s.ConnID != connID {
		return nil, apperrors.ErrInvalidSession
	}
	return s, nil
}

// roomLocked 查找房间；调用方需持有锁
func (l *Lobby) roomLocked(roomID int) (*Room, error) {
	r, ok := l.rooms[roomID]
	if !ok {
		return nil, apperrors.ErrRoomNotFound
	}
	return r, nil
}

// departLocked 让用户离开所有房间：房间空了或离开的是房主时解散房间
func (l *Lobby) departLocked(ctx context.Context, userID int) {
	for _, id := range l.sortedRoomIDs() {
		r := l.rooms[id]
		changed := r.remove(userID)
		if len(r.Players) == 0 || r.HostUserID == userID {
			l.dissolveLocked(ctx, r)
			continue
		}
		if changed {
			l.persistPlayers(ctx, r)
		}
	}
}

// dissolveLocked 解散房间并删除对应文档
func (l *Lobby) dissolveLocked(ctx context.Context, r *Room) {
	delete(l.rooms, r.ID)
	delete(l.launches, r.ID)
	if _, err := l.store.Delete(ctx, storage.CollectionRoom, storage.Filter{"id": r.ID}); err != nil {
		logger.Warn("删除房间 %d 文档失败: %v", r.ID, err)
	}
	logger.Debug("房间 %d 已解散", r.ID)
}

// persistPlayers 尽力写回玩家列表，失败只记录日志
func (l *Lobby) persistPlayers(ctx context.Context, r *Room) {
	if _, err := l.store.Update(ctx, storage.CollectionRoom,
		storage.Filter{"id": r.ID}, storage.Document{"players": r.Players}); err != nil {
		logger.Warn("更新房间 %d 玩家失败: %v", r.ID, err)
	}
}

func (l *Lobby) sortedRoomIDs() []int {
	ids := make([]int, 0, len(l.rooms))
	for id := range l.rooms {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Disconnect 连接断开时清理绑定在该连接上的会话及其房间
func (l *Lobby) Disconnect(ctx context.Context, connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, s := range l.sessions {
		if s.ConnID != connID {
			continue
		}
		delete(l.sessions, id)
		delete(l.userSessions, s.UserID)
		l.departLocked(ctx, s.UserID)
		logger.Info("👋 用户 %s (%d) 断开连接，会话已清理", s.Name, s.UserID)
	}
}

// Stats 大厅计数，用于监控
type Stats struct {
	Sessions int
	Rooms    int
	Playing  int
	Invites  int
}

// Stats 返回当前计数
func (l *Lobby) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Stats{Sessions: len(l.sessions), Rooms: len(l.rooms)}
	for _, r := range l.rooms {
		if r.Status == protocol.RoomStatusPlaying {
			st.Playing++
		}
	}
	for _, inv := range l.invites {
		st.Invites += len(inv)
	}
	return st
}

func now() int64 {
	return time.Now().Unix()
}
