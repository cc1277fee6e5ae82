package lobby

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/palemoky/tetris-battle/internal/apperrors"
	"github.com/palemoky/tetris-battle/internal/logger"
	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/storage"
)

func (l *Lobby) hashCost() int {
	if l.cost == 0 {
		return bcrypt.DefaultCost
	}
	return l.cost
}

// Register 注册用户，返回新用户 id
func (l *Lobby) Register(ctx context.Context, name, email, password string) (int, error) {
	if name == "" || password == "" {
		return 0, apperrors.ErrMissingCredentials
	}

	// 哈希计算较慢，放在锁外
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.hashCost())
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStore, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.store.Read(ctx, storage.CollectionUser, storage.Filter{"name": name})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStore, err)
	}
	if existing != nil {
		return 0, apperrors.ErrNameTaken
	}

	doc, err := l.store.Create(ctx, storage.CollectionUser, storage.Document{
		"name":         name,
		"email":        email,
		"passwordHash": string(hash),
		"createdAt":    now(),
		"lastLoginAt":  nil,
	})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStore, err)
	}

	id, _ := doc.ID()
	logger.Info("📝 新用户注册: %s (%d)", name, id)
	return id, nil
}

// Login 校验密码并创建绑定到 connID 的会话
func (l *Lobby) Login(ctx context.Context, connID, name, password string) (*Session, error) {
	if name == "" || password == "" {
		return nil, apperrors.ErrMissingCredentials
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	user, err := l.store.Read(ctx, storage.CollectionUser, storage.Filter{"name": name})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNoSuchUser, err)
	}
	if user == nil {
		return nil, apperrors.ErrNoSuchUser
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.String("passwordHash")), []byte(password))
	if err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			logger.Warn("用户 %s 的密码哈希无法解析: %v", name, err)
		}
		return nil, apperrors.ErrWrongPassword
	}

	userID, ok := user.ID()
	if !ok {
		return nil, apperrors.ErrNoSuchUser
	}
	if _, live := l.userSessions[userID]; live {
		return nil, apperrors.ErrAlreadyLoggedIn
	}

	if _, err := l.store.Update(ctx, storage.CollectionUser,
		storage.Filter{"id": userID}, storage.Document{"lastLoginAt": now()}); err != nil {
		logger.Warn("更新用户 %d 登录时间失败: %v", userID, err)
	}

	s := &Session{
		ID:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		UserID: userID,
		Name:   name,
		ConnID: connID,
	}
	l.sessions[s.ID] = s
	l.userSessions[userID] = s.ID

	logger.Info("🔑 用户 %s (%d) 登录", name, userID)
	return s, nil
}

// Logout 注销会话并离开所有房间；会话不存在也视为成功
func (l *Lobby) Logout(ctx context.Context, connID, sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sessions[sessionID]
	if !ok || s.ConnID != connID {
		return
	}
	delete(l.sessions, sessionID)
	delete(l.userSessions, s.UserID)
	l.departLocked(ctx, s.UserID)
	logger.Info("用户 %s (%d) 注销", s.Name, s.UserID)
}

// ListUsers 返回在线用户，按 id 升序
func (l *Lobby) ListUsers(connID, sessionID string) ([]protocol.UserInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.authLocked(connID, sessionID); err != nil {
		return nil, err
	}

	users := make([]protocol.UserInfo, 0, len(l.sessions))
	for _, s := range l.sessions {
		users = append(users, protocol.UserInfo{UserID: s.UserID, Name: s.Name})
	}
	slices.SortFunc(users, func(a, b protocol.UserInfo) int { return a.UserID - b.UserID })
	return users, nil
}
