package lobby

import (
	"slices"

	"github.com/palemoky/tetris-battle/internal/protocol"
)

// Session 登录会话，绑定到发起登录的连接
type Session struct {
	ID     string
	UserID int
	Name   string
	ConnID string
}

// Room 大厅房间，最多两名玩家
type Room struct {
	ID         int
	Name       string
	HostUserID int
	Visibility string
	Status     string
	Players    []int
}

// Has 判断用户是否在房间中
func (r *Room) Has(userID int) bool {
	return slices.Contains(r.Players, userID)
}

// Full 房间是否已满
func (r *Room) Full() bool {
	return len(r.Players) >= maxPlayers
}

// remove 移除玩家，返回是否有变化
func (r *Room) remove(userID int) bool {
	i := slices.Index(r.Players, userID)
	if i < 0 {
		return false
	}
	r.Players = slices.Delete(r.Players, i, i+1)
	return true
}

// Info 转换为协议结构
func (r *Room) Info() protocol.RoomInfo {
	return protocol.RoomInfo{
		ID:         r.ID,
		Name:       r.Name,
		HostUserID: r.HostUserID,
		Visibility: r.Visibility,
		Status:     r.Status,
		Players:    slices.Clone(r.Players),
	}
}

// Invite 待处理的邀请，按被邀请人存放
type Invite struct {
	RoomID     int
	FromUserID int
	RoomName   string
}

const maxPlayers = 2
