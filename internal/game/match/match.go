package match

import (
	"github.com/palemoky/tetris-battle/internal/protocol"
)

// 结束原因
const (
	ReasonTimeUp   = "timeUp"
	ReasonBothDead = "bothDead"
)

// Match 一局两人对战，双方共用同一随机种子
type Match struct {
	Seed    uint64
	Players [2]*Player
}

// New 创建对局，p1/p2 在对局开始前确定且不再变化
func New(p1, p2 int, seed uint64, queueDepth int) *Match {
	return &Match{
		Seed: seed,
		Players: [2]*Player{
			NewPlayer(p1, protocol.RoleP1, seed, queueDepth),
			NewPlayer(p2, protocol.RoleP2, seed, queueDepth),
		},
	}
}

// Player 按用户 ID 查找玩家
func (m *Match) Player(userID int) *Player {
	for _, p := range m.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// Apply 把操作应用到对应玩家
func (m *Match) Apply(userID int, action string) {
	if p := m.Player(userID); p != nil {
		p.Apply(action)
	}
}

// Gravity 所有存活玩家下落一格
func (m *Match) Gravity() {
	for _, p := range m.Players {
		p.Gravity()
	}
}

// BothDead 双方都已出局
func (m *Match) BothDead() bool {
	return !m.Players[0].Alive && !m.Players[1].Alive
}

// Snapshots 返回双方快照，按 P1、P2 顺序
func (m *Match) Snapshots(tick, remainingMs int) [2]protocol.SnapshotPayload {
	return [2]protocol.SnapshotPayload{
		m.Players[0].Snapshot(tick, remainingMs),
		m.Players[1].Snapshot(tick, remainingMs),
	}
}

// Results 结算：消行多者胜，消行相同比分数，完全相同则无人获胜
func (m *Match) Results() []protocol.PlayerResult {
	a, b := m.Players[0], m.Players[1]

	aWin, bWin := false, false
	switch {
	case a.Lines != b.Lines:
		aWin = a.Lines > b.Lines
		bWin = !aWin
	case a.Score != b.Score:
		aWin = a.Score > b.Score
		bWin = !aWin
	}

	return []protocol.PlayerResult{
		{UserID: a.UserID, Score: a.Score, Lines: a.Lines, Win: aWin},
		{UserID: b.UserID, Score: b.Score, Lines: b.Lines, Win: bWin},
	}
}
