package match

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/tetris-battle/internal/game/piece"
	"github.com/palemoky/tetris-battle/internal/protocol"
)

func newTestPlayer(t *testing.T) *Player {
	t.Helper()
	p := NewPlayer(1, protocol.RoleP1, 99, 5)
	require.True(t, p.Alive)
	require.NotNil(t, p.Active)
	return p
}

func fillRow(p *Player, y int, skip ...int) {
	for x := range BoardWidth {
		p.Board[y*BoardWidth+x] = piece.O.Color()
	}
	for _, x := range skip {
		p.Board[y*BoardWidth+x] = 0
	}
}

func TestNewPlayer_SpawnsAndFillsQueue(t *testing.T) {
	p := newTestPlayer(t)

	assert.Equal(t, SpawnX, p.Active.X)
	assert.Equal(t, SpawnY, p.Active.Y)
	assert.Equal(t, 0, p.Active.Rot)
	assert.Len(t, p.Next, 5)
	assert.Equal(t, piece.None, p.Hold)
	assert.True(t, p.Connected)
}

func TestLineClear_ScoresAndShifts(t *testing.T) {
	for k := 1; k <= 4; k++ {
		p := newTestPlayer(t)
		for y := BoardHeight - k; y < BoardHeight; y++ {
			fillRow(p, y, 0)
		}
		marker := BoardHeight - k - 1
		p.Board[marker*BoardWidth+5] = 9 // row above the cleared block

		// vertical I occupies column 0
		p.Active = &Active{Kind: piece.I, X: -2, Y: 0, Rot: 1}
		require.True(t, p.Fits(*p.Active))

		p.Apply(protocol.ActionHard)

		assert.Equal(t, k, p.Lines, "k=%d", k)
		assert.Equal(t, 16*2+lineScores[k], p.Score, "k=%d", k)
		for x := range BoardWidth {
			assert.Zero(t, p.Cell(x, 0), "top row must be empty, k=%d", k)
		}
		assert.Equal(t, 9, p.Cell(5, marker+k), "marker shifted down by %d", k)
		// the 4-k cells of the I above the cleared rows fall by k
		for y := 16 + k; y < BoardHeight; y++ {
			assert.Equal(t, piece.I.Color(), p.Cell(0, y), "I remnant at row %d, k=%d", y, k)
		}
	}
}

func TestLock_NoClearNoScore(t *testing.T) {
	p := newTestPlayer(t)
	p.Active = &Active{Kind: piece.O, X: 3, Y: 18}

	p.Apply(protocol.ActionSoft)

	assert.Equal(t, 0, p.Lines)
	assert.Equal(t, 0, p.Score)
	assert.Equal(t, piece.O.Color(), p.Cell(4, 18))
	assert.Equal(t, piece.O.Color(), p.Cell(5, 19))
	require.NotNil(t, p.Active, "next piece spawned")
}

func TestSoftDrop_AwardsOnePoint(t *testing.T) {
	p := newTestPlayer(t)
	y := p.Active.Y

	p.Apply(protocol.ActionSoft)

	assert.Equal(t, y+1, p.Active.Y)
	assert.Equal(t, 1, p.Score)
}

func TestMoves_BlockedAtWalls(t *testing.T) {
	p := newTestPlayer(t)
	p.Active = &Active{Kind: piece.O, X: 3, Y: 0}

	for range 10 {
		p.Apply(protocol.ActionLeft)
	}
	assert.Equal(t, -1, p.Active.X, "O occupies columns x+1..x+2")

	for range 20 {
		p.Apply(protocol.ActionRight)
	}
	assert.Equal(t, BoardWidth-3, p.Active.X)
}

func TestRotate_RejectedWhenBlocked(t *testing.T) {
	p := newTestPlayer(t)
	p.Active = &Active{Kind: piece.I, X: 3, Y: 0}
	// rotation 1 puts cells in column 5, rows 0..3
	p.Board[2*BoardWidth+5] = 1

	p.Apply(protocol.ActionRotate)
	assert.Equal(t, 0, p.Active.Rot)

	p.Board[2*BoardWidth+5] = 0
	p.Apply(protocol.ActionCW)
	assert.Equal(t, 1, p.Active.Rot)
}

func TestHold_OncePerPiece(t *testing.T) {
	p := newTestPlayer(t)
	first := p.Active.Kind
	upcoming := p.Next[0]

	p.Apply(protocol.ActionHold)
	assert.Equal(t, first, p.Hold)
	assert.Equal(t, upcoming, p.Active.Kind, "empty hold draws from the queue")
	assert.Len(t, p.Next, 5)

	second := p.Active.Kind
	p.Apply(protocol.ActionHold)
	assert.Equal(t, first, p.Hold, "second hold on same piece ignored")
	assert.Equal(t, second, p.Active.Kind)

	p.Apply(protocol.ActionHard)
	third := p.Active.Kind

	p.Apply(protocol.ActionHold)
	assert.Equal(t, third, p.Hold)
	assert.Equal(t, first, p.Active.Kind, "swap brings back the held piece")
	assert.Equal(t, SpawnX, p.Active.X)
	assert.Equal(t, SpawnY, p.Active.Y)
}

func TestTopOut(t *testing.T) {
	p := newTestPlayer(t)
	for y := range 4 {
		fillRow(p, y, 9)
	}
	p.Active = &Active{Kind: piece.O, X: 3, Y: 10}

	p.Apply(protocol.ActionHard)

	assert.False(t, p.Alive)
	assert.Nil(t, p.Active)

	// dead players ignore further input
	score := p.Score
	p.Apply(protocol.ActionHard)
	p.Gravity()
	assert.Equal(t, score, p.Score)
}

func TestDisconnect(t *testing.T) {
	p := newTestPlayer(t)
	p.Apply(protocol.ActionDisconnect)

	assert.False(t, p.Alive)
	assert.False(t, p.Connected)
	assert.Nil(t, p.Active)
}

func TestUnknownActionIgnored(t *testing.T) {
	p := newTestPlayer(t)
	before := *p.Active
	p.Apply("JUMP")
	assert.Equal(t, before, *p.Active)
}

func TestGravity_LocksWhenBlocked(t *testing.T) {
	p := newTestPlayer(t)
	p.Active = &Active{Kind: piece.O, X: 3, Y: 17}

	p.Gravity()
	assert.Equal(t, 18, p.Active.Y)

	p.Gravity()
	assert.Equal(t, piece.O.Color(), p.Cell(4, 19))
	assert.Equal(t, SpawnY, p.Active.Y)
	assert.Equal(t, 0, p.Score, "gravity awards no points")
}

func TestCollisionInvariant_RandomPlay(t *testing.T) {
	actions := []string{
		protocol.ActionLeft, protocol.ActionRight, protocol.ActionRotate,
		protocol.ActionSoft, protocol.ActionHard, protocol.ActionHold,
	}
	rng := rand.New(rand.NewPCG(1, 2))

	for seed := range uint64(20) {
		p := NewPlayer(1, protocol.RoleP1, seed, 5)
		for step := 0; step < 2000 && p.Alive; step++ {
			if step%7 == 0 {
				p.Gravity()
			} else {
				p.Apply(actions[rng.IntN(len(actions))])
			}
			if p.Active != nil {
				require.True(t, p.Fits(*p.Active), "seed %d step %d", seed, step)
			}
			for _, v := range p.Board {
				require.True(t, v >= 0 && v <= piece.NumKinds)
			}
		}
	}
}

func TestSnapshot(t *testing.T) {
	p := newTestPlayer(t)
	p.Apply(protocol.ActionHold)
	snap := p.Snapshot(12, 5000)

	assert.Equal(t, 12, snap.Tick)
	assert.Equal(t, 1, snap.UserID)
	assert.Len(t, snap.Board, BoardWidth*BoardHeight)
	require.NotNil(t, snap.Active)
	assert.Equal(t, p.Active.Kind.String(), snap.Active.Shape)
	require.NotNil(t, snap.Hold)
	assert.Equal(t, p.Hold.String(), *snap.Hold)
	assert.Len(t, snap.Next, 5)
	assert.True(t, snap.Alive)
	assert.Equal(t, 5000, snap.RemainingMs)

	p.Apply(protocol.ActionDisconnect)
	snap = p.Snapshot(13, 0)
	assert.Nil(t, snap.Active)
	assert.False(t, snap.Alive)
}
