package match

import (
	"github.com/palemoky/tetris-battle/internal/game/piece"
	"github.com/palemoky/tetris-battle/internal/protocol"
)

// 棋盘尺寸与出生点
const (
	BoardWidth  = 10
	BoardHeight = 20

	SpawnX = 3
	SpawnY = 0
)

// lineScores 一次消除 0-4 行的得分
var lineScores = [5]int{0, 100, 300, 500, 800}

// Active 正在下落的方块
type Active struct {
	Kind piece.Kind
	X, Y int
	Rot  int
}

// Cells 返回方块在棋盘上占据的 4 个格子
func (a Active) Cells() [4]piece.Cell {
	var cells [4]piece.Cell
	for i, c := range piece.ShapeOf(a.Kind, a.Rot) {
		cells[i] = piece.Cell{X: a.X + c.X, Y: a.Y + c.Y}
	}
	return cells
}

// Player 单个玩家的对局状态，只由对局循环修改
type Player struct {
	UserID int
	Role   string

	Board  [BoardWidth * BoardHeight]int
	Active *Active

	Hold       piece.Kind
	holdLocked bool

	Next  []piece.Kind
	depth int
	bag   *piece.Bag

	Score     int
	Lines     int
	Alive     bool
	Connected bool
}

// NewPlayer 创建玩家，填满预览队列并生成第一个方块
func NewPlayer(userID int, role string, seed uint64, depth int) *Player {
	p := &Player{
		UserID:    userID,
		Role:      role,
		Hold:      piece.None,
		Next:      make([]piece.Kind, 0, depth),
		depth:     depth,
		bag:       piece.NewBag(seed),
		Alive:     true,
		Connected: true,
	}
	p.spawnNext()
	return p
}

// Cell 返回 (x, y) 处的颜色码
func (p *Player) Cell(x, y int) int {
	return p.Board[y*BoardWidth+x]
}

// Fits 判断方块是否完全在棋盘内且不与已锁定格子重叠
func (p *Player) Fits(a Active) bool {
	for _, c := range a.Cells() {
		if c.X < 0 || c.X >= BoardWidth || c.Y < 0 || c.Y >= BoardHeight {
			return false
		}
		if p.Board[c.Y*BoardWidth+c.X] != 0 {
			return false
		}
	}
	return true
}

// Apply 执行一个操作，只影响本玩家棋盘，未知操作忽略
func (p *Player) Apply(action string) {
	if action == protocol.ActionDisconnect {
		p.Alive = false
		p.Connected = false
		p.Active = nil
		return
	}
	if !p.Alive || p.Active == nil {
		return
	}

	switch action {
	case protocol.ActionLeft:
		p.tryMove(-1, 0)
	case protocol.ActionRight:
		p.tryMove(1, 0)
	case protocol.ActionRotate, protocol.ActionCW:
		p.tryRotate()
	case protocol.ActionSoft:
		p.softDrop()
	case protocol.ActionHard:
		p.hardDrop()
	case protocol.ActionHold:
		p.hold()
	}
}

// Gravity 重力下落一格，落不下则锁定
func (p *Player) Gravity() {
	if !p.Alive {
		return
	}
	if p.Active == nil {
		p.spawnNext()
		return
	}
	if !p.tryMove(0, 1) {
		p.lock()
	}
}

func (p *Player) tryMove(dx, dy int) bool {
	next := *p.Active
	next.X += dx
	next.Y += dy
	if !p.Fits(next) {
		return false
	}
	*p.Active = next
	return true
}

func (p *Player) tryRotate() {
	next := *p.Active
	next.Rot = (next.Rot + 1) & 3
	if p.Fits(next) {
		*p.Active = next
	}
}

func (p *Player) softDrop() {
	if p.tryMove(0, 1) {
		p.Score++
		return
	}
	p.lock()
}

func (p *Player) hardDrop() {
	dist := 0
	for p.tryMove(0, 1) {
		dist++
	}
	p.Score += dist * 2
	p.lock()
}

// hold 与暂存区交换，每个方块只能暂存一次；暂存区为空时从预览队列取下一个
func (p *Player) hold() {
	if p.holdLocked {
		return
	}
	cur := p.Active.Kind
	if p.Hold == piece.None {
		p.Hold = cur
		p.spawnNext()
	} else {
		held := p.Hold
		p.Hold = cur
		p.spawn(held)
	}
	p.holdLocked = true
}

// lock 写入棋盘、消行计分并生成下一个方块
func (p *Player) lock() {
	color := p.Active.Kind.Color()
	for _, c := range p.Active.Cells() {
		p.Board[c.Y*BoardWidth+c.X] = color
	}
	p.Active = nil
	p.holdLocked = false

	cleared := p.clearLines()
	p.Lines += cleared
	p.Score += lineScores[cleared]

	p.spawnNext()
}

// clearLines 自上而下扫描满行，上方各行整体下移，顶行清零
func (p *Player) clearLines() int {
	cleared := 0
	for y := range BoardHeight {
		if !p.rowFull(y) {
			continue
		}
		cleared++
		copy(p.Board[BoardWidth:(y+1)*BoardWidth], p.Board[:y*BoardWidth])
		clear(p.Board[:BoardWidth])
	}
	return cleared
}

func (p *Player) rowFull(y int) bool {
	for _, v := range p.Board[y*BoardWidth : (y+1)*BoardWidth] {
		if v == 0 {
			return false
		}
	}
	return true
}

func (p *Player) refillQueue() {
	for len(p.Next) < p.depth {
		p.Next = append(p.Next, p.bag.Next())
	}
}

func (p *Player) spawnNext() {
	p.refillQueue()
	k := p.Next[0]
	p.Next = append(p.Next[:0], p.Next[1:]...)
	p.refillQueue()
	p.spawn(k)
}

// spawn 在出生点生成方块，与棋盘重叠即顶死
func (p *Player) spawn(k piece.Kind) {
	a := Active{Kind: k, X: SpawnX, Y: SpawnY}
	if !p.Fits(a) {
		p.Alive = false
		p.Active = nil
		return
	}
	p.Active = &a
}

// Snapshot 生成广播用快照
func (p *Player) Snapshot(tick, remainingMs int) protocol.SnapshotPayload {
	snap := protocol.SnapshotPayload{
		Tick:        tick,
		UserID:      p.UserID,
		Board:       append([]int(nil), p.Board[:]...),
		Next:        make([]string, len(p.Next)),
		Score:       p.Score,
		Lines:       p.Lines,
		Alive:       p.Alive,
		RemainingMs: remainingMs,
	}
	if p.Active != nil && p.Alive {
		snap.Active = &protocol.ActivePiece{
			Shape: p.Active.Kind.String(),
			X:     p.Active.X,
			Y:     p.Active.Y,
			Rot:   p.Active.Rot,
		}
	}
	if p.Hold != piece.None {
		h := p.Hold.String()
		snap.Hold = &h
	}
	for i, k := range p.Next {
		snap.Next[i] = k.String()
	}
	return snap
}
