// Package gameserver 单局对战服务器：每局一个进程，等待两名玩家握手后运行权威模拟
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/palemoky/tetris-battle/internal/config"
	"github.com/palemoky/tetris-battle/internal/game/match"
	"github.com/palemoky/tetris-battle/internal/logger"
	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/transport"
)

// State 对局状态
type State int32

const (
	StateWaiting State = iota
	StateRunning
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING_FOR_PLAYERS"
	case StateRunning:
		return "RUNNING"
	case StateFinished:
		return "FINISHED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var (
	// ErrJoinTimeout 超时前未凑齐两名玩家
	ErrJoinTimeout = errors.New("players did not join in time")
	// ErrStopped 对局被外部停止
	ErrStopped = errors.New("game server stopped")
)

// Options 启动参数，由大厅通过命令行传入
type Options struct {
	Host   string
	Port   int
	RoomID int
	Token  string
	P1     int
	P2     int
}

// Validate 检查启动参数，任何一项缺失或非法都拒绝启动
func (o Options) Validate() error {
	switch {
	case o.Port <= 0 || o.Port > 65535:
		return fmt.Errorf("invalid --port %d", o.Port)
	case o.RoomID <= 0:
		return fmt.Errorf("invalid --roomId %d", o.RoomID)
	case o.Token == "":
		return errors.New("missing --token")
	case o.P1 <= 0:
		return fmt.Errorf("invalid --p1 %d", o.P1)
	case o.P2 <= 0:
		return fmt.Errorf("invalid --p2 %d", o.P2)
	case o.P1 == o.P2:
		return fmt.Errorf("--p1 and --p2 must differ (%d)", o.P1)
	}
	return nil
}

// authorized 用户是否为本局玩家
func (o Options) authorized(userID int) bool {
	return userID == o.P1 || userID == o.P2
}

// Server 一局对战
type Server struct {
	opts Options
	cfg  config.GameConfig
	log  *log.Logger

	listener net.Listener
	state    atomic.Int32
	stopped  atomic.Bool

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	// 握手阶段状态
	mu        sync.Mutex
	seats     []*seat
	pending   map[*transport.TCPConn]struct{}
	accepting bool
	seated    chan struct{}

	seed  uint64
	match *match.Match
}

// New 创建对局服务器，seed 为 0 时随机生成
func New(opts Options, cfg config.GameConfig, seed uint64) *Server {
	if seed == 0 {
		seed = NewSeed()
	}
	return &Server{
		opts:      opts,
		cfg:       cfg,
		log:       logger.With("room", opts.RoomID),
		pending:   make(map[*transport.TCPConn]struct{}),
		accepting: true,
		seated:    make(chan struct{}),
		seed:      seed,
	}
}

// NewSeed 生成非零随机种子；限制在 53 位以内，JSON 客户端可无损解析
func NewSeed() uint64 {
	for {
		if s := rand.Uint64() >> 11; s != 0 {
			return s
		}
	}
}

// Listen 绑定监听端口
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.opts.Host, fmt.Sprint(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.log.Infof("🎮 对局服务器监听 %s，等待玩家 %d 与 %d", ln.Addr(), s.opts.P1, s.opts.P2)
	return nil
}

// Addr 返回监听地址
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// State 返回当前状态
func (s *Server) State() State {
	return State(s.state.Load())
}

// Seed 返回本局种子
func (s *Server) Seed() uint64 {
	return s.seed
}

// Stop 停止对局，可从任意 goroutine 调用
func (s *Server) Stop() {
	s.stopped.Store(true)
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Run 等待玩家、运行对局直到结束，返回结算结果。须先调用 Listen。
func (s *Server) Run(ctx context.Context) (*protocol.GameOverPayload, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()
	if s.stopped.Load() {
		_ = s.listener.Close()
		return nil, ErrStopped
	}

	defer s.closeAll()

	if err := s.waitForPlayers(ctx); err != nil {
		return nil, err
	}

	s.match = match.New(s.seats[0].userID, s.seats[1].userID, s.seed, s.cfg.QueueDepth)
	s.state.Store(int32(StateRunning))
	s.log.Infof("▶️ 对局开始: P1=%d P2=%d seed=%d", s.seats[0].userID, s.seats[1].userID, s.seed)

	s.sendWelcome()
	for _, st := range s.seats {
		go s.readInputs(st)
	}

	over := s.loop(ctx)
	s.state.Store(int32(StateFinished))
	if over == nil {
		s.log.Warn("⏹️ 对局被中止")
		return nil, ErrStopped
	}
	s.log.Infof("🏁 对局结束: %s %+v", over.Reason, over.Results)
	return over, nil
}

// closeAll 关闭监听与所有连接
func (s *Server) closeAll() {
	_ = s.listener.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepting = false
	for conn := range s.pending {
		_ = conn.Close()
	}
	for _, st := range s.seats {
		_ = st.conn.Close()
	}
}
