package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/palemoky/tetris-battle/internal/config"
	"github.com/palemoky/tetris-battle/internal/lobby"
	"github.com/palemoky/tetris-battle/internal/logger"
	"github.com/palemoky/tetris-battle/internal/server/handler"
	"github.com/palemoky/tetris-battle/internal/transport"
)

// Server 大厅网络服务器：帧协议 TCP 监听，外加可选的 HTTP 监听（/ws、/health、/debug/statsviz）
type Server struct {
	config  *config.LobbyConfig
	lobby   *lobby.Lobby
	handler *handler.Handler

	// 安全组件
	rateLimiter    *RateLimiter
	messageLimiter *MessageRateLimiter
	originChecker  *OriginChecker
	upgrader       websocket.Upgrader

	conns   map[string]transport.Conn
	connsMu sync.RWMutex

	listener   net.Listener
	httpServer *http.Server
	baseCtx    context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closing    atomic.Bool
	startTime  time.Time
}

// NewServer 创建服务器实例
func NewServer(cfg *config.LobbyConfig, l *lobby.Lobby) *Server {
	s := &Server{
		config:  cfg,
		lobby:   l,
		handler: handler.NewHandler(l),
		rateLimiter: NewRateLimiter(
			cfg.MaxConnPerSecond,
			cfg.MaxConnPerMinute,
			cfg.BanDuration(),
		),
		messageLimiter: NewMessageRateLimiter(cfg.MaxMsgPerSecond),
		originChecker:  NewOriginChecker(cfg.AllowedOrigins),
		conns:          make(map[string]transport.Conn),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originChecker.Check,
	}

	logger.Info("🔒 安全配置: 连接限制=%d/s, %d/min, 消息限制=%d/s",
		cfg.MaxConnPerSecond, cfg.MaxConnPerMinute, cfg.MaxMsgPerSecond)
	return s
}

// Start 绑定监听端口并在后台开始服务，绑定失败时直接返回错误
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s.listener = ln
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.startTime = time.Now()

	if s.config.HTTPPort > 0 {
		httpAddr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.HTTPPort))
		httpLn, err := net.Listen("tcp", httpAddr)
		if err != nil {
			_ = ln.Close()
			s.cancel()
			return fmt.Errorf("listen %s: %w", httpAddr, err)
		}
		s.httpServer = &http.Server{
			Handler:           s.HTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP 服务异常退出: %v", err)
			}
		}()
		logger.Info("🌐 WebSocket: ws://%s/ws", httpAddr)
		logger.Info("启动监控..., URL: http://localhost:%d/debug/statsviz/", s.config.HTTPPort)
	}

	s.wg.Add(1)
	go s.acceptLoop()
	go s.monitorStats(s.baseCtx)

	logger.Info("🚀 大厅服务器启动在 %s (CPU核心数: %d)", ln.Addr(), runtime.NumCPU())
	return nil
}

// Addr 返回 TCP 监听地址
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// acceptLoop 接受 TCP 连接，每个连接一个 goroutine
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	var backoff time.Duration
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			// 临时错误（如文件描述符耗尽）退避后重试
			backoff = min(max(backoff*2, 5*time.Millisecond), time.Second)
			logger.Warn("accept 失败: %v，%v 后重试", err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		ip := hostOf(nc.RemoteAddr().String())
		if !s.rateLimiter.Allow(ip) {
			logger.Warn("🚫 IP %s 建连过于频繁，拒绝", ip)
			_ = nc.Close()
			continue
		}

		conn := transport.NewTCPConn(nc)
		if !s.registerConn(conn) {
			_ = conn.Close()
			return
		}
		go s.serveConn(conn)
	}
}

// GetOnlineCount 当前连接数
func (s *Server) GetOnlineCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// registerConn 登记连接并计入等待组，服务器关闭后返回 false
func (s *Server) registerConn(conn transport.Conn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.conns[conn.ID()] = conn
	s.wg.Add(1)
	return true
}

func (s *Server) unregisterConn(conn transport.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn.ID())
}

// Shutdown 停止接受新连接，关闭所有连接并等待连接协程退出
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}

	_ = s.listener.Close()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			logger.Warn("HTTP 服务关闭失败: %v", err)
		}
	}

	s.connsMu.Lock()
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.connsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.cancel()
	s.rateLimiter.Stop()
	logger.Info("服务器已关闭")
	return err
}
