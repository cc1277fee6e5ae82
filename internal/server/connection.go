package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/arl/statsviz"

	"github.com/palemoky/tetris-battle/internal/logger"
	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/transport"
)

// HTTPHandler 返回 HTTP 路由：/ws、/health 与 /debug/statsviz/
func (s *Server) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if err := statsviz.Register(mux); err != nil {
		logger.Warn("statsviz 注册失败: %v", err)
	}
	return mux
}

// handleWebSocket 升级为 WebSocket 后按与 TCP 相同的协议服务
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientIP := GetClientIP(r)

	if !s.rateLimiter.Allow(clientIP) {
		logger.Warn("🚫 IP %s 请求过于频繁", clientIP)
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	// 来源不合法时 Upgrade 自行回复 403
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket 升级失败: %v (IP: %s)", err, clientIP)
		return
	}

	conn := transport.NewWSConn(ws)
	if !s.registerConn(conn) {
		_ = conn.Close()
		return
	}
	s.serveConn(conn)
}

// healthStatus /health 响应
type healthStatus struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	Connections int    `json:"connections"`
	Sessions    int    `json:"sessions"`
	Rooms       int    `json:"rooms"`
	Playing     int    `json:"playing"`
}

// handleHealth 健康检查接口
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.lobby.Stats()
	status := healthStatus{
		Status:      "ok",
		Uptime:      time.Since(s.startTime).Truncate(time.Second).String(),
		Connections: s.GetOnlineCount(),
		Sessions:    stats.Sessions,
		Rooms:       stats.Rooms,
		Playing:     stats.Playing,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(status)
}

// serveConn 请求-响应循环：每收到一帧恰好回复一帧；协议违规或读写失败时关闭连接。
// 调用前必须已通过 registerConn 登记。
func (s *Server) serveConn(conn transport.Conn) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
		}
		s.unregisterConn(conn)
		s.messageLimiter.Remove(conn.ID())
		_ = conn.Close()
		// 服务器关闭时 baseCtx 已取消，清理仍需完成存储写入
		s.lobby.Disconnect(context.WithoutCancel(s.baseCtx), conn.ID())
		logger.Debug("❌ 连接 %s (%s) 已断开", conn.ID(), conn.RemoteAddr())
	}()

	logger.Debug("✅ 新连接 %s (%s)", conn.ID(), conn.RemoteAddr())

	for {
		body, err := conn.Receive()
		if err != nil {
			if !errors.Is(err, transport.ErrProtocolViolation) && !s.closing.Load() {
				logger.Debug("读取失败 %s: %v", conn.ID(), err)
			}
			return
		}

		msg, err := protocol.Decode(body)
		if err != nil {
			logger.Warn("⚠️ 连接 %s 发送了非法消息，关闭连接: %v", conn.ID(), err)
			return
		}

		var reply *protocol.Message
		if allowed, _ := s.messageLimiter.AllowMessage(conn.ID()); allowed {
			reply = s.handler.Handle(s.baseCtx, conn, msg)
		} else {
			reply = protocol.NewErrorMessage(protocol.ErrCodeRateLimit)
		}

		out, err := reply.Encode()
		if err != nil {
			logger.Error("编码响应失败: %v", err)
			return
		}
		if err := conn.Send(out); err != nil {
			logger.Debug("发送失败 %s: %v", conn.ID(), err)
			return
		}
	}
}
