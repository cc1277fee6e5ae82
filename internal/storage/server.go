package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"

	"github.com/palemoky/tetris-battle/internal/logger"
	"github.com/palemoky/tetris-battle/internal/transport"
)

// Server 用帧协议对外提供任意 Store
type Server struct {
	store Store

	mu       sync.Mutex
	listener net.Listener
	conns    map[*transport.TCPConn]struct{}
	wg       sync.WaitGroup
}

// NewServer 创建文档存储服务
func NewServer(store Store) *Server {
	return &Server{
		store: store,
		conns: make(map[*transport.TCPConn]struct{}),
	}
}

// Serve 在 l 上接受连接直到 l 关闭
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	logger.Info("docstore listening on %s", l.Addr())
	for {
		nc, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Error("docstore accept error: %v", err)
			continue
		}

		conn := transport.NewTCPConn(nc)
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Go(func() {
			s.handleConn(conn)
		})
	}
}

func (s *Server) handleConn(conn *transport.TCPConn) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
		}
		_ = conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	for {
		body, err := conn.Receive()
		if err != nil {
			logger.Debug("docstore client %s closed: %v", conn.RemoteAddr(), err)
			return
		}

		var req Request
		resp := errorResponse("invalid request")
		if err := json.Unmarshal(body, &req); err == nil {
			resp = s.Handle(context.Background(), &req)
		}

		out, err := json.Marshal(resp)
		if err != nil {
			logger.Error("docstore encode response: %v", err)
			return
		}
		if err := conn.Send(out); err != nil {
			return
		}
	}
}

// Handle 执行单个请求
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	if req.Collection == "" || req.Action == "" {
		return errorResponse("missing collection or action")
	}

	var filter Filter
	if len(req.Filter) > 0 && string(req.Filter) != "null" {
		if err := json.Unmarshal(req.Filter, &filter); err != nil {
			return errorResponse("filter must be object")
		}
	}

	var data Document
	if req.Action == ActionCreate || req.Action == ActionUpdate {
		if err := json.Unmarshal(req.Data, &data); err != nil || data == nil {
			return errorResponse("data must be object")
		}
	}

	switch req.Action {
	case ActionCreate:
		doc, err := s.store.Create(ctx, req.Collection, data)
		if err != nil {
			return errorResponse(err.Error())
		}
		return &Response{Status: statusOK, Data: doc}

	case ActionRead:
		doc, err := s.store.Read(ctx, req.Collection, filter)
		if err != nil {
			return errorResponse(err.Error())
		}
		return &Response{Status: statusOK, Data: doc}

	case ActionQuery:
		docs, err := s.store.Query(ctx, req.Collection, filter)
		if err != nil {
			return errorResponse(err.Error())
		}
		if docs == nil {
			docs = []Document{}
		}
		return &Response{Status: statusOK, Items: docs}

	case ActionUpdate:
		n, err := s.store.Update(ctx, req.Collection, filter, data)
		if err != nil {
			return errorResponse(err.Error())
		}
		return &Response{Status: statusOK, Updated: &n}

	case ActionDelete:
		n, err := s.store.Delete(ctx, req.Collection, filter)
		if err != nil {
			return errorResponse(err.Error())
		}
		return &Response{Status: statusOK, Deleted: &n}

	case ActionReset:
		if err := s.store.Reset(ctx); err != nil {
			return errorResponse(err.Error())
		}
		return &Response{Status: statusOK, Message: "all cleared"}

	default:
		return errorResponse("unknown action")
	}
}

// Close 停止接受连接并断开所有客户端
func (s *Server) Close() error {
	s.mu.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}
