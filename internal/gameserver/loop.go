package gameserver

import (
	"context"
	"sync"
	"time"

	"github.com/palemoky/tetris-battle/internal/game/match"
	"github.com/palemoky/tetris-battle/internal/protocol"
)

// intentQueue 输入 goroutine 写入、模拟循环读取的操作队列，与对局状态分开加锁
type intentQueue struct {
	mu    sync.Mutex
	items []string
}

func (q *intentQueue) push(action string) {
	q.mu.Lock()
	q.items = append(q.items, action)
	q.mu.Unlock()
}

// drain 取出全部待处理操作
func (q *intentQueue) drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// sendWelcome 向双方发送开局参数
func (s *Server) sendWelcome() {
	for _, st := range s.seats {
		msg := protocol.MustNewMessage(protocol.MsgWelcome, protocol.WelcomePayload{
			Role:    st.role,
			Seed:    s.seed,
			BagRule: "7bag",
			GravityPlan: protocol.GravityPlan{
				Mode:   "fixed",
				DropMs: s.cfg.DropMs,
			},
			BoardWidth:  match.BoardWidth,
			BoardHeight: match.BoardHeight,
		})
		if err := st.conn.Send(msg.Payload); err != nil {
			s.log.Warnf("发送 WELCOME 给 %d 失败: %v", st.userID, err)
			st.queue.push(protocol.ActionDisconnect)
		}
	}
}

// readInputs 读取玩家操作放入队列；读取失败视为断线
func (s *Server) readInputs(st *seat) {
	for {
		body, err := st.conn.Receive()
		if err != nil {
			st.queue.push(protocol.ActionDisconnect)
			if s.State() == StateRunning {
				s.log.Infof("🔌 玩家 %d 断开: %v", st.userID, err)
			}
			return
		}

		msg, err := protocol.Decode(body)
		if err != nil || msg.Type != protocol.MsgInput {
			continue
		}
		input, err := protocol.ParsePayload[protocol.InputPayload](msg)
		if err != nil {
			continue
		}
		st.queue.push(input.Action)
	}
}

// loop 模拟循环：输入轮询、重力、快照广播与对局时长各自独立计时。
// 被停止时返回 nil。
func (s *Server) loop(ctx context.Context) *protocol.GameOverPayload {
	poll := time.NewTicker(s.cfg.PollInterval())
	defer poll.Stop()
	gravity := time.NewTicker(s.cfg.DropInterval())
	defer gravity.Stop()
	snapshot := time.NewTicker(s.cfg.SnapshotInterval())
	defer snapshot.Stop()
	duration := s.cfg.MatchDuration()
	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	start := time.Now()
	remaining := func() int {
		return int(max(duration-time.Since(start), 0).Milliseconds())
	}

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			return s.finish(match.ReasonTimeUp, tick, 0)
		case <-poll.C:
			tick++
			for _, st := range s.seats {
				for _, action := range st.queue.drain() {
					s.match.Apply(st.userID, action)
				}
			}
		case <-gravity.C:
			s.match.Gravity()
		case <-snapshot.C:
			s.broadcast(tick, remaining())
		}

		if s.stopped.Load() {
			return nil
		}
		if s.match.BothDead() {
			return s.finish(match.ReasonBothDead, tick, remaining())
		}
	}
}

// broadcast 把双方快照依次发给双方
func (s *Server) broadcast(tick, remainingMs int) {
	snaps := s.match.Snapshots(tick, remainingMs)

	var frames [2][]byte
	for i, snap := range snaps {
		msg, err := protocol.NewMessage(protocol.MsgSnapshot, snap)
		if err != nil {
			s.log.Errorf("编码快照失败: %v", err)
			return
		}
		frames[i] = msg.Payload
	}
	s.sendAll(frames[:]...)
}

// finish 发送最后一组快照与结算
func (s *Server) finish(reason string, tick, remainingMs int) *protocol.GameOverPayload {
	s.broadcast(tick, remainingMs)

	over := &protocol.GameOverPayload{
		Reason:  reason,
		Results: s.match.Results(),
	}
	s.sendAll(protocol.MustNewMessage(protocol.MsgGameOver, over).Payload)
	return over
}

// sendAll 向每个仍连接的玩家发送帧；发送失败由输入 goroutine 发现断线
func (s *Server) sendAll(frames ...[]byte) {
	for _, st := range s.seats {
		if p := s.match.Player(st.userID); p != nil && !p.Connected {
			continue
		}
		for _, frame := range frames {
			if err := st.conn.Send(frame); err != nil {
				break
			}
		}
	}
}
