package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/palemoky/tetris-battle/internal/config"
	"github.com/palemoky/tetris-battle/internal/gameserver"
	"github.com/palemoky/tetris-battle/internal/lobby"
	"github.com/palemoky/tetris-battle/internal/lobby/launcher"
	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/server"
	"github.com/palemoky/tetris-battle/internal/storage"
)

// inProcessLauncher 在测试进程内运行对局服务器
type inProcessLauncher struct {
	cfg config.GameConfig

	mu      sync.Mutex
	servers []*gameserver.Server
	results chan *protocol.GameOverPayload
}

func (l *inProcessLauncher) Launch(_ context.Context, spec launcher.Spec) error {
	srv := gameserver.New(gameserver.Options{
		Host:   "127.0.0.1",
		Port:   spec.Port,
		RoomID: spec.RoomID,
		Token:  spec.Token,
		P1:     spec.P1,
		P2:     spec.P2,
	}, l.cfg, 0)
	if err := srv.Listen(); err != nil {
		return err
	}
	l.mu.Lock()
	l.servers = append(l.servers, srv)
	l.mu.Unlock()

	go func() {
		over, _ := srv.Run(context.Background())
		l.results <- over
	}()
	return nil
}

func (l *inProcessLauncher) stopAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, srv := range l.servers {
		srv.Stop()
	}
}

func startLobby(t *testing.T) (string, *inProcessLauncher) {
	t.Helper()

	game := config.Default().Game
	game.DropMs = 50
	game.SnapshotMs = 30
	game.PollMs = 5
	game.DurationSec = 1
	game.JoinTimeout = 5
	gl := &inProcessLauncher{cfg: game, results: make(chan *protocol.GameOverPayload, 4)}
	t.Cleanup(gl.stopAll)

	store, err := storage.NewMemoryStore("")
	require.NoError(t, err)
	l := lobby.New(lobby.Deps{
		Store:      store,
		Launcher:   gl,
		Ports:      launcher.NewPortAllocator("127.0.0.1", 44000, 44200),
		GameHost:   "127.0.0.1",
		BcryptCost: bcrypt.MinCost,
	})

	cfg := config.Default().Lobby
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.HTTPPort = 0
	s := server.NewServer(&cfg, l)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s.Addr().String(), gl
}

func login(t *testing.T, addr, name string) *LobbyClient {
	t.Helper()
	c, err := DialLobby(addr, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	userID, err := c.Register(name, name+"@example.com", "pw-"+name)
	require.NoError(t, err)
	require.NoError(t, c.Login(name, "pw-"+name))
	assert.Equal(t, userID, c.UserID)
	assert.Equal(t, name, c.Name)
	assert.NotEmpty(t, c.SessionID)
	return c
}

func TestLobbyClient_Errors(t *testing.T) {
	addr, _ := startLobby(t)
	c, err := DialLobby(addr, time.Second)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.ListRooms()
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = c.Register("alice", "", "pw")
	require.NoError(t, err)
	_, err = c.Register("alice", "", "pw")
	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, protocol.MsgRegisterFail, serr.Type)
	assert.Equal(t, "name taken", serr.Reason)

	err = c.Login("alice", "wrong")
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, protocol.MsgLoginFail, serr.Type)

	require.NoError(t, c.Login("alice", "pw"))
	_, err = c.JoinRoom(999)
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, protocol.MsgError, serr.Type)
	assert.Equal(t, protocol.ErrCodeRoomNotFound, serr.Code)

	rtt, err := c.Ping()
	require.NoError(t, err)
	assert.Positive(t, rtt)

	require.NoError(t, c.Logout())
	assert.Empty(t, c.SessionID)
}

func TestLobbyClient_RoomsAndInvites(t *testing.T) {
	addr, _ := startLobby(t)
	alice := login(t, addr, "alice")
	bob := login(t, addr, "bob")

	users, err := alice.ListUsers()
	require.NoError(t, err)
	assert.Len(t, users, 2)

	roomID, err := alice.CreateRoom("private room", protocol.VisibilityPrivate)
	require.NoError(t, err)

	rooms, err := bob.ListRooms()
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, protocol.VisibilityPrivate, rooms[0].Visibility)

	// 私有房间只能通过邀请加入
	_, err = bob.JoinRoom(roomID)
	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, protocol.ErrCodeRoomPrivate, serr.Code)

	require.NoError(t, alice.Invite(roomID, bob.UserID))
	invites, err := bob.ListInvites()
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, protocol.InviteInfo{RoomID: roomID, FromUserID: alice.UserID, RoomName: "private room"}, invites[0])

	players, err := bob.AcceptInvite(roomID)
	require.NoError(t, err)
	assert.Equal(t, []int{alice.UserID, bob.UserID}, players)

	deleted, err := bob.LeaveRoom(roomID)
	require.NoError(t, err)
	assert.False(t, deleted)
	deleted, err = alice.LeaveRoom(roomID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestFullMatch(t *testing.T) {
	addr, gl := startLobby(t)
	alice := login(t, addr, "alice")
	bob := login(t, addr, "bob")

	roomID, err := alice.CreateRoom("", "")
	require.NoError(t, err)
	_, err = bob.JoinRoom(roomID)
	require.NoError(t, err)

	_, err = bob.GetGameStart(roomID)
	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, protocol.ErrCodeGameNotStarted, serr.Code)

	start, err := alice.StartGame(roomID)
	require.NoError(t, err)
	polled, err := bob.WaitGameStart(roomID, 20*time.Millisecond, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, start, polled)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type outcome struct {
		welcome *protocol.WelcomePayload
		over    *protocol.GameOverPayload
		snaps   int
		err     error
	}
	play := func(c *LobbyClient, hardDrop bool) outcome {
		g, err := JoinGame(ctx, start, c.UserID)
		if err != nil {
			return outcome{err: err}
		}
		defer g.Close()

		out := outcome{welcome: g.Welcome}
		for {
			ev, err := g.Next()
			if err != nil {
				out.err = err
				return out
			}
			if ev.GameOver != nil {
				out.over = ev.GameOver
				return out
			}
			out.snaps++
			if hardDrop {
				_ = g.SendInput(protocol.ActionHard)
			}
		}
	}

	results := make(chan outcome, 2)
	go func() { results <- play(alice, true) }()
	go func() { results <- play(bob, false) }()

	var outs []outcome
	for range 2 {
		select {
		case o := <-results:
			require.NoError(t, o.err)
			outs = append(outs, o)
		case <-ctx.Done():
			t.Fatal("match did not finish")
		}
	}

	assert.Equal(t, outs[0].welcome.Seed, outs[1].welcome.Seed)
	assert.NotEqual(t, outs[0].welcome.Role, outs[1].welcome.Role)
	assert.Equal(t, outs[0].over, outs[1].over)
	assert.Positive(t, outs[0].snaps)

	select {
	case over := <-gl.results:
		assert.Equal(t, outs[0].over, over)
	case <-time.After(3 * time.Second):
		t.Fatal("game server did not report a result")
	}

	require.NoError(t, alice.GameFinished(roomID))
	rooms, err := bob.ListRooms()
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, protocol.RoomStatusIdle, rooms[0].Status)
}

func TestDialGame_RetriesUntilListening(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	go func() {
		time.Sleep(300 * time.Millisecond)
		late, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		defer late.Close()
		if conn, err := late.Accept(); err == nil {
			_ = conn.Close()
		}
	}()

	g, err := DialGame(context.Background(), addr)
	require.NoError(t, err)
	_ = g.Close()
}

func TestDialGame_ContextCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	_, err = DialGame(ctx, addr)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHello_Rejected(t *testing.T) {
	cfg := config.Default().Game
	srv := gameserver.New(gameserver.Options{Host: "127.0.0.1", RoomID: 3, Token: "right", P1: 1, P2: 2}, cfg, 1)
	require.NoError(t, srv.Listen())
	go func() { _, _ = srv.Run(context.Background()) }()
	defer srv.Stop()

	g, err := DialGame(context.Background(), srv.Addr().String())
	require.NoError(t, err)
	defer g.Close()

	_, err = g.Hello(1, 3, "wrong")
	assert.Error(t, err)
}

func TestDialWithRetry_GivesUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = DialWithRetry(context.Background(), addr, 3, 10*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}
