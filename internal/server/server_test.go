package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/palemoky/tetris-battle/internal/config"
	"github.com/palemoky/tetris-battle/internal/lobby"
	"github.com/palemoky/tetris-battle/internal/lobby/launcher"
	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/storage"
	"github.com/palemoky/tetris-battle/internal/testutil"
	"github.com/palemoky/tetris-battle/internal/transport"
)

type testEnv struct {
	server   *Server
	lobby    *lobby.Lobby
	launcher *testutil.RecordingLauncher
}

func startServer(t *testing.T, mutate func(*config.LobbyConfig)) *testEnv {
	t.Helper()

	store, err := storage.NewMemoryStore("")
	require.NoError(t, err)
	rec := &testutil.RecordingLauncher{}
	l := lobby.New(lobby.Deps{
		Store:      store,
		Launcher:   rec,
		Ports:      launcher.NewPortAllocator("127.0.0.1", 43000, 43100),
		GameHost:   "game.example",
		BcryptCost: bcrypt.MinCost,
	})

	cfg := config.Default().Lobby
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.HTTPPort = 0
	if mutate != nil {
		mutate(&cfg)
	}

	s := NewServer(&cfg, l)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return &testEnv{server: s, lobby: l, launcher: rec}
}

type testClient struct {
	t    *testing.T
	conn *transport.TCPConn
}

func (e *testEnv) dial(t *testing.T) *testClient {
	t.Helper()
	conn, err := transport.Dial(e.server.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn}
}

// request 发送原始 JSON 并读取一条响应
func (c *testClient) request(body string) (protocol.MessageType, map[string]any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.Send([]byte(body)))
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	data, err := c.conn.Receive()
	require.NoError(c.t, err)
	msg, err := protocol.Decode(data)
	require.NoError(c.t, err)
	fields, err := protocol.ParsePayload[map[string]any](msg)
	require.NoError(c.t, err)
	return msg.Type, *fields
}

// expectClosed 断言服务端已关闭连接
func (c *testClient) expectClosed() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err := c.conn.Receive()
	require.Error(c.t, err)
	assert.False(c.t, isTimeout(err), "connection was not closed: %v", err)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// account 注册并登录，返回 userId 与 sessionId
func (c *testClient) account(name string) (int, string) {
	c.t.Helper()
	typ, fields := c.request(`{"type":"REGISTER","name":"` + name + `","email":"` + name + `@example.com","password":"secret"}`)
	require.Equal(c.t, protocol.MsgRegisterOK, typ, fields)

	typ, fields = c.request(`{"type":"LOGIN","name":"` + name + `","password":"secret"}`)
	require.Equal(c.t, protocol.MsgLoginOK, typ, fields)
	return int(fields["userId"].(float64)), fields["sessionId"].(string)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func TestServer_ScenarioA_CreateAndJoin(t *testing.T) {
	env := startServer(t, nil)
	alice, bob := env.dial(t), env.dial(t)

	aliceID, aliceSID := alice.account("alice")
	bobID, bobSID := bob.account("bob")
	assert.NotEqual(t, aliceID, bobID)

	typ, fields := alice.request(`{"type":"CREATE_ROOM","sessionId":"` + aliceSID + `","visibility":"public"}`)
	require.Equal(t, protocol.MsgCreateRoomOK, typ, fields)
	roomID := int(fields["roomId"].(float64))

	typ, fields = bob.request(`{"type":"JOIN_ROOM","sessionId":"` + bobSID + `","roomId":` + itoa(roomID) + `}`)
	require.Equal(t, protocol.MsgJoinRoomOK, typ, fields)
	assert.Equal(t, []any{float64(aliceID), float64(bobID)}, fields["players"])

	for _, c := range []struct {
		client *testClient
		sid    string
	}{{alice, aliceSID}, {bob, bobSID}} {
		typ, fields = c.client.request(`{"type":"LIST_ROOMS","sessionId":"` + c.sid + `"}`)
		require.Equal(t, protocol.MsgRooms, typ)
		rooms := fields["rooms"].([]any)
		require.Len(t, rooms, 1)
		room := rooms[0].(map[string]any)
		assert.Equal(t, "idle", room["status"])
		assert.Len(t, room["players"], 2)
		assert.Equal(t, "alice's room", room["name"])
	}
}

func TestServer_ScenarioB_StartAndFetchGame(t *testing.T) {
	env := startServer(t, nil)
	alice, bob := env.dial(t), env.dial(t)
	aliceID, aliceSID := alice.account("alice")
	bobID, bobSID := bob.account("bob")

	_, fields := alice.request(`{"type":"CREATE_ROOM","sessionId":"` + aliceSID + `"}`)
	roomID := itoa(int(fields["roomId"].(float64)))
	typ, _ := bob.request(`{"type":"JOIN_ROOM","sessionId":"` + bobSID + `","roomId":` + roomID + `}`)
	require.Equal(t, protocol.MsgJoinRoomOK, typ)

	typ, started := alice.request(`{"type":"START_GAME","sessionId":"` + aliceSID + `","roomId":` + roomID + `}`)
	require.Equal(t, protocol.MsgGameStart, typ, started)
	assert.Equal(t, "game.example", started["gameHost"])
	assert.NotEmpty(t, started["roomToken"])

	typ, fetched := bob.request(`{"type":"GET_GAME_START","sessionId":"` + bobSID + `","roomId":` + roomID + `}`)
	require.Equal(t, protocol.MsgGameStart, typ, fetched)
	for _, key := range []string{"roomId", "gameHost", "gamePort", "roomToken"} {
		assert.Equal(t, started[key], fetched[key], key)
	}

	spec, ok := env.launcher.Last()
	require.True(t, ok)
	assert.Equal(t, aliceID, spec.P1)
	assert.Equal(t, bobID, spec.P2)
	assert.Equal(t, started["roomToken"], spec.Token)
	assert.EqualValues(t, started["gamePort"], spec.Port)

	typ, _ = bob.request(`{"type":"GAME_FINISHED","sessionId":"` + bobSID + `","roomId":` + roomID + `}`)
	assert.Equal(t, protocol.MsgOK, typ)
	typ, fields = bob.request(`{"type":"GET_GAME_START","sessionId":"` + bobSID + `","roomId":` + roomID + `}`)
	assert.Equal(t, protocol.MsgError, typ)
	assert.Equal(t, "game not started", fields["reason"])
}

func TestServer_UnknownTypeKeepsConnection(t *testing.T) {
	env := startServer(t, nil)
	c := env.dial(t)

	typ, fields := c.request(`{"type":"FLY"}`)
	assert.Equal(t, protocol.MsgError, typ)
	assert.Equal(t, "unknown type", fields["reason"])

	typ, fields = c.request(`{"type":"JOIN_ROOM","sessionId":"nope"}`)
	assert.Equal(t, protocol.MsgError, typ)
	assert.Equal(t, "missing roomId", fields["reason"])

	typ, _ = c.request(`{"type":"PING","timestamp":1}`)
	assert.Equal(t, protocol.MsgPong, typ)
}

func TestServer_ProtocolViolationClosesConnection(t *testing.T) {
	env := startServer(t, nil)

	t.Run("non-object body", func(t *testing.T) {
		c := env.dial(t)
		require.NoError(t, c.conn.Send([]byte("not json")))
		c.expectClosed()
	})

	t.Run("zero length frame", func(t *testing.T) {
		nc, err := net.Dial("tcp", env.server.Addr().String())
		require.NoError(t, err)
		defer nc.Close()

		_, err = nc.Write([]byte{0, 0, 0, 0})
		require.NoError(t, err)
		require.NoError(t, nc.SetReadDeadline(time.Now().Add(3*time.Second)))
		_, err = nc.Read(make([]byte, 1))
		require.Error(t, err)
		assert.False(t, isTimeout(err), "connection was not closed: %v", err)
	})
}

func TestServer_DisconnectCleansUpSession(t *testing.T) {
	env := startServer(t, nil)
	c := env.dial(t)
	_, sid := c.account("alice")

	typ, _ := c.request(`{"type":"CREATE_ROOM","sessionId":"` + sid + `"}`)
	require.Equal(t, protocol.MsgCreateRoomOK, typ)
	require.Equal(t, 1, env.lobby.Stats().Rooms)

	require.NoError(t, c.conn.Close())

	assert.Eventually(t, func() bool {
		st := env.lobby.Stats()
		return st.Sessions == 0 && st.Rooms == 0 && env.server.GetOnlineCount() == 0
	}, 3*time.Second, 20*time.Millisecond)

	// 断线后可以重新登录
	c2 := env.dial(t)
	typ, fields := c2.request(`{"type":"LOGIN","name":"alice","password":"secret"}`)
	assert.Equal(t, protocol.MsgLoginOK, typ, fields)
}

func TestServer_ConnectionRateLimit(t *testing.T) {
	env := startServer(t, func(cfg *config.LobbyConfig) {
		cfg.MaxConnPerSecond = 1
	})

	first := env.dial(t)
	typ, _ := first.request(`{"type":"PING"}`)
	assert.Equal(t, protocol.MsgPong, typ)

	second := env.dial(t)
	second.expectClosed()
}

func TestServer_MessageRateLimit(t *testing.T) {
	env := startServer(t, func(cfg *config.LobbyConfig) {
		cfg.MaxMsgPerSecond = 2
	})
	c := env.dial(t)

	for range 2 {
		typ, _ := c.request(`{"type":"PING"}`)
		assert.Equal(t, protocol.MsgPong, typ)
	}
	typ, fields := c.request(`{"type":"PING"}`)
	assert.Equal(t, protocol.MsgError, typ)
	assert.EqualValues(t, protocol.ErrCodeRateLimit, fields["code"])
}

func TestServer_WebSocket(t *testing.T) {
	env := startServer(t, nil)
	ts := httptest.NewServer(env.server.HTTPHandler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"REGISTER","name":"wsuser","password":"pw"}`)))
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgRegisterOK, msg.Type)
}

func TestServer_WebSocketOriginRejected(t *testing.T) {
	env := startServer(t, func(cfg *config.LobbyConfig) {
		cfg.AllowedOrigins = []string{"https://tetris.example"}
	})
	ts := httptest.NewServer(env.server.HTTPHandler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_Health(t *testing.T) {
	env := startServer(t, nil)
	c := env.dial(t)
	c.account("alice")

	ts := httptest.NewServer(env.server.HTTPHandler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var status healthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, 1, status.Sessions)
	assert.Equal(t, 1, status.Connections)
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	env := startServer(t, nil)
	c := env.dial(t)
	typ, _ := c.request(`{"type":"PING"}`)
	require.Equal(t, protocol.MsgPong, typ)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, env.server.Shutdown(ctx))

	c.expectClosed()
	_, err := net.DialTimeout("tcp", env.server.Addr().String(), 500*time.Millisecond)
	assert.Error(t, err)
	assert.NoError(t, env.server.Shutdown(ctx))
}

func TestCollectUsage(t *testing.T) {
	usage := collectUsage(nil)
	assert.Positive(t, usage.Goroutines)
	assert.Positive(t, usage.HeapMB)
	assert.Zero(t, usage.RSSMB)
}
