package lobby

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/palemoky/tetris-battle/internal/apperrors"
	"github.com/palemoky/tetris-battle/internal/lobby/launcher"
	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/storage"
	"github.com/palemoky/tetris-battle/internal/testutil"
)

type fixture struct {
	lobby    *Lobby
	store    *storage.MemoryStore
	launcher *testutil.RecordingLauncher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewMemoryStore("")
	require.NoError(t, err)
	rec := &testutil.RecordingLauncher{}
	l := New(Deps{
		Store:      store,
		Launcher:   rec,
		Ports:      launcher.NewPortAllocator("127.0.0.1", 41000, 41100),
		GameHost:   "game.example",
		BcryptCost: bcrypt.MinCost,
	})
	return &fixture{lobby: l, store: store, launcher: rec}
}

// login 注册并登录，返回会话
func (f *fixture) login(t *testing.T, name string) *Session {
	t.Helper()
	ctx := context.Background()
	_, err := f.lobby.Register(ctx, name, name+"@example.com", "pw-"+name)
	require.NoError(t, err)
	s, err := f.lobby.Login(ctx, "conn-"+name, name, "pw-"+name)
	require.NoError(t, err)
	return s
}

func (f *fixture) room(t *testing.T, host *Session, visibility string) int {
	t.Helper()
	id, err := f.lobby.CreateRoom(context.Background(), host.ConnID, host.ID, "", visibility)
	require.NoError(t, err)
	return id
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.lobby.Register(ctx, "alice", "a@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	doc, err := f.store.Read(ctx, storage.CollectionUser, storage.Filter{"name": "alice"})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.NotEqual(t, "secret", doc.String("passwordHash"))
	assert.Contains(t, doc, "lastLoginAt")
	assert.Contains(t, doc, "createdAt")

	_, err = f.lobby.Register(ctx, "alice", "", "other")
	assert.ErrorIs(t, err, apperrors.ErrNameTaken)

	_, err = f.lobby.Register(ctx, "", "", "pw")
	assert.ErrorIs(t, err, apperrors.ErrMissingCredentials)
	_, err = f.lobby.Register(ctx, "bob", "", "")
	assert.ErrorIs(t, err, apperrors.ErrMissingCredentials)
}

func TestRegister_StoreFailure(t *testing.T) {
	store := &testutil.MockStore{}
	store.On("Read", mock.Anything, storage.CollectionUser, mock.Anything).
		Return(nil, errors.New("connection refused"))
	l := New(Deps{Store: store, BcryptCost: bcrypt.MinCost})

	_, err := l.Register(context.Background(), "alice", "", "pw")
	assert.ErrorIs(t, err, apperrors.ErrStore)
	assert.Equal(t, apperrors.KindInfrastructure, apperrors.KindOf(err))
	store.AssertExpectations(t)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.lobby.Register(ctx, "alice", "", "secret")
	require.NoError(t, err)

	_, err = f.lobby.Login(ctx, "c1", "nobody", "x")
	assert.ErrorIs(t, err, apperrors.ErrNoSuchUser)

	_, err = f.lobby.Login(ctx, "c1", "alice", "wrong")
	assert.ErrorIs(t, err, apperrors.ErrWrongPassword)

	s, err := f.lobby.Login(ctx, "c1", "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, 1, s.UserID)
	assert.Len(t, s.ID, 32)

	doc, err := f.store.Read(ctx, storage.CollectionUser, storage.Filter{"id": 1})
	require.NoError(t, err)
	_, ok := doc.Int("lastLoginAt")
	assert.True(t, ok)

	_, err = f.lobby.Login(ctx, "c2", "alice", "secret")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyLoggedIn)
}

func TestLoginLogout_AtMostOneSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.lobby.Register(ctx, "alice", "", "pw")
	require.NoError(t, err)

	for i := range 5 {
		s, err := f.lobby.Login(ctx, "c", "alice", "pw")
		require.NoError(t, err, "round %d", i)
		_, err = f.lobby.Login(ctx, "c", "alice", "pw")
		require.ErrorIs(t, err, apperrors.ErrAlreadyLoggedIn)
		assert.Equal(t, 1, f.lobby.Stats().Sessions)

		f.lobby.Logout(ctx, "c", s.ID)
		assert.Equal(t, 0, f.lobby.Stats().Sessions)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.lobby.Logout(context.Background(), "c", "does-not-exist")

	alice := f.login(t, "alice")
	f.lobby.Logout(context.Background(), alice.ConnID, alice.ID)
	f.lobby.Logout(context.Background(), alice.ConnID, alice.ID)
	assert.Equal(t, 0, f.lobby.Stats().Sessions)
}

func TestSession_BoundToConnection(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice")

	_, err := f.lobby.ListRooms("someone-else", alice.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidSession)

	// 其他连接不能注销别人的会话
	f.lobby.Logout(context.Background(), "someone-else", alice.ID)
	_, err = f.lobby.ListRooms(alice.ConnID, alice.ID)
	assert.NoError(t, err)
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)
	bob := f.login(t, "bob")
	f.login(t, "alice")

	users, err := f.lobby.ListUsers(bob.ConnID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []protocol.UserInfo{{UserID: 1, Name: "bob"}, {UserID: 2, Name: "alice"}}, users)

	_, err = f.lobby.ListUsers(bob.ConnID, "bogus")
	assert.ErrorIs(t, err, apperrors.ErrInvalidSession)
}

func TestCreateRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.login(t, "alice")

	id := f.room(t, alice, "")
	assert.Equal(t, 1, id)
	id2, err := f.lobby.CreateRoom(ctx, alice.ConnID, alice.ID, "duel", protocol.VisibilityPrivate)
	require.NoError(t, err)
	assert.Equal(t, 2, id2)

	rooms, err := f.lobby.ListRooms(alice.ConnID, alice.ID)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, protocol.RoomInfo{
		ID: 1, Name: "alice's room", HostUserID: alice.UserID,
		Visibility: "public", Status: "idle", Players: []int{alice.UserID},
	}, rooms[0])
	assert.Equal(t, "duel", rooms[1].Name)
	assert.Equal(t, "private", rooms[1].Visibility)

	doc, err := f.store.Read(ctx, storage.CollectionRoom, storage.Filter{"id": 2})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "duel", doc.String("name"))
	assert.Equal(t, []int{alice.UserID}, doc.Ints("players"))
}

func TestCreateRoom_StoreFailureLeavesNoRoom(t *testing.T) {
	store := &testutil.MockStore{}
	l := New(Deps{Store: store})
	l.sessions["s"] = &Session{ID: "s", UserID: 1, Name: "alice", ConnID: "c"}
	l.userSessions[1] = "s"

	store.On("Create", mock.Anything, storage.CollectionRoom, mock.Anything).
		Return(nil, errors.New("timeout")).Once()

	_, err := l.CreateRoom(context.Background(), "c", "s", "", "")
	assert.ErrorIs(t, err, apperrors.ErrStore)
	assert.Zero(t, l.Stats().Rooms)
	store.AssertExpectations(t)
}

func TestJoinRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.login(t, "alice")
	bob := f.login(t, "bob")
	carol := f.login(t, "carol")

	pub := f.room(t, alice, "public")
	priv := f.room(t, carol, "private")

	_, err := f.lobby.JoinRoom(ctx, bob.ConnID, bob.ID, 99)
	assert.ErrorIs(t, err, apperrors.ErrRoomNotFound)

	_, err = f.lobby.JoinRoom(ctx, bob.ConnID, bob.ID, priv)
	assert.ErrorIs(t, err, apperrors.ErrRoomPrivate)

	players, err := f.lobby.JoinRoom(ctx, bob.ConnID, bob.ID, pub)
	require.NoError(t, err)
	assert.Equal(t, []int{alice.UserID, bob.UserID}, players)

	_, err = f.lobby.JoinRoom(ctx, carol.ConnID, carol.ID, pub)
	assert.ErrorIs(t, err, apperrors.ErrRoomFull)

	// 已在房间中也按满员处理
	_, err = f.lobby.JoinRoom(ctx, bob.ConnID, bob.ID, pub)
	assert.ErrorIs(t, err, apperrors.ErrRoomFull)

	doc, err := f.store.Read(ctx, storage.CollectionRoom, storage.Filter{"id": pub})
	require.NoError(t, err)
	assert.Equal(t, []int{alice.UserID, bob.UserID}, doc.Ints("players"))
}

func TestJoinRoom_StoreFailureRollsBack(t *testing.T) {
	store := &testutil.MockStore{}
	l := New(Deps{Store: store})
	l.sessions["s"] = &Session{ID: "s", UserID: 2, Name: "bob", ConnID: "c"}
	l.rooms[1] = &Room{ID: 1, HostUserID: 1, Visibility: "public", Status: "idle", Players: []int{1}}

	store.On("Update", mock.Anything, storage.CollectionRoom, storage.Filter{"id": 1}, mock.Anything).
		Return(0, errors.New("boom"))

	_, err := l.JoinRoom(context.Background(), "c", "s", 1)
	assert.ErrorIs(t, err, apperrors.ErrStore)
	assert.Equal(t, []int{1}, l.rooms[1].Players)
}

func TestLeaveRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.login(t, "alice")
	bob := f.login(t, "bob")

	id := f.room(t, alice, "")
	_, err := f.lobby.JoinRoom(ctx, bob.ConnID, bob.ID, id)
	require.NoError(t, err)

	deleted, err := f.lobby.LeaveRoom(ctx, bob.ConnID, bob.ID, id)
	require.NoError(t, err)
	assert.False(t, deleted)

	rooms, err := f.lobby.ListRooms(alice.ConnID, alice.ID)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, []int{alice.UserID}, rooms[0].Players)

	deleted, err = f.lobby.LeaveRoom(ctx, alice.ConnID, alice.ID, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = f.lobby.LeaveRoom(ctx, alice.ConnID, alice.ID, id)
	assert.ErrorIs(t, err, apperrors.ErrRoomNotFound)

	docs, err := f.store.Query(ctx, storage.CollectionRoom, nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLeaveRoom_HostDissolvesWithGuestPresent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.login(t, "alice")
	bob := f.login(t, "bob")

	id := f.room(t, alice, "")
	_, err := f.lobby.JoinRoom(ctx, bob.ConnID, bob.ID, id)
	require.NoError(t, err)

	deleted, err := f.lobby.LeaveRoom(ctx, alice.ConnID, alice.ID, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	rooms, err := f.lobby.ListRooms(bob.ConnID, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestLogout_DepartsRooms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.login(t, "alice")
	bob := f.login(t, "bob")

	aliceRoom := f.room(t, alice, "")
	bobRoom := f.room(t, bob, "")
	_, err := f.lobby.JoinRoom(ctx, alice.ConnID, alice.ID, bobRoom)
	require.NoError(t, err)

	f.lobby.Logout(ctx, alice.ConnID, alice.ID)

	rooms, err := f.lobby.ListRooms(bob.ConnID, bob.ID)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, bobRoom, rooms[0].ID)
	assert.Equal(t, []int{bob.UserID}, rooms[0].Players)

	doc, err := f.store.Read(ctx, storage.CollectionRoom, storage.Filter{"id": aliceRoom})
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestDisconnect_CleansUpSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.login(t, "alice")
	bob := f.login(t, "bob")
	id := f.room(t, alice, "")
	_, err := f.lobby.JoinRoom(ctx, bob.ConnID, bob.ID, id)
	require.NoError(t, err)

	f.lobby.Disconnect(ctx, alice.ConnID)

	_, err = f.lobby.ListRooms(alice.ConnID, alice.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidSession)
	rooms, err := f.lobby.ListRooms(bob.ConnID, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, rooms)

	// 断线后可以重新登录
	_, err = f.lobby.Login(ctx, "new-conn", "alice", "pw-alice")
	assert.NoError(t, err)
}

func TestRoomNeverExceedsTwoPlayers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.login(t, "host")
	id := f.room(t, host, "")

	for _, name := range []string{"a", "b", "c", "d"} {
		s := f.login(t, name)
		_, _ = f.lobby.JoinRoom(ctx, s.ConnID, s.ID, id)
		_ = f.lobby.Invite(host.ConnID, host.ID, id, s.UserID)
		_, _ = f.lobby.AcceptInvite(ctx, s.ConnID, s.ID, id)
	}

	rooms, err := f.lobby.ListRooms(host.ConnID, host.ID)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Len(t, rooms[0].Players, 2)
}

func TestBootstrap_DeletesStaleRooms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Create(ctx, storage.CollectionRoom, storage.Document{"id": 1, "name": "stale"})
	require.NoError(t, err)

	require.NoError(t, f.lobby.Bootstrap(ctx))

	alice := f.login(t, "alice")
	id := f.room(t, alice, "")
	assert.Equal(t, 1, id)
}
