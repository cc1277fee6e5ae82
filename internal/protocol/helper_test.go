package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage_FlattensPayload(t *testing.T) {
	msg, err := NewMessage(MsgJoinRoomOK, JoinRoomOKPayload{RoomID: 7, Players: []int{1, 2}})
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &obj))
	assert.Equal(t, "JOIN_ROOM_OK", obj["type"])
	assert.EqualValues(t, 7, obj["roomId"])
	assert.Len(t, obj["players"], 2)
}

func TestNewMessage_NilAndEmptyPayload(t *testing.T) {
	msg, err := NewMessage(MsgLogoutOK, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"LOGOUT_OK"}`, string(msg.Payload))

	msg, err = NewMessage(MsgOK, struct{}{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"OK"}`, string(msg.Payload))
}

func TestNewMessage_RejectsNonObject(t *testing.T) {
	_, err := NewMessage(MsgOK, []int{1})
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"LIST_ROOMS","sessionId":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, MsgListRooms, msg.Type)

	tests := []string{
		`not json`,
		`[1,2,3]`,
		`{"sessionId":"abc"}`,
		`{"type":5}`,
	}
	for _, body := range tests {
		_, err := Decode([]byte(body))
		assert.ErrorIs(t, err, ErrMalformed, body)
	}
}

func TestParsePayload(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"INVITE","sessionId":"s1","roomId":3,"targetUserId":9}`))
	require.NoError(t, err)

	p, err := ParsePayload[InvitePayload](msg)
	require.NoError(t, err)
	assert.Equal(t, "s1", p.SessionID)
	assert.Equal(t, 3, p.RoomID)
	assert.Equal(t, 9, p.TargetUserID)
}

func TestParsePayload_FieldErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing roomId", `{"type":"JOIN_ROOM","sessionId":"s"}`, "missing roomId"},
		{"zero roomId", `{"type":"JOIN_ROOM","sessionId":"s","roomId":0}`, "missing roomId"},
		{"negative roomId", `{"type":"JOIN_ROOM","sessionId":"s","roomId":-4}`, "invalid roomId"},
		{"wrong type", `{"type":"JOIN_ROOM","sessionId":"s","roomId":"x"}`, "invalid roomId"},
		{"unknown field", `{"type":"JOIN_ROOM","sessionId":"s","roomId":1,"color":"red"}`, "unknown field color"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.body))
			require.NoError(t, err)

			_, err = ParsePayload[RoomPayload](msg)
			var fe *FieldError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, tt.want, fe.Error())
		})
	}
}

func TestParsePayload_Visibility(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"CREATE_ROOM","sessionId":"s","visibility":"secret"}`))
	require.NoError(t, err)

	_, err = ParsePayload[CreateRoomPayload](msg)
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "visibility", fe.Field)

	msg, err = Decode([]byte(`{"type":"CREATE_ROOM","sessionId":"s"}`))
	require.NoError(t, err)
	p, err := ParsePayload[CreateRoomPayload](msg)
	require.NoError(t, err)
	assert.Empty(t, p.Visibility)
}

func TestSnapshotPayload_NullFields(t *testing.T) {
	msg, err := NewMessage(MsgSnapshot, SnapshotPayload{UserID: 1, Board: make([]int, 200)})
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &obj))
	assert.Contains(t, obj, "active")
	assert.Nil(t, obj["active"])
	assert.Contains(t, obj, "hold")
	assert.Nil(t, obj["hold"])
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage(ErrCodeRoomFull)
	assert.Equal(t, MsgError, msg.Type)

	p, err := ParsePayload[ErrorPayload](msg)
	require.NoError(t, err)
	assert.Equal(t, "room full", p.Reason)
	assert.Equal(t, ErrCodeRoomFull, p.Code)
}
