package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrMalformed 帧体不是带 type 字段的 JSON 对象，属于协议违规，调用方应关闭连接
var ErrMalformed = errors.New("malformed message")

// FieldError 字段缺失或非法，连接保持打开
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Reason + " " + e.Field
}

var (
	validate = newValidator()

	bufferPool = sync.Pool{
		New: func() any {
			return new(bytes.Buffer)
		},
	}
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// 错误信息使用 JSON 字段名
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewMessage 创建一个新消息，payload 的字段与 type 平铺在同一层
func NewMessage(msgType MessageType, payload any) (*Message, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	typ, err := json.Marshal(msgType)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`{"type":`)
	buf.Write(typ)

	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.TrimSpace(body)
		if len(body) < 2 || body[0] != '{' {
			return nil, fmt.Errorf("payload for %s is not an object", msgType)
		}
		if inner := body[1 : len(body)-1]; len(bytes.TrimSpace(inner)) > 0 {
			buf.WriteByte(',')
			buf.Write(inner)
		}
	}
	buf.WriteByte('}')

	return &Message{
		Type:    msgType,
		Payload: bytes.Clone(buf.Bytes()),
	}, nil
}

// MustNewMessage 创建消息，失败时 panic
func MustNewMessage(msgType MessageType, payload any) *Message {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Encode 返回消息的帧体
func (m *Message) Encode() ([]byte, error) {
	if len(m.Payload) == 0 {
		return json.Marshal(map[string]MessageType{"type": m.Type})
	}
	return m.Payload, nil
}

// Decode 从帧体解码消息，只读取 type 字段
func Decode(data []byte) (*Message, error) {
	var head struct {
		Type *MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if head.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return &Message{
		Type:    *head.Type,
		Payload: data,
	}, nil
}

// ParsePayload 严格解析消息到指定类型：拒绝未知字段并执行 validate 标签校验
func ParsePayload[T any](msg *Message) (*T, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg.Payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	delete(fields, "type")

	stripped, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	var payload T
	dec := json.NewDecoder(bytes.NewReader(stripped))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, decodeFieldError(err)
	}

	if err := validate.Struct(&payload); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Tag() == "required" {
				return nil, &FieldError{Field: fe.Field(), Reason: "missing"}
			}
			return nil, &FieldError{Field: fe.Field(), Reason: "invalid"}
		}
		// 非结构体类型无需校验
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			return nil, err
		}
	}
	return &payload, nil
}

func decodeFieldError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &FieldError{Field: typeErr.Field, Reason: "invalid"}
	}
	// encoding/json 对未知字段只给出文本错误: json: unknown field "x"
	if msg := err.Error(); strings.HasPrefix(msg, "json: unknown field ") {
		return &FieldError{Field: strings.Trim(strings.TrimPrefix(msg, "json: unknown field "), `"`), Reason: "unknown field"}
	}
	return &FieldError{Reason: err.Error()}
}

// NewErrorMessage 创建错误消息
func NewErrorMessage(code int) *Message {
	return NewErrorMessageWithText(code, ErrorMessages[code])
}

// NewErrorMessageWithText 创建带自定义文本的错误消息
func NewErrorMessageWithText(code int, text string) *Message {
	return MustNewMessage(MsgError, ErrorPayload{
		Reason: text,
		Code:   code,
	})
}
