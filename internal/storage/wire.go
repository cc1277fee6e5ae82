package storage

import "encoding/json"

// 文档存储线协议的动作
const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionQuery  = "query"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionReset  = "reset"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// Request 文档存储请求，一帧一个
type Request struct {
	Collection string          `json:"collection"`
	Action     string          `json:"action"`
	Filter     json.RawMessage `json:"filter,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Response 文档存储响应
type Response struct {
	Status  string     `json:"status"`
	Message string     `json:"message,omitempty"`
	Data    Document   `json:"data"`
	Items   []Document `json:"items,omitempty"`
	Updated *int       `json:"updated,omitempty"`
	Deleted *int       `json:"deleted,omitempty"`
}

func errorResponse(msg string) *Response {
	return &Response{Status: statusError, Message: msg}
}
