package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/palemoky/tetris-battle/internal/transport"
)

// Client 通过帧协议访问远端文档存储服务，同一时刻只有一个请求在途
type Client struct {
	addr    string
	timeout time.Duration

	mu   sync.Mutex
	conn *transport.TCPConn
}

// NewClient 创建客户端并立即建立连接
func NewClient(addr string, timeout time.Duration) (*Client, error) {
	c := &Client{addr: addr, timeout: timeout}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := transport.Dial(c.addr, c.timeout)
	if err != nil {
		return fmt.Errorf("connect docstore %s: %w", c.addr, err)
	}
	c.conn = conn
	return nil
}

// roundTrip 发送请求并等待响应；连接出错后丢弃，下次请求重新拨号
func (c *Client) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connect(); err != nil {
			return nil, err
		}
	}

	deadline, ok := ctx.Deadline()
	if !ok && c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if !deadline.IsZero() {
		_ = c.conn.SetDeadline(deadline)
		defer func() {
			if c.conn != nil {
				_ = c.conn.SetDeadline(time.Time{})
			}
		}()
	}

	if err := c.conn.Send(body); err != nil {
		c.drop()
		return nil, fmt.Errorf("docstore send: %w", err)
	}
	reply, err := c.conn.Receive()
	if err != nil {
		c.drop()
		return nil, fmt.Errorf("docstore receive: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(reply, &resp); err != nil {
		c.drop()
		return nil, fmt.Errorf("docstore decode: %w", err)
	}
	if resp.Status != statusOK {
		if resp.Message == ErrIDExists.Error() {
			return nil, ErrIDExists
		}
		return nil, fmt.Errorf("docstore: %s", resp.Message)
	}
	return &resp, nil
}

func (c *Client) drop() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func rawJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage(`{}`), nil
	}
	return json.Marshal(v)
}

func (c *Client) do(ctx context.Context, action, collection string, filter Filter, data Document) (*Response, error) {
	req := &Request{Collection: collection, Action: action}
	var err error
	if req.Filter, err = rawJSON(filter); err != nil {
		return nil, err
	}
	if data != nil {
		if req.Data, err = rawJSON(data); err != nil {
			return nil, err
		}
	}
	return c.roundTrip(ctx, req)
}

func (c *Client) Create(ctx context.Context, collection string, doc Document) (Document, error) {
	if doc == nil {
		doc = Document{}
	}
	resp, err := c.do(ctx, ActionCreate, collection, nil, doc)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) Read(ctx context.Context, collection string, filter Filter) (Document, error) {
	resp, err := c.do(ctx, ActionRead, collection, filter, nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) Query(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	resp, err := c.do(ctx, ActionQuery, collection, filter, nil)
	if err != nil {
		return nil, err
	}
	if resp.Items == nil {
		return []Document{}, nil
	}
	return resp.Items, nil
}

func (c *Client) Update(ctx context.Context, collection string, filter Filter, set Document) (int, error) {
	if set == nil {
		set = Document{}
	}
	resp, err := c.do(ctx, ActionUpdate, collection, filter, set)
	if err != nil {
		return 0, err
	}
	if resp.Updated == nil {
		return 0, errors.New("docstore: missing updated count")
	}
	return *resp.Updated, nil
}

func (c *Client) Delete(ctx context.Context, collection string, filter Filter) (int, error) {
	resp, err := c.do(ctx, ActionDelete, collection, filter, nil)
	if err != nil {
		return 0, err
	}
	if resp.Deleted == nil {
		return 0, errors.New("docstore: missing deleted count")
	}
	return *resp.Deleted, nil
}

func (c *Client) Reset(ctx context.Context) error {
	_, err := c.do(ctx, ActionReset, "*", nil, nil)
	return err
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drop()
	return nil
}
