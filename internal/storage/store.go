package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// 集合名
const (
	CollectionUser = "User"
	CollectionRoom = "Room"
)

// ErrIDExists 创建时显式指定的 id 已存在
var ErrIDExists = errors.New("id already exists")

// Document 一条文档，值均为 JSON 兼容类型
type Document map[string]any

// Filter 等值过滤条件，空过滤条件匹配所有文档
type Filter map[string]any

// Store 文档存储，所有实现语义一致
type Store interface {
	// Create 插入文档并返回包含 id 的副本；未指定 id 时自动分配
	Create(ctx context.Context, collection string, doc Document) (Document, error)
	// Read 返回第一个匹配的文档，无匹配时返回 nil, nil
	Read(ctx context.Context, collection string, filter Filter) (Document, error)
	// Query 返回所有匹配的文档，按 id 升序
	Query(ctx context.Context, collection string, filter Filter) ([]Document, error)
	// Update 对所有匹配文档合并 set 中的字段，返回更新条数
	Update(ctx context.Context, collection string, filter Filter, set Document) (int, error)
	// Delete 删除所有匹配文档，返回删除条数
	Delete(ctx context.Context, collection string, filter Filter) (int, error)
	// Reset 清空所有集合
	Reset(ctx context.Context) error
	Close() error
}

// ID 返回文档的整数 id
func (d Document) ID() (int, bool) {
	return d.Int("id")
}

// Int 读取整数字段，兼容 JSON 解码后的 float64
func (d Document) Int(key string) (int, bool) {
	return toInt(d[key])
}

// String 读取字符串字段
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Ints 读取整数数组字段
func (d Document) Ints(key string) []int {
	raw, ok := d[key].([]any)
	if !ok {
		if ints, ok := d[key].([]int); ok {
			return append([]int(nil), ints...)
		}
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		if n, ok := toInt(v); ok {
			out = append(out, n)
		}
	}
	return out
}

// Clone 深拷贝文档
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out, err := normalizeDoc(d)
	if err != nil {
		// normalizeDoc 只会在值不可序列化时失败，退化为浅拷贝
		out = make(Document, len(d))
		for k, v := range d {
			out[k] = v
		}
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

// normalizeDoc 经 JSON 往返得到规范形式：数字为 float64，数组为 []any
func normalizeDoc(d Document) (Document, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

func normalizeValue(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// Matches 判断文档是否满足过滤条件：每个字段都存在且 JSON 值相等
func Matches(doc Document, filter Filter) bool {
	for key, want := range filter {
		got, ok := doc[key]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(normalizeValue(got), normalizeValue(want)) {
			return false
		}
	}
	return true
}

func sortByID(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, _ := docs[i].ID()
		b, _ := docs[j].ID()
		return a < b
	})
}
