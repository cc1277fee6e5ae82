package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// bumpSeqScript 显式 id 创建时把序列推进到不小于该 id
var bumpSeqScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if tonumber(ARGV[1]) > cur then
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// RedisStore Redis 文档存储：每个集合一个 hash（id → JSON），一个 INCR 序列
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (rs *RedisStore) docsKey(collection string) string {
	return rs.prefix + ":docs:" + collection
}

func (rs *RedisStore) seqKey(collection string) string {
	return rs.prefix + ":seq:" + collection
}

func (rs *RedisStore) collectionsKey() string {
	return rs.prefix + ":collections"
}

func (rs *RedisStore) Create(ctx context.Context, collection string, doc Document) (Document, error) {
	stored, err := normalizeDoc(doc)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		stored = Document{}
	}

	id, explicit := stored.ID()
	if !explicit {
		next, err := rs.client.Incr(ctx, rs.seqKey(collection)).Result()
		if err != nil {
			return nil, err
		}
		id = int(next)
		stored["id"] = float64(id)
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("序列化文档失败: %w", err)
	}

	ok, err := rs.client.HSetNX(ctx, rs.docsKey(collection), strconv.Itoa(id), data).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrIDExists
	}

	if err := rs.client.SAdd(ctx, rs.collectionsKey(), collection).Err(); err != nil {
		return nil, err
	}
	if explicit {
		if err := bumpSeqScript.Run(ctx, rs.client, []string{rs.seqKey(collection)}, id).Err(); err != nil {
			return nil, err
		}
	}
	return stored, nil
}

// all 读取集合内全部文档，按 id 升序
func (rs *RedisStore) all(ctx context.Context, collection string) ([]Document, error) {
	raw, err := rs.client.HGetAll(ctx, rs.docsKey(collection)).Result()
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(raw))
	for key, value := range raw {
		var doc Document
		if err := json.Unmarshal([]byte(value), &doc); err != nil {
			return nil, fmt.Errorf("反序列化文档 %s/%s 失败: %w", collection, key, err)
		}
		docs = append(docs, doc)
	}
	sortByID(docs)
	return docs, nil
}

func (rs *RedisStore) Read(ctx context.Context, collection string, filter Filter) (Document, error) {
	// 按 id 等值查询时直接取字段
	if len(filter) == 1 {
		if id, ok := toInt(filter["id"]); ok {
			value, err := rs.client.HGet(ctx, rs.docsKey(collection), strconv.Itoa(id)).Result()
			if errors.Is(err, redis.Nil) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			var doc Document
			if err := json.Unmarshal([]byte(value), &doc); err != nil {
				return nil, err
			}
			return doc, nil
		}
	}

	docs, err := rs.all(ctx, collection)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if Matches(doc, filter) {
			return doc, nil
		}
	}
	return nil, nil
}

func (rs *RedisStore) Query(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	docs, err := rs.all(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := []Document{}
	for _, doc := range docs {
		if Matches(doc, filter) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (rs *RedisStore) Update(ctx context.Context, collection string, filter Filter, set Document) (int, error) {
	patch, err := normalizeDoc(set)
	if err != nil {
		return 0, err
	}
	docs, err := rs.Query(ctx, collection, filter)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	pipe := rs.client.TxPipeline()
	for _, doc := range docs {
		for k, v := range patch {
			doc[k] = v
		}
		id, _ := doc.ID()
		data, err := json.Marshal(doc)
		if err != nil {
			return 0, err
		}
		pipe.HSet(ctx, rs.docsKey(collection), strconv.Itoa(id), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (rs *RedisStore) Delete(ctx context.Context, collection string, filter Filter) (int, error) {
	docs, err := rs.Query(ctx, collection, filter)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	fields := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, _ := doc.ID()
		fields = append(fields, strconv.Itoa(id))
	}
	n, err := rs.client.HDel(ctx, rs.docsKey(collection), fields...).Result()
	return int(n), err
}

func (rs *RedisStore) Reset(ctx context.Context) error {
	names, err := rs.client.SMembers(ctx, rs.collectionsKey()).Result()
	if err != nil {
		return err
	}
	keys := []string{rs.collectionsKey()}
	for _, name := range names {
		keys = append(keys, rs.docsKey(name), rs.seqKey(name))
	}
	return rs.client.Del(ctx, keys...).Err()
}

func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
