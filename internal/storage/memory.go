package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/palemoky/tetris-battle/internal/logger"
)

type memCollection struct {
	nextID int
	docs   map[int]Document
}

// MemoryStore 进程内文档存储，每次变更后尽力把全部数据快照到磁盘
type MemoryStore struct {
	mu           sync.Mutex
	collections  map[string]*memCollection
	snapshotPath string
}

// NewMemoryStore 创建内存存储；snapshotPath 非空时先从快照加载
func NewMemoryStore(snapshotPath string) (*MemoryStore, error) {
	s := &MemoryStore{
		collections:  make(map[string]*memCollection),
		snapshotPath: snapshotPath,
	}
	if snapshotPath != "" {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MemoryStore) collection(name string) *memCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memCollection{nextID: 1, docs: make(map[int]Document)}
		s.collections[name] = c
	}
	return c
}

// sorted 按 id 升序返回文档
func (c *memCollection) sorted() []Document {
	ids := make([]int, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Document, len(ids))
	for i, id := range ids {
		out[i] = c.docs[id]
	}
	return out
}

func (s *MemoryStore) Create(_ context.Context, collection string, doc Document) (Document, error) {
	stored, err := normalizeDoc(doc)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		stored = Document{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	id, explicit := stored.ID()
	if explicit {
		if _, exists := c.docs[id]; exists {
			return nil, ErrIDExists
		}
		if id >= c.nextID {
			c.nextID = id + 1
		}
	} else {
		id = c.nextID
		c.nextID++
		stored["id"] = float64(id)
	}
	c.docs[id] = stored

	s.persist()
	return stored.Clone(), nil
}

func (s *MemoryStore) Read(_ context.Context, collection string, filter Filter) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, nil
	}
	for _, doc := range c.sorted() {
		if Matches(doc, filter) {
			return doc.Clone(), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Query(_ context.Context, collection string, filter Filter) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Document{}
	c, ok := s.collections[collection]
	if !ok {
		return out, nil
	}
	for _, doc := range c.sorted() {
		if Matches(doc, filter) {
			out = append(out, doc.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, collection string, filter Filter, set Document) (int, error) {
	patch, err := normalizeDoc(set)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return 0, nil
	}
	count := 0
	for _, doc := range c.docs {
		if !Matches(doc, filter) {
			continue
		}
		for k, v := range patch {
			doc[k] = v
		}
		count++
	}

	s.persist()
	return count, nil
}

func (s *MemoryStore) Delete(_ context.Context, collection string, filter Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return 0, nil
	}
	count := 0
	for id, doc := range c.docs {
		if Matches(doc, filter) {
			delete(c.docs, id)
			count++
		}
	}

	s.persist()
	return count, nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections = make(map[string]*memCollection)
	s.persist()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// persist 写快照，失败只记日志；调用方需持有锁
func (s *MemoryStore) persist() {
	if s.snapshotPath == "" {
		return
	}
	if err := s.save(); err != nil {
		logger.Warn("docstore snapshot failed: %v", err)
	}
}

func (s *MemoryStore) save() error {
	snapshot := make(map[string][]Document, len(s.collections))
	for name, c := range s.collections {
		snapshot[name] = c.sorted()
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	// 先写临时文件再重命名，避免写一半的快照
	tmp, err := os.CreateTemp(filepath.Dir(s.snapshotPath), ".db-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.snapshotPath)
}

func (s *MemoryStore) load() error {
	data, err := os.ReadFile(s.snapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var snapshot map[string][]Document
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("load snapshot %s: %w", s.snapshotPath, err)
	}

	for name, docs := range snapshot {
		c := s.collection(name)
		for _, doc := range docs {
			id, ok := doc.ID()
			if !ok {
				continue
			}
			c.docs[id] = doc
			if id >= c.nextID {
				c.nextID = id + 1
			}
		}
	}
	return nil
}
