package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/palemoky/tetris-battle/internal/config"
)

const countersCollection = "_counters"

// MongoStore MongoDB 文档存储：每个集合对应一个 Mongo 集合，_id 与 id 相同
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore 连接 MongoDB 并校验可用
func NewMongoStore(ctx context.Context, cfg config.MongoConfig) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Client().ApplyURI(cfg.URL).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	if cfg.MinPoolSize > 0 {
		opts.SetMinPoolSize(uint64(cfg.MinPoolSize))
	}
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb 连接错误: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb Ping 错误: %w", err)
	}

	return &MongoStore{client: client, db: client.Database(cfg.Database)}, nil
}

func toBSONFilter(filter Filter) bson.M {
	m := bson.M{}
	for k, v := range filter {
		m[k] = normalizeValue(v)
	}
	return m
}

// fromBSON 去掉 _id 并规范化为 JSON 兼容值
func fromBSON(m bson.M) (Document, error) {
	delete(m, "_id")
	return normalizeDoc(Document(m))
}

func (ms *MongoStore) nextID(ctx context.Context, collection string) (int, error) {
	var counter struct {
		Seq int `bson:"seq"`
	}
	err := ms.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": collection},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

func (ms *MongoStore) Create(ctx context.Context, collection string, doc Document) (Document, error) {
	stored, err := normalizeDoc(doc)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		stored = Document{}
	}

	id, explicit := stored.ID()
	if explicit {
		_, err := ms.db.Collection(countersCollection).UpdateOne(ctx,
			bson.M{"_id": collection},
			bson.M{"$max": bson.M{"seq": id}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return nil, err
		}
	} else {
		if id, err = ms.nextID(ctx, collection); err != nil {
			return nil, err
		}
		stored["id"] = float64(id)
	}

	record := bson.M{"_id": id}
	for k, v := range stored {
		record[k] = v
	}
	if _, err := ms.db.Collection(collection).InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrIDExists
		}
		return nil, err
	}
	return stored, nil
}

func (ms *MongoStore) Read(ctx context.Context, collection string, filter Filter) (Document, error) {
	var m bson.M
	err := ms.db.Collection(collection).FindOne(ctx, toBSONFilter(filter),
		options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}}),
	).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromBSON(m)
}

func (ms *MongoStore) Query(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	cursor, err := ms.db.Collection(collection).Find(ctx, toBSONFilter(filter),
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []Document{}
	for cursor.Next(ctx) {
		var m bson.M
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		doc, err := fromBSON(m)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, cursor.Err()
}

func (ms *MongoStore) Update(ctx context.Context, collection string, filter Filter, set Document) (int, error) {
	patch, err := normalizeDoc(set)
	if err != nil {
		return 0, err
	}
	if len(patch) == 0 {
		n, err := ms.db.Collection(collection).CountDocuments(ctx, toBSONFilter(filter))
		return int(n), err
	}
	res, err := ms.db.Collection(collection).UpdateMany(ctx, toBSONFilter(filter), bson.M{"$set": bson.M(patch)})
	if err != nil {
		return 0, err
	}
	return int(res.MatchedCount), nil
}

func (ms *MongoStore) Delete(ctx context.Context, collection string, filter Filter) (int, error) {
	res, err := ms.db.Collection(collection).DeleteMany(ctx, toBSONFilter(filter))
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (ms *MongoStore) Reset(ctx context.Context) error {
	return ms.db.Drop(ctx)
}

func (ms *MongoStore) Close() error {
	return ms.client.Disconnect(context.Background())
}
