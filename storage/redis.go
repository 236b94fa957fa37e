package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "genie:dialog:"

// RedisStorage keeps each dialog context as one JSON value that expires
// after ttl of inactivity.
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
}

func ConnectRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

func NewRedisStorage(client *redis.Client, ttl time.Duration) *RedisStorage {
	return &RedisStorage{client: client, ttl: ttl}
}

func redisKey(userId int64) string {
	return redisKeyPrefix + strconv.FormatInt(userId, 10)
}

func (r *RedisStorage) GetUserContext(userId int64) (*DialogContext, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := r.client.Get(ctx, redisKey(userId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading context: %w", err)
	}

	var dc DialogContext
	if err := json.Unmarshal(data, &dc); err != nil {
		return nil, fmt.Errorf("decoding context: %w", err)
	}
	return &dc, nil
}

func (r *RedisStorage) save(dc *DialogContext) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(dc)
	if err != nil {
		return fmt.Errorf("encoding context: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(dc.UserId), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("saving context: %w", err)
	}
	return nil
}

func (r *RedisStorage) UpdateUserContext(userId int64, message Message) error {
	dc, err := r.GetUserContext(userId)
	if err != nil {
		return err
	}
	if dc == nil {
		dc = &DialogContext{UserId: userId}
	}
	appendMessage(dc, message)
	return r.save(dc)
}

func (r *RedisStorage) SetTopic(userId int64, topic string) error {
	dc, err := r.GetUserContext(userId)
	if err != nil {
		return err
	}
	if dc == nil {
		dc = &DialogContext{UserId: userId, Messages: []Message{}}
	}
	dc.Topic = topic
	dc.UpdatedAt = time.Now()
	return r.save(dc)
}

func (r *RedisStorage) ClearUserContext(userId int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Del(ctx, redisKey(userId)).Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
