// Package redis wraps the go-redis client with the small set of operations
// the publish bridge needs: hash writes (with optional publish fan-out) and
// a blocking command-list pop.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client represents a Redis client with hash-write and publish capabilities
type Client struct {
	client *redis.Client
	ctx    context.Context
}

// New creates a new Redis client
func New(addr string, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		client: client,
		ctx:    ctx,
	}, nil
}

// WriteString writes a string value to Redis
func (c *Client) WriteString(key, field, value string) error {
	return c.client.HSet(c.ctx, key, field, value).Err()
}

// WriteAndPublishString writes a string value to Redis and publishes the
// field name on the key's channel
func (c *Client) WriteAndPublishString(key, field, value string) error {
	pipe := c.client.Pipeline()
	pipe.HSet(c.ctx, key, field, value)
	pipe.Publish(c.ctx, key, field)
	_, err := pipe.Exec(c.ctx)
	return err
}

// WriteBytes writes a raw byte slice to a hash field, used for CBOR-encoded
// spectrum snapshots.
func (c *Client) WriteBytes(key, field string, value []byte) error {
	return c.client.HSet(c.ctx, key, field, value).Err()
}

// WriteAndPublishInt writes an integer value to Redis and publishes the
// field name on the key's channel
func (c *Client) WriteAndPublishInt(key, field string, value int) error {
	pipe := c.client.Pipeline()
	pipe.HSet(c.ctx, key, field, value)
	pipe.Publish(c.ctx, key, field)
	_, err := pipe.Exec(c.ctx)
	return err
}

// BRPop performs a blocking right pop (BRPOP) on a Redis list.
// It waits for up to 'timeout'. If timeout is 0, it blocks indefinitely.
func (c *Client) BRPop(timeout time.Duration, key string) ([]string, error) {
	result, err := c.client.BRPop(c.ctx, timeout, key).Result()
	if err != nil {
		// redis.Nil indicates a timeout occurred, which is not necessarily an error in blocking operations
		if err == redis.Nil {
			return nil, nil
		}
		log.Printf("Error during BRPOP on key %s: %v", key, err)
		return nil, err
	}
	if len(result) != 2 {
		log.Printf("Unexpected result length from BRPOP on key %s: %d", key, len(result))
		return nil, fmt.Errorf("unexpected result from BRPOP: %v", result)
	}
	return result, nil
}

// Close closes the Redis client connection
func (c *Client) Close() error {
	return c.client.Close()
}
