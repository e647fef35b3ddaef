package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/feedcore/config"
)

// NewClient 构建主 redis 客户端并做一次连通性探测
func NewClient(cfg *config.Config) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewShardClients 为时间线分片实例建客户端；未配置时返回空切片
func NewShardClients(cfg *config.Config) ([]*redis.Client, error) {
	out := make([]*redis.Client, 0, len(cfg.Redis.Shards))
	for _, addr := range cfg.Redis.Shards {
		c := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := c.Ping(ctx).Err()
		cancel()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
