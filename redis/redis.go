package redis

import (
	"context"

	"github.com/Eppu/micro-poll/configure"
	"github.com/go-redis/redis/v8"
)

var Ctx = context.Background()

var Client *redis.Client

func init() {
	options, err := redis.ParseURL(configure.Config.GetString("redis_uri"))
	if err != nil {
		panic(err)
	}

	Client = redis.NewClient(options)
}

type Message = redis.Message

const ErrNil = redis.Nil

type Pipeliner = redis.Pipeliner

type PubSub = redis.PubSub
