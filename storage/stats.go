package storage

import (
	"time"

	"github.com/go-redis/redis/v7"
)

// Stats keeps daily visit counters. Unlike room state this is telemetry, it
// lives in redis and survives restarts.
type Stats interface {
	IncrVisits() (int64, error)
	VisitsByDate(date time.Time) (int64, error)
}

type redisStats struct {
	rdb *redis.Client
}

func NewStats(rdb *redis.Client) Stats {
	return &redisStats{rdb: rdb}
}

func (s *redisStats) IncrVisits() (int64, error) {
	return s.rdb.Incr("visits:" + time.Now().Format("02.01.06")).Result()
}

func (s *redisStats) VisitsByDate(date time.Time) (int64, error) {
	return s.rdb.Get("visits:" + date.Format("02.01.06")).Int64()
}
