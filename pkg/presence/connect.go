package presence

import (
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
)

// Connect builds a Redis client from REDIS_ADDR, falling back to
// REDIS_HOST/REDIS_PORT, then localhost:6379.
func Connect() *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		host := os.Getenv("REDIS_HOST")
		port := os.Getenv("REDIS_PORT")
		if host != "" && port != "" {
			addr = fmt.Sprintf("%s:%s", host, port)
		} else {
			addr = "localhost:6379"
		}
	}

	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})
}
