package startup

import (
	"context"
	"os"
	"time"

	redisidentity "github.com/supportchat/internal/identity/redis"
	"github.com/supportchat/internal/logger"
)

// ConnectRedisWithRetry подключается к Redis-хранилищу идентификатора с повторами.
// logPrefix добавляется к сообщениям лога (например "customer: ").
func ConnectRedisWithRetry(redisURL string, maxWait time.Duration, logPrefix string) *redisidentity.Store {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		store, err := redisidentity.New(ctx, redisURL)
		cancel()
		if err != nil {
			if time.Now().After(deadline) {
				logger.Errorf("%sredis (gave up after %v): %v", logPrefix, maxWait, err)
				os.Exit(1)
			}
			logger.Errorf("%sredis connect failed, retry in %v: %v", logPrefix, backoff, err)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		return store
	}
}
