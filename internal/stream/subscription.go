package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/supportchat/internal/logger"
	"github.com/supportchat/internal/model"
)

const maxEventSize = 1 << 20 // один SSE-кадр не больше 1 MB

// Subscription — одно долгоживущее соединение /api/stream/{userId}.
type Subscription struct {
	userID         string
	url            string
	httpClient     *http.Client
	handler        Handler
	reconnectDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// run держит соединение открытым и переподключается после обрыва с фиксированной
// задержкой, пока подписку не закрыли.
func (s *Subscription) run() {
	defer close(s.done)
	for {
		err := s.consume()
		if s.ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Errorf("stream %s: %v (reconnect in %v)", s.userID, err, s.reconnectDelay)
		}
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Subscription) consume() error {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	for sc.Scan() {
		line := sc.Text()
		// Формат SSE: интересны только строки data:, пустые строки разделяют события
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		var probe struct {
			Type string `json:"type"`
		}
		if json.Unmarshal([]byte(data), &probe) == nil && probe.Type == "ping" {
			// keep-alive, не сообщение
			logger.Debugf("stream %s: ping", s.userID)
			continue
		}
		var msg model.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			logger.Errorf("stream %s: bad event: %v", s.userID, err)
			continue
		}
		s.handler(msg)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream closed by server")
}
