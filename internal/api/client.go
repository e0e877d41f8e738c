// Package api — REST-клиент внешнего бэкенда поддержки.
// Все сетевые ошибки возвращаются вызывающему; клиент никогда не завершает процесс.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/supportchat/internal/logger"
	"github.com/supportchat/internal/model"
)

var (
	// ErrUnauthorized — сервер отверг X-Admin-Token (401): нужен повторный вход.
	ErrUnauthorized = errors.New("unauthorized")
)

// MediaKind — вид загружаемого файла: путь /api/files/upload/{kind}.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVoice MediaKind = "voice"
)

// Client вызывает REST-эндпоинты бэкенда. Админ-токен хранится только в памяти
// и прикладывается к привилегированным запросам заголовком X-Admin-Token.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu         sync.RWMutex
	adminToken string
}

// NewClient создаёт клиент для baseURL (без завершающего /).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL возвращает адрес бэкенда (для SSE-подключений).
func (c *Client) BaseURL() string { return c.baseURL }

// SetAdminToken задаёт токен для привилегированных запросов. Пустая строка сбрасывает.
func (c *Client) SetAdminToken(token string) {
	c.mu.Lock()
	c.adminToken = token
	c.mu.Unlock()
}

// AdminToken возвращает текущий токен ("" — не авторизован).
func (c *Client) AdminToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.adminToken
}

// envelope — общая обёртка ответов бэкенда.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Request-Id", uuid.New().String())
	if token := c.AdminToken(); token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	return req, nil
}

// doJSON выполняет запрос с JSON-телом и декодирует ответ в out (если out != nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	defer logger.DeferLogDuration("api "+method+" "+path, time.Now())()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		var env envelope
		if json.NewDecoder(resp.Body).Decode(&env) == nil && env.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, env.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// RegisterUser регистрирует (или подтверждает) пользователя: идемпотентный upsert.
func (c *Client) RegisterUser(ctx context.Context, userID, name string) error {
	body := map[string]string{"user_id": userID, "name": name}
	var env envelope
	if err := c.doJSON(ctx, http.MethodPost, "/api/users", body, &env); err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("register: %s", env.Error)
	}
	return nil
}

// FetchMessages возвращает полную историю пользователя, от старых к новым.
func (c *Client) FetchMessages(ctx context.Context, userID string) ([]model.Message, error) {
	var resp struct {
		envelope
		Messages []model.Message `json:"messages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/messages/"+userID, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("fetch messages: %s", resp.Error)
	}
	return resp.Messages, nil
}

// SendMessage отправляет текстовое сообщение от имени senderType.
func (c *Client) SendMessage(ctx context.Context, userID string, senderType model.SenderType, msgType model.MessageType, content string) error {
	body := map[string]string{
		"user_id":      userID,
		"sender_type":  string(senderType),
		"message_type": string(msgType),
		"content":      content,
	}
	var env envelope
	if err := c.doJSON(ctx, http.MethodPost, "/api/messages", body, &env); err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("send message: %s", env.Error)
	}
	return nil
}

// UploadMedia загружает файл multipart-запросом (поле file + user_id + sender_type).
// Ответ не обязан содержать итоговую запись сообщения: вызывающий перечитывает
// историю или ждёт событие из потока.
func (c *Client) UploadMedia(ctx context.Context, kind MediaKind, userID string, senderType model.SenderType, filename string, r io.Reader) error {
	defer logger.DeferLogDuration("api upload "+string(kind), time.Now())()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return fmt.Errorf("upload read: %w", err)
	}
	if err := mw.WriteField("user_id", userID); err != nil {
		return err
	}
	if err := mw.WriteField("sender_type", string(senderType)); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/files/upload/"+string(kind), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var env envelope
		if json.NewDecoder(resp.Body).Decode(&env) == nil && env.Error != "" {
			return fmt.Errorf("upload %s: %s", kind, env.Error)
		}
		return fmt.Errorf("upload %s: status %d", kind, resp.StatusCode)
	}
	return nil
}
