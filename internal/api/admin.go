package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/supportchat/internal/model"
)

// OTPGrant — результат запроса кода: токен сессии и dev-эхо кода
// (в production бэкенд отправляет код во внешний канал и поле пустое).
type OTPGrant struct {
	Token string
	OTP   string
}

// RequestOTP запрашивает одноразовый код для входа администратора.
func (c *Client) RequestOTP(ctx context.Context) (*OTPGrant, error) {
	var resp struct {
		envelope
		Token string `json:"token"`
		OTP   string `json:"otp,omitempty"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/admin/request-otp", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("request otp: %s", resp.Error)
	}
	return &OTPGrant{Token: resp.Token, OTP: resp.OTP}, nil
}

// VerifyOTP проверяет код и возвращает авторизованный токен.
// Токен НЕ сохраняется в клиенте автоматически — это делает контроллер сессии.
func (c *Client) VerifyOTP(ctx context.Context, otp, token string) (string, error) {
	body := map[string]string{"otp": otp, "token": token}
	var resp struct {
		envelope
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/admin/verify-otp", body, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("verify otp: %s", resp.Error)
	}
	if resp.Token == "" {
		resp.Token = token
	}
	return resp.Token, nil
}

// ListUsers возвращает список пользователей с последним сообщением и счётчиком.
func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	var resp struct {
		envelope
		Users []model.User `json:"users"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/admin/users", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("list users: %s", resp.Error)
	}
	return resp.Users, nil
}

// FetchStats возвращает сводные счётчики панели.
func (c *Client) FetchStats(ctx context.Context) (*model.Stats, error) {
	var resp struct {
		envelope
		Stats model.Stats `json:"stats"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/admin/stats", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("stats: %s", resp.Error)
	}
	return &resp.Stats, nil
}

// DeleteUser удаляет пользователя вместе с историей и файлами.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/admin/users/"+userID, nil, nil)
}

// Logout завершает админ-сессию на сервере. Локальный токен сбрасывает вызывающий.
func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/admin/logout", nil, nil)
}
