package model

import "time"

type User struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	LastSeen    time.Time `json:"last_seen"`
	UnreadCount int       `json:"message_count"`
	LastMessage *Message  `json:"last_message,omitempty"`
}

type Stats struct {
	TotalMessages     int `json:"total_messages"`
	TotalUsers        int `json:"total_users"`
	ActiveConnections int `json:"active_connections"`
}
