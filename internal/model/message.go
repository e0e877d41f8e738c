package model

import "time"

type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderAdmin    SenderType = "admin"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVoice MessageType = "voice"
)

// DeliveryStatus — локальный статус исходящего сообщения относительно сервера.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryConfirmed DeliveryStatus = "confirmed"
	DeliveryFailed    DeliveryStatus = "failed"
)

type Message struct {
	ID          int64       `json:"id,omitempty"`
	UserID      string      `json:"user_id"`
	SenderType  SenderType  `json:"sender_type"`
	MessageType MessageType `json:"message_type"`
	Content     string      `json:"content"`
	CreatedAt   time.Time   `json:"created_at"`
}
