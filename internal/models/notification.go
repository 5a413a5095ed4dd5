package models

import "time"

// NotificationLevel is the severity of a user-facing notification.
type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelSuccess NotificationLevel = "success"
	LevelWarning NotificationLevel = "warning"
	LevelError   NotificationLevel = "error"
)

// Notification is a transient message reporting the outcome of an action.
type Notification struct {
	ID          string            `json:"id"`
	Level       NotificationLevel `json:"level"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	DurationMs  int64             `json:"durationMs"` // auto-dismiss
	CreatedAt   time.Time         `json:"createdAt"`
}
