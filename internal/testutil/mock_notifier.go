package testutil

import (
	"sync"
	"time"

	"github.com/akabaki/saas-ui/internal/models"
)

// MockNotifier records every notification it is asked to deliver
type MockNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Notify(level models.NotificationLevel, title, description string, duration time.Duration) models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := models.Notification{
		ID:          generateTestID(),
		Level:       level,
		Title:       title,
		Description: description,
		DurationMs:  duration.Milliseconds(),
		CreatedAt:   time.Now(),
	}
	m.sent = append(m.sent, n)
	return n
}

// Sent returns a copy of the recorded notifications
func (m *MockNotifier) Sent() []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Notification(nil), m.sent...)
}

// Titles returns the recorded titles in order
func (m *MockNotifier) Titles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	titles := make([]string, len(m.sent))
	for i, n := range m.sent {
		titles[i] = n.Title
	}
	return titles
}
