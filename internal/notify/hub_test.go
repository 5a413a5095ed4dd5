package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akabaki/saas-ui/internal/models"
)

func TestHub_PublishAssignsIDAndTime(t *testing.T) {
	h := NewHub(0)
	n := h.Notify(models.LevelInfo, "Download started", "Downloading a.json", 3*time.Second)

	assert.NotEmpty(t, n.ID)
	assert.False(t, n.CreatedAt.IsZero())
	assert.Equal(t, int64(3000), n.DurationMs)
	assert.Equal(t, []models.Notification{n}, h.Recent())
}

func TestHub_RecentIsBounded(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Notify(models.LevelInfo, fmt.Sprint(i), "", 0)
	}

	recent := h.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, "2", recent[0].Title)
	assert.Equal(t, "4", recent[2].Title)
}

func TestHub_RecentReturnsCopy(t *testing.T) {
	h := NewHub(2)
	h.Notify(models.LevelInfo, "a", "", 0)

	r := h.Recent()
	r[0].Title = "changed"
	assert.Equal(t, "a", h.Recent()[0].Title)
}

func TestHub_Subscribe(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe(4)
	assert.Equal(t, 1, h.SubscriberCount())

	h.Notify(models.LevelSuccess, "Conversion completed", "", 5*time.Second)

	select {
	case n := <-ch:
		assert.Equal(t, "Conversion completed", n.Title)
		assert.Equal(t, models.LevelSuccess, n.Level)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}

	cancel()
	cancel()
	assert.Equal(t, 0, h.SubscriberCount())
	_, open := <-ch
	assert.False(t, open)
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			h.Notify(models.LevelInfo, fmt.Sprint(i), "", 0)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, "0", (<-ch).Title)
	assert.Len(t, h.Recent(), 5)
}
