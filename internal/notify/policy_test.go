package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"nextslot/internal/models"
)

func TestResolvePolicy(t *testing.T) {
	enabled := &models.NotificationPreferences{PushEnabled: true}
	eventOff := &models.NotificationPreferences{
		PushEnabled: true,
		Events:      map[models.NotificationEvent]bool{models.EventReminder: false},
	}
	masterOff := &models.NotificationPreferences{PushEnabled: false}

	tests := []struct {
		name    string
		prefs   *models.NotificationPreferences
		readErr error
		event   models.NotificationEvent
		want    Decision
	}{
		{"no record allows", nil, nil, models.EventConfirmed, Allow},
		{"record with no toggles allows", enabled, nil, models.EventConfirmed, Allow},
		{"event toggled off denies", eventOff, nil, models.EventReminder, Deny},
		{"other events unaffected", eventOff, nil, models.EventConfirmed, Allow},
		{"master toggle denies everything", masterOff, nil, models.EventConfirmed, Deny},
		{"read error fails open", nil, errors.New("store down"), models.EventConfirmed, FailOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolvePolicy(tt.prefs, tt.readErr, tt.event)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecisionShouldSend(t *testing.T) {
	assert.True(t, Allow.ShouldSend())
	assert.True(t, FailOpen.ShouldSend())
	assert.False(t, Deny.ShouldSend())
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("dana@example.com"))
	assert.True(t, ValidEmail("Dana <dana@example.com>"))
	assert.False(t, ValidEmail(""))
	assert.False(t, ValidEmail("not-an-address"))
}
