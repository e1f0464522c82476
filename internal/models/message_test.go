package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func thread() []Message {
	return []Message{
		{ID: uuid.New(), Body: "public 1"},
		{ID: uuid.New(), Body: "private 1", IsPrivate: true},
		{ID: uuid.New(), Body: "public 2"},
		{ID: uuid.New(), Body: "private 2", IsPrivate: true},
	}
}

func TestVisibleMessages(t *testing.T) {
	client := Principal{UserID: uuid.New(), Role: RoleClient}
	staff := Principal{UserID: uuid.New(), Role: RoleConsultant}

	tests := []struct {
		name        string
		principal   Principal
		hidePrivate bool
		want        int
	}{
		{"client with toggle off", client, false, 2},
		{"client with toggle on", client, true, 2},
		{"staff sees everything", staff, false, 4},
		{"staff hides private", staff, true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VisibleMessages(thread(), tt.principal, tt.hidePrivate)
			assert.Len(t, got, tt.want)
			if tt.principal.IsClient() {
				for _, m := range got {
					assert.False(t, m.IsPrivate)
				}
			}
		})
	}
}

func TestValidateBody(t *testing.T) {
	assert.True(t, errors.Is(ValidateBody(""), ErrEmptyBody))
	assert.True(t, errors.Is(ValidateBody("  \n\t"), ErrEmptyBody))
	assert.NoError(t, ValidateBody("Status update"))
}

func TestMessage_CanEdit(t *testing.T) {
	author := uuid.New()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := &Message{CreatedBy: &author, CreatedAt: now.Add(-5 * time.Minute)}

	assert.NoError(t, msg.CanEdit(Principal{UserID: author}, now))
	assert.True(t, errors.Is(msg.CanEdit(Principal{UserID: uuid.New()}, now), ErrNotMessageAuthor))
	assert.True(t, errors.Is(msg.CanEdit(Principal{UserID: author}, now.Add(time.Hour)), ErrEditWindowExpired))

	system := &Message{IsSystem: true}
	assert.True(t, errors.Is(system.CanEdit(Principal{UserID: author}, now), ErrSystemMessageFixed))
}

func TestMessage_CanDelete(t *testing.T) {
	author := uuid.New()
	msg := &Message{CreatedBy: &author}

	assert.NoError(t, msg.CanDelete(Principal{UserID: author, Role: RoleClient}))
	assert.NoError(t, msg.CanDelete(Principal{UserID: uuid.New(), Role: RoleAdmin}))
	assert.Error(t, msg.CanDelete(Principal{UserID: uuid.New(), Role: RoleConsultant}))
}

func TestMessageListFilter_SetDefaults(t *testing.T) {
	f := MessageListFilter{Page: 0}
	f.SetDefaults()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, MessagePageSize, f.PageSize)
	assert.Equal(t, 0, f.Offset())

	f = MessageListFilter{Page: 3, PageSize: 6}
	assert.Equal(t, 12, f.Offset())
}

func TestMessage_MinutesKey(t *testing.T) {
	minutes := 90
	raw, err := json.Marshal(Message{ID: uuid.New(), Body: "x", Minutes: &minutes})
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.EqualValues(t, 90, body["minutes"])
	assert.NotContains(t, body, "hours")

	var in CreateMessageInput
	require.NoError(t, json.Unmarshal([]byte(`{"body":"x","minutes":45}`), &in))
	require.NotNil(t, in.Minutes)
	assert.Equal(t, 45, *in.Minutes)
}
