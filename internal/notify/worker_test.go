package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/afterdarksys/servicedesk/internal/models"
)

type fakeQueue struct {
	pending []models.Notification
	sent    []uuid.UUID
	failed  map[uuid.UUID]string
}

func (q *fakeQueue) ClaimPending(_ context.Context, limit int) ([]models.Notification, error) {
	if len(q.pending) > limit {
		return q.pending[:limit], nil
	}
	return q.pending, nil
}

func (q *fakeQueue) MarkSent(_ context.Context, id uuid.UUID) error {
	q.sent = append(q.sent, id)
	return nil
}

func (q *fakeQueue) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	if q.failed == nil {
		q.failed = map[uuid.UUID]string{}
	}
	q.failed[id] = reason
	return nil
}

type fakeSender struct {
	fail map[string]bool
	to   []string
}

func (s *fakeSender) Send(_ context.Context, to, _, _ string) error {
	s.to = append(s.to, to)
	if s.fail[to] {
		return errors.New("mailbox unavailable")
	}
	return nil
}

func TestProcessOnce(t *testing.T) {
	ok := models.Notification{ID: uuid.New(), Email: "ana@example.com", Subject: "s", BodyText: "b"}
	bad := models.Notification{ID: uuid.New(), Email: "bounce@example.com", Subject: "s", BodyText: "b"}
	queue := &fakeQueue{pending: []models.Notification{ok, bad}}
	sender := &fakeSender{fail: map[string]bool{"bounce@example.com": true}}

	w := NewWorker(queue, sender, zap.NewNop(), 0, 10)
	sent, failed, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []uuid.UUID{ok.ID}, queue.sent)
	assert.Equal(t, "mailbox unavailable", queue.failed[bad.ID])
}

func TestProcessOnce_RespectsBatchSize(t *testing.T) {
	queue := &fakeQueue{}
	for i := 0; i < 5; i++ {
		queue.pending = append(queue.pending, models.Notification{ID: uuid.New(), Email: "x@example.com"})
	}
	sender := &fakeSender{}

	w := NewWorker(queue, sender, zap.NewNop(), 0, 2)
	sent, _, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Len(t, sender.to, 2)
}

func TestProcessOnce_StopsWhenCancelled(t *testing.T) {
	queue := &fakeQueue{pending: []models.Notification{{ID: uuid.New(), Email: "x@example.com"}}}
	sender := &fakeSender{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWorker(queue, sender, zap.NewNop(), 0, 10)
	_, _, err := w.ProcessOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sender.to)
}

func TestMessageMail(t *testing.T) {
	ticket := &models.Ticket{
		ID:         uuid.MustParse("6f1c1a52-3a0e-4a55-9d55-1b2b6a1d9c01"),
		ExternalID: "SC-2026-00042",
		Title:      "Printer offline",
		Status:     models.StatusInAttendance.Info(),
	}
	paused := models.StatusPausedByRequester
	msg := &models.Message{
		Body:     "  Waiting on the vendor  ",
		StatusID: &paused,
		Author:   &models.UserSummary{FullName: "Ana Souza"},
	}

	subject, body := MessageMail(ticket, msg, "https://desk.example.com/")
	assert.Equal(t, "[SC-2026-00042] Printer offline", subject)
	assert.Contains(t, body, "Ana Souza wrote on ticket SC-2026-00042:")
	assert.Contains(t, body, "Waiting on the vendor\n")
	assert.Contains(t, body, "Requested status: Pausado pelo solicitante")
	assert.Contains(t, body, "https://desk.example.com/tickets/6f1c1a52-3a0e-4a55-9d55-1b2b6a1d9c01")
}
