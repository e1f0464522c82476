package workflow

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterdarksys/servicedesk/internal/client"
	"github.com/afterdarksys/servicedesk/internal/models"
)

// fakeAPI records calls in order and fails the ones named in fail. Once the
// ticket is finalized it refuses attachments and hours.
type fakeAPI struct {
	mu        sync.Mutex
	calls     []string
	fail      map[string]error
	finalized bool

	setStatus func(status models.StatusID) (*models.Ticket, bool, error)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{fail: map[string]error{}}
}

func (f *fakeAPI) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.fail[name]
}

func (f *fakeAPI) GetTicket(_ context.Context, id uuid.UUID) (*models.Ticket, error) {
	if err := f.record("GetTicket"); err != nil {
		return nil, err
	}
	return &models.Ticket{ID: id, Status: models.StatusOpen.Info()}, nil
}

func (f *fakeAPI) SetStatus(_ context.Context, id uuid.UUID, s models.StatusID) (*models.Ticket, bool, error) {
	if err := f.record("SetStatus"); err != nil {
		return nil, false, err
	}
	if s == models.StatusFinalized {
		f.mu.Lock()
		f.finalized = true
		f.mu.Unlock()
	}
	if f.setStatus != nil {
		return f.setStatus(s)
	}
	return &models.Ticket{ID: id, Status: s.Info()}, true, nil
}

func (f *fakeAPI) EditCategorization(_ context.Context, kind models.ProjectKind, id uuid.UUID, field models.CategorizationField, valueID int) (*models.Ticket, error) {
	if err := f.record("EditCategorization:" + kind.RouteSegment()); err != nil {
		return nil, err
	}
	return &models.Ticket{ID: id, Category: &models.Lookup{ID: valueID}}, nil
}

func (f *fakeAPI) CreateMessage(_ context.Context, in *models.CreateMessageInput) (*models.Message, error) {
	if err := f.record("CreateMessage"); err != nil {
		return nil, err
	}
	return &models.Message{ID: uuid.New(), TicketID: in.TicketID, Body: in.Body, Minutes: in.Minutes}, nil
}

func (f *fakeAPI) ListMessages(context.Context, client.MessageQuery) (*models.Page[models.Message], error) {
	if err := f.record("ListMessages"); err != nil {
		return nil, err
	}
	p := models.NewPage([]models.Message{}, 1, 6, 0)
	return &p, nil
}

func (f *fakeAPI) refuseFinalized() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalized {
		return &client.APIError{StatusCode: http.StatusForbidden, Message: "ticket is finalized"}
	}
	return nil
}

func (f *fakeAPI) DeleteMessage(context.Context, uuid.UUID) error {
	return f.record("DeleteMessage")
}

func (f *fakeAPI) UploadAttachment(_ context.Context, up client.AttachmentUpload) (*models.Attachment, error) {
	if err := f.record("UploadAttachment"); err != nil {
		return nil, err
	}
	if err := f.refuseFinalized(); err != nil {
		return nil, err
	}
	return &models.Attachment{ID: uuid.New(), MessageID: up.MessageID, Name: up.Name, AttType: up.AttType}, nil
}

func (f *fakeAPI) ListResources(context.Context, uuid.UUID) ([]models.TicketResource, error) {
	return nil, f.record("ListResources")
}

func (f *fakeAPI) LinkResource(_ context.Context, ticketID, userID uuid.UUID) ([]models.TicketResource, error) {
	return []models.TicketResource{{TicketID: ticketID, UserID: userID}}, f.record("LinkResource")
}

func (f *fakeAPI) UnlinkResource(context.Context, uuid.UUID, uuid.UUID) ([]models.TicketResource, error) {
	return []models.TicketResource{}, f.record("UnlinkResource")
}

func (f *fakeAPI) SetMainResource(_ context.Context, ticketID, userID uuid.UUID, isMain bool) ([]models.TicketResource, error) {
	return []models.TicketResource{{TicketID: ticketID, UserID: userID, IsMain: isMain}}, f.record("SetMainResource")
}

func (f *fakeAPI) LogHours(_ context.Context, in *models.CreateHourInput) (*models.TicketHour, error) {
	if err := f.record("LogHours"); err != nil {
		return nil, err
	}
	if err := f.refuseFinalized(); err != nil {
		return nil, err
	}
	return &models.TicketHour{ID: uuid.New(), TicketID: in.TicketID, Minutes: *in.Minutes}, nil
}

func (f *fakeAPI) ListHours(context.Context, client.HourQuery) (*client.HourList, error) {
	if err := f.record("ListHours"); err != nil {
		return nil, err
	}
	return &client.HourList{}, nil
}

var (
	consultant = models.Principal{UserID: uuid.New(), Role: models.RoleConsultant}
	functional = models.Principal{UserID: uuid.New(), Role: models.RoleFunctional}
	partnerID  = uuid.New()
	requester  = models.Principal{UserID: uuid.New(), Role: models.RoleClient, PartnerID: &partnerID}
)

func ticketIn(status models.StatusID) *models.Ticket {
	return &models.Ticket{
		ID:          uuid.New(),
		Status:      status.Info(),
		ProjectKind: models.ProjectKindAMS,
		PartnerID:   &partnerID,
	}
}

func statusPtr(s models.StatusID) *models.StatusID { return &s }

func TestPostMessage_StatusBearingMessageMakesTwoCalls(t *testing.T) {
	api := newFakeAPI()
	var refreshed uuid.UUID
	c := New(api, consultant, nil, WithOnMessageSent(func(_ context.Context, id uuid.UUID) { refreshed = id }))
	ticket := ticketIn(models.StatusOpen)

	msg, err := c.PostMessage(context.Background(), ticket, MessageDraft{Body: "starting", StatusID: statusPtr(models.StatusInAttendance)})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, []string{"CreateMessage", "SetStatus"}, api.calls)
	assert.Equal(t, ticket.ID, refreshed)
}

func TestPostMessage_SameStatusSkipsStatusCall(t *testing.T) {
	api := newFakeAPI()
	c := New(api, consultant, nil)

	_, err := c.PostMessage(context.Background(), ticketIn(models.StatusInAttendance), MessageDraft{Body: "note", StatusID: statusPtr(models.StatusInAttendance)})
	require.NoError(t, err)
	assert.Equal(t, []string{"CreateMessage"}, api.calls)
}

func TestPostMessage_FailedMessageStopsEverything(t *testing.T) {
	api := newFakeAPI()
	api.fail["CreateMessage"] = &client.APIError{StatusCode: http.StatusInternalServerError}
	called := false
	c := New(api, consultant, nil, WithOnMessageSent(func(context.Context, uuid.UUID) { called = true }))

	est := decimal.NewFromInt(3)
	_, err := c.PostMessage(context.Background(), ticketIn(models.StatusOpen), MessageDraft{
		Body:     "starting",
		StatusID: statusPtr(models.StatusInAttendance),
		Hours:    &models.HourEntry{Date: "2024-05-02", Start: "09:00", End: "10:00"},
		Attachments: []StagedAttachment{
			{Name: "spec.pdf", Content: strings.NewReader("x"), AttType: models.AttachmentTypeSpecification, EstimatedHours: &est},
		},
	})
	require.Error(t, err)

	var stepErr *StepError
	assert.False(t, errors.As(err, &stepErr))
	assert.Equal(t, []string{"CreateMessage"}, api.calls)
	assert.False(t, called)
}

func TestPostMessage_FailedStatusRemovesMessage(t *testing.T) {
	api := newFakeAPI()
	api.fail["SetStatus"] = &client.APIError{StatusCode: http.StatusConflict, Message: "invalid status transition"}
	c := New(api, consultant, nil)

	msg, err := c.PostMessage(context.Background(), ticketIn(models.StatusOpen), MessageDraft{
		Body:     "starting",
		StatusID: statusPtr(models.StatusInAttendance),
		Hours:    &models.HourEntry{Date: "2024-05-02", Start: "09:00", End: "10:00"},
	})
	assert.Nil(t, msg)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepStatus, stepErr.Step)
	assert.True(t, stepErr.Compensated)
	assert.Empty(t, stepErr.Committed)
	assert.True(t, client.IsStatus(err, http.StatusConflict))
	assert.Equal(t, []string{"CreateMessage", "SetStatus", "DeleteMessage"}, api.calls)
}

func TestPostMessage_FailedCompensationKeepsMessage(t *testing.T) {
	api := newFakeAPI()
	api.fail["SetStatus"] = errors.New("timeout")
	api.fail["DeleteMessage"] = errors.New("timeout")
	c := New(api, consultant, nil)

	msg, err := c.PostMessage(context.Background(), ticketIn(models.StatusOpen), MessageDraft{Body: "x", StatusID: statusPtr(models.StatusInAttendance)})
	require.NotNil(t, msg)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.False(t, stepErr.Compensated)
	assert.Equal(t, []Step{StepMessage}, stepErr.Committed)
}

func TestPostMessage_FullSequence(t *testing.T) {
	api := newFakeAPI()
	c := New(api, consultant, nil)

	est := decimal.RequireFromString("1.5")
	msg, err := c.PostMessage(context.Background(), ticketIn(models.StatusOpen), MessageDraft{
		Body:     "done for today",
		StatusID: statusPtr(models.StatusInAttendance),
		Hours:    &models.HourEntry{Date: "2024-05-02", Start: "09:15", End: "11:00"},
		Attachments: []StagedAttachment{
			{Name: "log.txt", Content: strings.NewReader("a"), AttType: models.AttachmentTypeEvidence},
			{Name: "spec.pdf", Content: strings.NewReader("b"), AttType: models.AttachmentTypeSpecification, EstimatedHours: &est},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"CreateMessage", "SetStatus", "UploadAttachment", "UploadAttachment", "LogHours"}, api.calls)
	assert.Len(t, msg.Attachments, 2)
	require.NotNil(t, msg.Minutes)
	assert.Equal(t, 105, *msg.Minutes)
}

func TestPostMessage_AttachmentFailureKeepsEarlierSteps(t *testing.T) {
	api := newFakeAPI()
	api.fail["UploadAttachment"] = errors.New("too large")
	c := New(api, consultant, nil)

	msg, err := c.PostMessage(context.Background(), ticketIn(models.StatusOpen), MessageDraft{
		Body:        "see attached",
		StatusID:    statusPtr(models.StatusClosureRequested),
		Hours:       &models.HourEntry{Date: "2024-05-02", Start: "09:00", End: "10:00"},
		Attachments: []StagedAttachment{{Name: "big.iso", Content: strings.NewReader("x"), AttType: models.AttachmentTypeOther}},
	})
	require.NotNil(t, msg)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepAttachment, stepErr.Step)
	assert.Equal(t, []Step{StepMessage, StepStatus}, stepErr.Committed)
	assert.NotContains(t, api.calls, "LogHours")
	assert.NotContains(t, api.calls, "DeleteMessage")
}

func TestPostMessage_FinalizingWithHoursLogsHoursFirst(t *testing.T) {
	api := newFakeAPI()
	c := New(api, consultant, nil)

	msg, err := c.PostMessage(context.Background(), ticketIn(models.StatusInAttendance), MessageDraft{
		Body:     "closing, last session",
		StatusID: statusPtr(models.StatusFinalized),
		Hours:    &models.HourEntry{Date: "2024-05-02", Start: "14:00", End: "15:30"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"CreateMessage", "LogHours", "SetStatus"}, api.calls)
	require.NotNil(t, msg.Minutes)
	assert.Equal(t, 90, *msg.Minutes)
}

func TestPostMessage_FinalizingWithAttachmentsAndHours(t *testing.T) {
	api := newFakeAPI()
	c := New(api, consultant, nil)

	est := decimal.NewFromInt(2)
	msg, err := c.PostMessage(context.Background(), ticketIn(models.StatusOpen), MessageDraft{
		Body:     "delivered",
		StatusID: statusPtr(models.StatusFinalized),
		Hours:    &models.HourEntry{Date: "2024-05-02", Start: "09:00", End: "10:00"},
		Attachments: []StagedAttachment{
			{Name: "evidence.png", Content: strings.NewReader("a"), AttType: models.AttachmentTypeEvidence},
			{Name: "spec.pdf", Content: strings.NewReader("b"), AttType: models.AttachmentTypeSpecification, EstimatedHours: &est},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"CreateMessage", "UploadAttachment", "UploadAttachment", "LogHours", "SetStatus"}, api.calls)
	assert.Len(t, msg.Attachments, 2)
	assert.True(t, api.finalized)
}

func TestPostMessage_FailedFinalizeRemovesMessage(t *testing.T) {
	api := newFakeAPI()
	api.fail["SetStatus"] = &client.APIError{StatusCode: http.StatusConflict, Message: "invalid status transition"}
	sent := false
	c := New(api, consultant, nil, WithOnMessageSent(func(context.Context, uuid.UUID) { sent = true }))

	msg, err := c.PostMessage(context.Background(), ticketIn(models.StatusInAttendance), MessageDraft{
		Body:        "closing",
		StatusID:    statusPtr(models.StatusFinalized),
		Hours:       &models.HourEntry{Date: "2024-05-02", Start: "09:00", End: "10:00"},
		Attachments: []StagedAttachment{{Name: "report.pdf", Content: strings.NewReader("x"), AttType: models.AttachmentTypeEvidence}},
	})
	assert.Nil(t, msg)
	assert.False(t, sent)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepStatus, stepErr.Step)
	assert.True(t, stepErr.Compensated)
	assert.Equal(t, []Step{StepAttachment, StepHours}, stepErr.Committed)
	assert.Equal(t, []string{"CreateMessage", "UploadAttachment", "LogHours", "SetStatus", "DeleteMessage"}, api.calls)
	assert.Contains(t, err.Error(), "message removed")
}

func TestPostMessage_HoursFailureBeforeFinalizeKeepsTicketOpen(t *testing.T) {
	api := newFakeAPI()
	api.fail["LogHours"] = errors.New("timeout")
	c := New(api, consultant, nil)

	msg, err := c.PostMessage(context.Background(), ticketIn(models.StatusInAttendance), MessageDraft{
		Body:     "closing",
		StatusID: statusPtr(models.StatusFinalized),
		Hours:    &models.HourEntry{Date: "2024-05-02", Start: "09:00", End: "10:00"},
	})
	require.NotNil(t, msg)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepHours, stepErr.Step)
	assert.Equal(t, []Step{StepMessage}, stepErr.Committed)
	assert.NotContains(t, api.calls, "SetStatus")
	assert.False(t, api.finalized)
}

func TestPostMessage_ValidationMakesNoCalls(t *testing.T) {
	tests := []struct {
		name      string
		principal models.Principal
		ticket    *models.Ticket
		draft     MessageDraft
		wantErr   interface{}
	}{
		{"blank body", consultant, ticketIn(models.StatusOpen), MessageDraft{Body: "  "}, &ValidationError{}},
		{"attachment without type", consultant, ticketIn(models.StatusOpen), MessageDraft{
			Body:        "x",
			Attachments: []StagedAttachment{{Name: "a.txt", Content: strings.NewReader("a")}},
		}, &ValidationError{}},
		{"specification without estimate", consultant, ticketIn(models.StatusOpen), MessageDraft{
			Body:        "x",
			Attachments: []StagedAttachment{{Name: "s.pdf", Content: strings.NewReader("a"), AttType: models.AttachmentTypeSpecification}},
		}, &ValidationError{}},
		{"illegal transition", consultant, ticketIn(models.StatusPausedByRequester), MessageDraft{Body: "x", StatusID: statusPtr(models.StatusClosureRequested)}, &ValidationError{}},
		{"empty appointment", consultant, ticketIn(models.StatusOpen), MessageDraft{Body: "x", Hours: &models.HourEntry{Date: "2024-05-02", Start: "10:00", End: "10:00"}}, &ValidationError{}},
		{"private from client", requester, ticketIn(models.StatusOpen), MessageDraft{Body: "x", IsPrivate: true}, &ValidationError{}},
		{"finalized ticket", consultant, ticketIn(models.StatusFinalized), MessageDraft{Body: "x"}, &DeniedError{}},
		{"client starts attendance", requester, ticketIn(models.StatusOpen), MessageDraft{Body: "x", StatusID: statusPtr(models.StatusInAttendance)}, &DeniedError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			c := New(api, tt.principal, nil)

			_, err := c.PostMessage(context.Background(), tt.ticket, tt.draft)
			require.Error(t, err)
			switch tt.wantErr.(type) {
			case *ValidationError:
				var verr *ValidationError
				assert.ErrorAs(t, err, &verr)
			case *DeniedError:
				var denied *DeniedError
				assert.ErrorAs(t, err, &denied)
			}
			assert.Empty(t, api.calls)
		})
	}
}

func TestPostMessage_HoursSkippedWhenNotAllowed(t *testing.T) {
	api := newFakeAPI()
	c := New(api, functional, nil)

	msg, err := c.PostMessage(context.Background(), ticketIn(models.StatusOpen), MessageDraft{
		Body:  "reviewed",
		Hours: &models.HourEntry{Date: "2024-05-02", Start: "09:00", End: "10:00"},
	})
	require.NoError(t, err)
	assert.Nil(t, msg.Minutes)
	assert.Equal(t, []string{"CreateMessage"}, api.calls)
}

func TestLogHours(t *testing.T) {
	entry := models.HourEntry{Date: "2024-05-02", Start: "13:00", End: "14:45"}

	for _, p := range []models.Principal{requester, functional} {
		api := newFakeAPI()
		_, err := New(api, p, nil).LogHours(context.Background(), ticketIn(models.StatusOpen), nil, nil, entry)
		var denied *DeniedError
		require.ErrorAs(t, err, &denied)
		assert.Equal(t, "clients and functional users do not log hours", denied.Reason)
		assert.Empty(t, api.calls)
	}

	api := newFakeAPI()
	_, err := New(api, consultant, nil).LogHours(context.Background(), ticketIn(models.StatusFinalized), nil, nil, entry)
	assert.True(t, IsDenied(err))

	hour, err := New(api, consultant, nil).LogHours(context.Background(), ticketIn(models.StatusInAttendance), nil, nil, entry)
	require.NoError(t, err)
	assert.Equal(t, 105, hour.Minutes)
}

func TestSetStatus(t *testing.T) {
	api := newFakeAPI()
	c := New(api, requester, nil)

	updated, err := c.Pause(context.Background(), ticketIn(models.StatusInAttendance))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPausedByRequester, updated.Status.ID)

	updated, err = c.RequestClosure(context.Background(), ticketIn(models.StatusPausedByRequester))
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinalized, updated.Status.ID)

	_, err = c.SetStatus(context.Background(), ticketIn(models.StatusFinalized), models.StatusInAttendance)
	assert.ErrorIs(t, err, models.ErrTicketFinalized)

	_, err = c.SetStatus(context.Background(), ticketIn(models.StatusOpen), models.StatusInAttendance)
	assert.True(t, IsDenied(err))

	assert.Equal(t, []string{"SetStatus", "SetStatus"}, api.calls)
}

func TestEditCategorization(t *testing.T) {
	api := newFakeAPI()
	c := New(api, consultant, nil)

	_, err := c.EditCategorization(context.Background(), ticketIn(models.StatusFinalized), models.FieldCategory, 3)
	assert.ErrorIs(t, err, models.ErrTicketFinalized)
	assert.Empty(t, api.calls)

	build := ticketIn(models.StatusOpen)
	build.ProjectKind = models.ProjectKindBuild
	updated, err := c.EditCategorization(context.Background(), build, models.FieldCategory, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Category.ID)
	assert.Equal(t, []string{"EditCategorization:smartbuild"}, api.calls)

	_, err = New(api, requester, nil).EditCategorization(context.Background(), ticketIn(models.StatusOpen), models.FieldPriority, 1)
	assert.True(t, IsDenied(err))
}

func TestResourceActionsReturnCurrentList(t *testing.T) {
	api := newFakeAPI()
	c := New(api, consultant, nil)
	ticketID, userID := uuid.New(), uuid.New()

	list, err := c.LinkResource(context.Background(), ticketID, userID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = c.SetMainResource(context.Background(), ticketID, userID, true)
	require.NoError(t, err)
	require.NotNil(t, models.MainResource(list))

	list, err = c.UnlinkResource(context.Background(), ticketID, userID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRefresh(t *testing.T) {
	api := newFakeAPI()
	snap, err := New(api, consultant, nil).Refresh(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, snap.Ticket)
	assert.NotNil(t, snap.Messages)
	assert.NotNil(t, snap.Hours)
	assert.ElementsMatch(t, []string{"GetTicket", "ListMessages", "ListResources", "ListHours"}, api.calls)

	// clients cannot read hours
	api = newFakeAPI()
	snap, err = New(api, requester, nil).Refresh(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, snap.Hours)
	assert.NotContains(t, api.calls, "ListHours")

	api = newFakeAPI()
	api.fail["ListResources"] = errors.New("boom")
	_, err = New(api, consultant, nil).Refresh(context.Background(), uuid.New())
	assert.Error(t, err)
}
