package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterdarksys/servicedesk/internal/api/middleware"
	"github.com/afterdarksys/servicedesk/internal/models"
	"github.com/afterdarksys/servicedesk/internal/policy"
	"github.com/afterdarksys/servicedesk/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := RegisterValidators(v); err != nil {
			panic(err)
		}
	}
}

// tokenAuth maps bearer tokens straight to principals
type tokenAuth map[string]models.Principal

func (a tokenAuth) Authenticate(token string) (models.Principal, error) {
	p, ok := a[token]
	if !ok {
		return models.Principal{}, store.ErrNotFound
	}
	return p, nil
}

type fakeTickets struct {
	byID map[uuid.UUID]*models.Ticket
}

func (f *fakeTickets) Create(_ context.Context, p models.Principal, in *models.CreateTicketInput) (*models.Ticket, error) {
	t := &models.Ticket{ID: uuid.New(), Title: in.Title, ProjectID: in.ProjectID, Status: models.StatusOpen.Info(), CreatedBy: p.UserID}
	f.byID[t.ID] = t
	return t, nil
}

func (f *fakeTickets) GetByID(_ context.Context, id uuid.UUID) (*models.Ticket, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTickets) List(context.Context, *models.TicketListFilter) ([]models.Ticket, int, error) {
	return nil, 0, nil
}

func (f *fakeTickets) UpdateStatus(_ context.Context, id uuid.UUID, to models.StatusID, _ uuid.UUID) (*models.Ticket, bool, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	changed, err := t.ApplyStatus(to, time.Now())
	if err != nil {
		return nil, false, err
	}
	cp := *t
	return &cp, changed, nil
}

func (f *fakeTickets) UpdateCategorization(_ context.Context, id uuid.UUID, field models.CategorizationField, valueID int, _ uuid.UUID) (*models.Ticket, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	l := &models.Lookup{ID: valueID}
	switch field {
	case models.FieldCategory:
		t.Category = l
	case models.FieldModule:
		t.Module = l
	case models.FieldPriority:
		t.Priority = l
	}
	cp := *t
	return &cp, nil
}

type fakeMessages struct {
	msgs []models.Message
}

func (f *fakeMessages) Create(_ context.Context, userID uuid.UUID, in *models.CreateMessageInput) (*models.Message, error) {
	m := models.Message{
		ID:        uuid.New(),
		TicketID:  in.TicketID,
		Body:      in.Body,
		IsPrivate: in.IsPrivate,
		CreatedBy: &userID,
		CreatedAt: time.Now(),
	}
	if in.StatusID != nil {
		s := models.StatusID(*in.StatusID)
		m.StatusID = &s
	}
	f.msgs = append(f.msgs, m)
	return &m, nil
}

func (f *fakeMessages) GetByID(_ context.Context, id uuid.UUID) (*models.Message, error) {
	for i := range f.msgs {
		if f.msgs[i].ID == id {
			m := f.msgs[i]
			return &m, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeMessages) List(_ context.Context, filter *models.MessageListFilter) ([]models.Message, int, error) {
	filter.SetDefaults()
	var all []models.Message
	for _, m := range f.msgs {
		if m.TicketID != filter.TicketID || (m.IsPrivate && !filter.IncludePrivate) {
			continue
		}
		all = append(all, m)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	page := models.Paginate(all, filter.Page, filter.PageSize)
	return page.Items, len(all), nil
}

func (f *fakeMessages) UpdateBody(_ context.Context, id uuid.UUID, body string, _ uuid.UUID) (*models.Message, error) {
	for i := range f.msgs {
		if f.msgs[i].ID == id {
			f.msgs[i].Body = body
			f.msgs[i].Edited = true
			m := f.msgs[i]
			return &m, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeMessages) SoftDelete(_ context.Context, id uuid.UUID, _ uuid.UUID) error {
	for i := range f.msgs {
		if f.msgs[i].ID == id {
			f.msgs = append(f.msgs[:i], f.msgs[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

type fakeResources struct {
	links []models.TicketResource
}

func (f *fakeResources) List(_ context.Context, ticketID uuid.UUID) ([]models.TicketResource, error) {
	out := []models.TicketResource{}
	for _, r := range f.links {
		if r.TicketID == ticketID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeResources) Link(_ context.Context, ticketID, userID, _ uuid.UUID) error {
	for _, r := range f.links {
		if r.TicketID == ticketID && r.UserID == userID {
			return nil
		}
	}
	f.links = append(f.links, models.TicketResource{TicketID: ticketID, UserID: userID})
	return nil
}

func (f *fakeResources) Unlink(_ context.Context, ticketID, userID, _ uuid.UUID) error {
	for i, r := range f.links {
		if r.TicketID == ticketID && r.UserID == userID {
			f.links = append(f.links[:i], f.links[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeResources) SetMain(_ context.Context, ticketID, userID uuid.UUID, isMain bool, _ uuid.UUID) error {
	found := false
	for i := range f.links {
		if f.links[i].TicketID != ticketID {
			continue
		}
		if f.links[i].UserID == userID {
			f.links[i].IsMain = isMain
			found = true
		} else if isMain {
			f.links[i].IsMain = false
		}
	}
	if !found {
		return store.ErrNotFound
	}
	return nil
}

type fakeHours struct {
	created []models.TicketHour
}

func (f *fakeHours) Create(_ context.Context, h *models.TicketHour) error {
	h.ID = uuid.New()
	f.created = append(f.created, *h)
	return nil
}

func (f *fakeHours) List(context.Context, *models.HourListFilter) ([]models.TicketHour, error) {
	return f.created, nil
}

func (f *fakeHours) Summary(_ context.Context, filter *models.HourListFilter) (*models.HoursSummary, error) {
	var total int64
	for _, h := range f.created {
		total += int64(h.Minutes)
	}
	return &models.HoursSummary{ProjectID: filter.ProjectID, TotalMinutes: total, TotalHours: models.MinutesToHours(total)}, nil
}

type fakeEvents struct{}

func (fakeEvents) ListByTicket(context.Context, uuid.UUID) ([]models.TicketEvent, error) {
	return []models.TicketEvent{}, nil
}

type fakeUsers map[uuid.UUID]models.Principal

func (f fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	p, ok := f[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &models.User{ID: p.UserID, Role: p.Role, PartnerID: p.PartnerID, IsActive: true}, nil
}

type fakeProjects struct {
	projects []models.Project
	lookups  map[models.CategorizationField][]models.Lookup
}

func (f *fakeProjects) List(_ context.Context, partnerID *uuid.UUID, activeOnly bool) ([]models.Project, error) {
	out := []models.Project{}
	for _, p := range f.projects {
		if partnerID != nil && (p.PartnerID == nil || *p.PartnerID != *partnerID) {
			continue
		}
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProjects) Lookups(_ context.Context, field models.CategorizationField, _ *uuid.UUID) ([]models.Lookup, error) {
	return f.lookups[field], nil
}

type fixture struct {
	t         *testing.T
	router    *gin.Engine
	handler   *Handler
	tickets   *fakeTickets
	messages  *fakeMessages
	resources *fakeResources
	hours     *fakeHours
	projects  *fakeProjects
	uploads   *fakeAttachments
	files     *fakeFiles

	partner    uuid.UUID
	admin      models.Principal
	consultant models.Principal
	functional models.Principal
	client     models.Principal
	stranger   models.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	partner := uuid.New()
	other := uuid.New()
	f := &fixture{
		t:          t,
		tickets:    &fakeTickets{byID: map[uuid.UUID]*models.Ticket{}},
		messages:   &fakeMessages{},
		resources:  &fakeResources{},
		hours:      &fakeHours{},
		uploads:    &fakeAttachments{},
		files:      &fakeFiles{objects: map[string][]byte{}},
		projects: &fakeProjects{
			projects: []models.Project{
				{ID: uuid.New(), Name: "Partner support", Kind: models.ProjectKindAMS, PartnerID: &partner, IsActive: true},
				{ID: uuid.New(), Name: "Partner rollout", Kind: models.ProjectKindBuild, PartnerID: &partner},
				{ID: uuid.New(), Name: "Other support", Kind: models.ProjectKindAMS, PartnerID: &other, IsActive: true},
			},
			lookups: map[models.CategorizationField][]models.Lookup{
				models.FieldPriority: {{ID: 1, Name: "Low"}, {ID: 2, Name: "High"}},
			},
		},
		partner:    partner,
		admin:      models.Principal{UserID: uuid.New(), Role: models.RoleAdmin},
		consultant: models.Principal{UserID: uuid.New(), Role: models.RoleConsultant},
		functional: models.Principal{UserID: uuid.New(), Role: models.RoleFunctional},
		client:     models.Principal{UserID: uuid.New(), Role: models.RoleClient, PartnerID: &partner},
		stranger:   models.Principal{UserID: uuid.New(), Role: models.RoleClient, PartnerID: &other},
	}

	f.handler = New(Deps{
		Tickets:     f.tickets,
		Messages:    f.messages,
		Attachments: f.uploads,
		Resources:   f.resources,
		Hours:       f.hours,
		Events:      fakeEvents{},
		Projects:    f.projects,
		Files:       f.files,
		Users: fakeUsers{
			f.admin.UserID:      f.admin,
			f.consultant.UserID: f.consultant,
			f.functional.UserID: f.functional,
			f.client.UserID:     f.client,
		},
		Policy: policy.MustNewEnforcer(),
	})

	auth := tokenAuth{
		"admin":      f.admin,
		"consultant": f.consultant,
		"functional": f.functional,
		"client":     f.client,
		"stranger":   f.stranger,
	}

	h := f.handler
	r := gin.New()
	r.Use(middleware.RequestID())
	api := r.Group("/api", middleware.Auth(auth))
	api.PUT("/tickets", h.UpdateTicketStatus)
	api.GET("/tickets/:id", h.GetTicket)
	api.PATCH("/smartcare/tickets/:id", h.EditCategorization(models.ProjectKindAMS))
	api.PATCH("/smartbuild/tickets/:id", h.EditCategorization(models.ProjectKindBuild))
	api.POST("/messages", h.CreateMessage)
	api.GET("/messages", h.ListMessages)
	api.PATCH("/messages/:id", h.UpdateMessage)
	api.DELETE("/messages/:id", h.DeleteMessage)
	api.GET("/ticket-resources", h.ListResources)
	api.POST("/ticket-resources/link", h.LinkResource)
	api.PUT("/ticket-resources", h.SetMainResource)
	api.POST("/ticket-hours", h.LogHours)
	api.GET("/ticket-hours", h.ListHours)
	api.GET("/dashboard/hours", h.HoursDashboard)
	api.GET("/projects", h.ListProjects)
	api.GET("/lookups/:field", h.ListLookups)
	api.POST("/attachment", h.UploadAttachment)
	f.router = r

	return f
}

func (f *fixture) ticket(kind models.ProjectKind, status models.StatusID) *models.Ticket {
	t := &models.Ticket{
		ID:          uuid.New(),
		ExternalID:  "SC-2024-00001",
		Title:       "Printer offline",
		Status:      status.Info(),
		ProjectID:   uuid.New(),
		ProjectKind: kind,
		PartnerID:   &f.partner,
		CreatedBy:   f.client.UserID,
	}
	f.tickets.byID[t.ID] = t
	return t
}

func (f *fixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	decode(t, w, &e)
	return e
}

func TestUpdateTicketStatus(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		from       models.StatusID
		to         int
		wantStatus int
		wantCode   string
	}{
		{"consultant starts attendance", "consultant", models.StatusOpen, 3, http.StatusOK, ""},
		{"client pauses", "client", models.StatusInAttendance, 14, http.StatusOK, ""},
		{"client requests finalization", "client", models.StatusClosureRequested, 4, http.StatusOK, ""},
		{"client cannot start attendance", "client", models.StatusOpen, 3, http.StatusForbidden, "FORBIDDEN"},
		{"transition not in table", "consultant", models.StatusPausedByRequester, 5, http.StatusConflict, "CONFLICT"},
		{"finalized is terminal", "admin", models.StatusFinalized, 3, http.StatusConflict, "CONFLICT"},
		{"unknown status", "consultant", models.StatusOpen, 99, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"other partner sees nothing", "stranger", models.StatusOpen, 14, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ticket := f.ticket(models.ProjectKindAMS, tt.from)

			w := f.do(http.MethodPut, "/api/tickets", tt.token, gin.H{"ticket_id": ticket.ID, "status_id": tt.to})
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorOf(t, w).Error.Code)
				assert.Equal(t, tt.from, f.tickets.byID[ticket.ID].Status.ID)
				return
			}

			var resp struct {
				Ticket  models.Ticket `json:"ticket"`
				Changed bool          `json:"changed"`
			}
			decode(t, w, &resp)
			assert.True(t, resp.Changed)
			assert.Equal(t, models.StatusID(tt.to), resp.Ticket.Status.ID)
		})
	}
}

func TestUpdateTicketStatus_FinalizeClosesTicket(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(models.ProjectKindAMS, models.StatusInAttendance)

	w := f.do(http.MethodPut, "/api/tickets", "consultant", gin.H{"ticket_id": ticket.ID, "status_id": 4})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Ticket models.Ticket `json:"ticket"`
	}
	decode(t, w, &resp)
	assert.True(t, resp.Ticket.IsClosed)
	assert.NotNil(t, resp.Ticket.ActualEndDate)

	// same status again is a no-op
	w = f.do(http.MethodPut, "/api/tickets", "consultant", gin.H{"ticket_id": ticket.ID, "status_id": 4})
	require.Equal(t, http.StatusOK, w.Code)
	var again struct {
		Changed bool `json:"changed"`
	}
	decode(t, w, &again)
	assert.False(t, again.Changed)
}

func TestEditCategorization(t *testing.T) {
	f := newFixture(t)
	open := f.ticket(models.ProjectKindAMS, models.StatusOpen)
	done := f.ticket(models.ProjectKindAMS, models.StatusFinalized)
	build := f.ticket(models.ProjectKindBuild, models.StatusOpen)

	body := gin.H{"field": "category", "value_id": 7}

	w := f.do(http.MethodPatch, "/api/smartcare/tickets/"+open.ID.String(), "consultant", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, f.tickets.byID[open.ID].Category)
	assert.Equal(t, 7, f.tickets.byID[open.ID].Category.ID)

	w = f.do(http.MethodPatch, "/api/smartcare/tickets/"+done.ID.String(), "consultant", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ticket is finalized", errorOf(t, w).Error.Message)
	assert.Nil(t, f.tickets.byID[done.ID].Category)

	w = f.do(http.MethodPatch, "/api/smartcare/tickets/"+build.ID.String(), "consultant", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorOf(t, w).Error.Message, "/api/smartbuild/tickets")

	w = f.do(http.MethodPatch, "/api/smartcare/tickets/"+open.ID.String(), "client", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPatch, "/api/smartcare/tickets/"+open.ID.String(), "consultant", gin.H{"field": "title", "value_id": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateMessage(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(models.ProjectKindAMS, models.StatusOpen)
	done := f.ticket(models.ProjectKindAMS, models.StatusFinalized)

	w := f.do(http.MethodPost, "/api/messages", "client", gin.H{"ticket_id": ticket.ID, "body": "hidden", "is_private": true})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, f.messages.msgs)

	w = f.do(http.MethodPost, "/api/messages", "consultant", gin.H{"ticket_id": ticket.ID, "body": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/messages", "consultant", gin.H{"ticket_id": done.ID, "body": "late note"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "ticket is finalized", errorOf(t, w).Error.Message)

	w = f.do(http.MethodPost, "/api/messages", "consultant", gin.H{"ticket_id": ticket.ID, "body": "on it", "status_id": 3})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, f.messages.msgs, 1)
	assert.Equal(t, models.StatusInAttendance, *f.messages.msgs[0].StatusID)
	// the message only records the status
	assert.Equal(t, models.StatusOpen, f.tickets.byID[ticket.ID].Status.ID)
}

func TestListMessages_Visibility(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(models.ProjectKindAMS, models.StatusOpen)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 8; i++ {
		f.messages.msgs = append(f.messages.msgs, models.Message{
			ID:        uuid.New(),
			TicketID:  ticket.ID,
			Body:      "note",
			IsPrivate: i%4 == 0,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	type page struct {
		Items      []models.Message `json:"items"`
		Total      int              `json:"total"`
		TotalPages int              `json:"total_pages"`
	}

	w := f.do(http.MethodGet, "/api/messages?ticket_id="+ticket.ID.String(), "client", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p page
	decode(t, w, &p)
	assert.Equal(t, 6, p.Total)
	assert.Equal(t, 1, p.TotalPages)
	for _, m := range p.Items {
		assert.False(t, m.IsPrivate)
	}

	w = f.do(http.MethodGet, "/api/messages?ticket_id="+ticket.ID.String()+"&page=2", "consultant", nil)
	require.Equal(t, http.StatusOK, w.Code)
	p = page{}
	decode(t, w, &p)
	assert.Equal(t, 8, p.Total)
	assert.Equal(t, 2, p.TotalPages)
	assert.Len(t, p.Items, 2)

	w = f.do(http.MethodGet, "/api/messages?ticket_id="+ticket.ID.String()+"&hide_private=true", "consultant", nil)
	require.Equal(t, http.StatusOK, w.Code)
	p = page{}
	decode(t, w, &p)
	assert.Equal(t, 6, p.Total)

	w = f.do(http.MethodGet, "/api/messages", "consultant", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateMessage_EditWindow(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(models.ProjectKindAMS, models.StatusOpen)
	author := f.consultant.UserID
	created := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	msg := models.Message{ID: uuid.New(), TicketID: ticket.ID, Body: "draft", CreatedBy: &author, CreatedAt: created}
	f.messages.msgs = append(f.messages.msgs, msg)

	f.handler.now = func() time.Time { return created.Add(10 * time.Minute) }
	w := f.do(http.MethodPatch, "/api/messages/"+msg.ID.String(), "functional", gin.H{"body": "hijack"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPatch, "/api/messages/"+msg.ID.String(), "consultant", gin.H{"body": "final"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "final", f.messages.msgs[0].Body)

	f.handler.now = func() time.Time { return created.Add(20 * time.Minute) }
	w = f.do(http.MethodPatch, "/api/messages/"+msg.ID.String(), "consultant", gin.H{"body": "too late"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "final", f.messages.msgs[0].Body)

	w = f.do(http.MethodDelete, "/api/messages/"+msg.ID.String(), "admin", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, f.messages.msgs)
}

func TestPrivateMessageHiddenFromClient(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(models.ProjectKindAMS, models.StatusOpen)
	author := f.client.UserID
	msg := models.Message{ID: uuid.New(), TicketID: ticket.ID, Body: "internal", IsPrivate: true, CreatedBy: &author, CreatedAt: time.Now()}
	f.messages.msgs = append(f.messages.msgs, msg)

	w := f.do(http.MethodDelete, "/api/messages/"+msg.ID.String(), "client", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Len(t, f.messages.msgs, 1)
}

func TestLogHours(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(models.ProjectKindAMS, models.StatusInAttendance)
	done := f.ticket(models.ProjectKindAMS, models.StatusFinalized)

	entry := func(ticketID uuid.UUID, start, end string) gin.H {
		return gin.H{"ticket_id": ticketID, "appoint_date": "2024-05-02", "appoint_start": start, "appoint_end": end}
	}

	for _, token := range []string{"client", "functional"} {
		w := f.do(http.MethodPost, "/api/ticket-hours", token, entry(ticket.ID, "09:00", "10:30"))
		assert.Equal(t, http.StatusForbidden, w.Code, token)
		assert.Equal(t, "clients and functional users do not log hours", errorOf(t, w).Error.Message)
	}

	w := f.do(http.MethodPost, "/api/ticket-hours", "consultant", entry(done.ID, "09:00", "10:30"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/api/ticket-hours", "consultant", entry(ticket.ID, "10:30", "09:00"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/ticket-hours", "consultant", entry(ticket.ID, "9h", "10:00"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	other := entry(ticket.ID, "09:00", "10:30")
	other["user_id"] = f.functional.UserID
	w = f.do(http.MethodPost, "/api/ticket-hours", "consultant", other)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, f.hours.created)

	w = f.do(http.MethodPost, "/api/ticket-hours", "admin", other)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// client-supplied minutes are ignored
	own := entry(ticket.ID, "09:00", "10:30")
	own["minutes"] = 600
	w = f.do(http.MethodPost, "/api/ticket-hours", "consultant", own)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Len(t, f.hours.created, 2)
	assert.Equal(t, f.functional.UserID, f.hours.created[0].UserID)
	assert.Equal(t, f.consultant.UserID, f.hours.created[1].UserID)
	assert.Equal(t, 90, f.hours.created[1].Minutes)

	w = f.do(http.MethodGet, "/api/ticket-hours?ticket_id="+ticket.ID.String(), "consultant", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		TotalMinutes int64  `json:"total_minutes"`
		TotalHours   string `json:"total_hours"`
	}
	decode(t, w, &list)
	assert.Equal(t, int64(180), list.TotalMinutes)
	assert.Equal(t, "3", list.TotalHours)

	w = f.do(http.MethodGet, "/api/ticket-hours?from=May", "consultant", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/dashboard/hours", "client", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodGet, "/api/dashboard/hours", "functional", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResources_MainIsExclusive(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(models.ProjectKindAMS, models.StatusOpen)

	for _, u := range []uuid.UUID{f.consultant.UserID, f.functional.UserID} {
		w := f.do(http.MethodPost, "/api/ticket-resources/link", "consultant", gin.H{"ticket_id": ticket.ID, "user_id": u})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	// linking twice is a no-op
	w := f.do(http.MethodPost, "/api/ticket-resources/link", "consultant", gin.H{"ticket_id": ticket.ID, "user_id": f.consultant.UserID})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.resources.links, 2)

	setMain := func(u uuid.UUID) {
		w := f.do(http.MethodPut, "/api/ticket-resources", "consultant", gin.H{"ticket_id": ticket.ID, "user_id": u, "is_main": true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	setMain(f.consultant.UserID)
	setMain(f.functional.UserID)

	w = f.do(http.MethodGet, "/api/ticket-resources?ticket_id="+ticket.ID.String(), "client", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Resources []models.TicketResource `json:"resources"`
	}
	decode(t, w, &resp)
	main := models.MainResource(resp.Resources)
	require.NotNil(t, main)
	assert.Equal(t, f.functional.UserID, main.UserID)

	w = f.do(http.MethodPost, "/api/ticket-resources/link", "client", gin.H{"ticket_id": ticket.ID, "user_id": f.client.UserID})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLinkResource_UnknownUser(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(models.ProjectKindAMS, models.StatusOpen)

	w := f.do(http.MethodPost, "/api/ticket-resources/link", "consultant", gin.H{"ticket_id": ticket.ID, "user_id": uuid.New()})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorOf(t, w).Error.Code)
	assert.Empty(t, f.resources.links)
}

func TestListProjects(t *testing.T) {
	names := func(w *httptest.ResponseRecorder) []string {
		var resp struct {
			Projects []models.Project `json:"projects"`
		}
		decode(t, w, &resp)
		out := make([]string, 0, len(resp.Projects))
		for _, p := range resp.Projects {
			out = append(out, p.Name)
		}
		return out
	}

	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/projects?all=true", "client", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Partner support"}, names(w))

	w = f.do(http.MethodGet, "/api/projects", "consultant", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Partner support", "Other support"}, names(w))

	w = f.do(http.MethodGet, "/api/projects?all=true&partner_id="+f.partner.String(), "consultant", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Partner support", "Partner rollout"}, names(w))

	w = f.do(http.MethodGet, "/api/projects?partner_id=nope", "consultant", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListLookups(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/lookups/priority", "client", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Values []models.Lookup `json:"values"`
	}
	decode(t, w, &resp)
	assert.Equal(t, []models.Lookup{{ID: 1, Name: "Low"}, {ID: 2, Name: "High"}}, resp.Values)

	w = f.do(http.MethodGet, "/api/lookups/status", "client", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/lookups/module?project_id=x", "client", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTicket_HiddenFromOtherPartner(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(models.ProjectKindAMS, models.StatusOpen)

	w := f.do(http.MethodGet, "/api/tickets/"+ticket.ID.String(), "stranger", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/tickets/"+uuid.NewString(), "consultant", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/tickets/"+ticket.ID.String(), "client", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{store.ErrConflict, http.StatusConflict},
		{models.ErrTicketFinalized, http.StatusConflict},
		{models.ErrEstimateRequired, http.StatusBadRequest},
		{models.ErrNotMessageAuthor, http.StatusForbidden},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, toAppError(tt.err).Status, tt.err.Error())
	}
}
