// Package client is a typed client for the servicedesk REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/afterdarksys/servicedesk/internal/models"
)

// APIError is a non-2xx response decoded from the error envelope
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("api error: %s (status=%d)", e.Message, e.StatusCode)
}

// IsStatus reports whether err is an APIError with the given HTTP status
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Client talks to the servicedesk API with a bearer token
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option is a function that configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

// New creates an API client for baseURL
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TicketQuery filters ListTickets
type TicketQuery struct {
	Statuses  []models.StatusID
	ProjectID *uuid.UUID
	Search    string
	Mine      bool
	Page      int
	PerPage   int
}

// MessageQuery selects a page of a thread
type MessageQuery struct {
	TicketID    uuid.UUID
	Page        int
	PageSize    int
	HidePrivate bool
}

// HourQuery filters ListHours and HoursSummary
type HourQuery struct {
	TicketID  *uuid.UUID
	ProjectID *uuid.UUID
	UserID    *uuid.UUID
	From      string
	To        string
}

// HourList is the response of ListHours
type HourList struct {
	Hours        []models.TicketHour `json:"hours"`
	TotalMinutes int64               `json:"total_minutes"`
	TotalHours   decimal.Decimal     `json:"total_hours"`
}

// AttachmentUpload is one file sent with a message
type AttachmentUpload struct {
	TicketID       uuid.UUID
	MessageID      uuid.UUID
	Name           string
	Content        io.Reader
	AttType        models.AttachmentType
	EstimatedHours *decimal.Decimal
}

// CreateTicket opens a ticket
func (c *Client) CreateTicket(ctx context.Context, input *models.CreateTicketInput) (*models.Ticket, error) {
	var resp struct {
		Ticket models.Ticket `json:"ticket"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/tickets", nil, input, &resp); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	return &resp.Ticket, nil
}

// ListTickets returns a page of tickets
func (c *Client) ListTickets(ctx context.Context, q TicketQuery) (*models.Page[models.Ticket], error) {
	params := url.Values{}
	if len(q.Statuses) > 0 {
		ids := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			ids[i] = strconv.Itoa(int(s))
		}
		params.Set("status", strings.Join(ids, ","))
	}
	if q.ProjectID != nil {
		params.Set("project_id", q.ProjectID.String())
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.Mine {
		params.Set("mine", "true")
	}
	setInt(params, "page", q.Page)
	setInt(params, "per_page", q.PerPage)

	var page models.Page[models.Ticket]
	if err := c.do(ctx, http.MethodGet, "/api/tickets", params, nil, &page); err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return &page, nil
}

// GetTicket returns a ticket with its resources
func (c *Client) GetTicket(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	var resp struct {
		Ticket models.Ticket `json:"ticket"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tickets/"+ticketID.String(), nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return &resp.Ticket, nil
}

// ResolveTicket accepts a ticket id or a display id such as SC-2024-00012
func (c *Client) ResolveTicket(ctx context.Context, ref string) (*models.Ticket, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return c.GetTicket(ctx, id)
	}

	page, err := c.ListTickets(ctx, TicketQuery{Search: ref, PerPage: 20})
	if err != nil {
		return nil, err
	}
	for _, t := range page.Items {
		if strings.EqualFold(t.ExternalID, ref) {
			return c.GetTicket(ctx, t.ID)
		}
	}
	return nil, &APIError{StatusCode: http.StatusNotFound, Code: "NOT_FOUND", Message: "ticket " + ref + " not found"}
}

// TicketHistory returns the audit events of a ticket
func (c *Client) TicketHistory(ctx context.Context, ticketID uuid.UUID) ([]models.TicketEvent, error) {
	var resp struct {
		Events []models.TicketEvent `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tickets/"+ticketID.String()+"/history", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("ticket history: %w", err)
	}
	return resp.Events, nil
}

// SetStatus moves a ticket to status and reports whether it changed
func (c *Client) SetStatus(ctx context.Context, ticketID uuid.UUID, status models.StatusID) (*models.Ticket, bool, error) {
	body := models.UpdateStatusInput{TicketID: ticketID, StatusID: int(status)}
	var resp struct {
		Ticket  models.Ticket `json:"ticket"`
		Changed bool          `json:"changed"`
	}
	if err := c.do(ctx, http.MethodPut, "/api/tickets", nil, body, &resp); err != nil {
		return nil, false, fmt.Errorf("set status: %w", err)
	}
	return &resp.Ticket, resp.Changed, nil
}

// EditCategorization changes category, module or priority on the route of the ticket's project kind
func (c *Client) EditCategorization(ctx context.Context, kind models.ProjectKind, ticketID uuid.UUID, field models.CategorizationField, valueID int) (*models.Ticket, error) {
	body := models.EditCategorizationInput{Field: field, ValueID: valueID}
	path := fmt.Sprintf("/api/%s/tickets/%s", kind.RouteSegment(), ticketID)

	var resp struct {
		Ticket models.Ticket `json:"ticket"`
	}
	if err := c.do(ctx, http.MethodPatch, path, nil, body, &resp); err != nil {
		return nil, fmt.Errorf("edit %s: %w", field, err)
	}
	return &resp.Ticket, nil
}

// CreateMessage posts a message on a ticket
func (c *Client) CreateMessage(ctx context.Context, input *models.CreateMessageInput) (*models.Message, error) {
	var resp struct {
		Message models.Message `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/messages", nil, input, &resp); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return &resp.Message, nil
}

// ListMessages returns a page of a ticket thread, newest first
func (c *Client) ListMessages(ctx context.Context, q MessageQuery) (*models.Page[models.Message], error) {
	params := url.Values{}
	params.Set("ticket_id", q.TicketID.String())
	setInt(params, "page", q.Page)
	setInt(params, "page_size", q.PageSize)
	if q.HidePrivate {
		params.Set("hide_private", "true")
	}

	var page models.Page[models.Message]
	if err := c.do(ctx, http.MethodGet, "/api/messages", params, nil, &page); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return &page, nil
}

// UpdateMessage replaces the body of a message
func (c *Client) UpdateMessage(ctx context.Context, messageID uuid.UUID, body string) (*models.Message, error) {
	var resp struct {
		Message models.Message `json:"message"`
	}
	input := models.UpdateMessageInput{Body: body}
	if err := c.do(ctx, http.MethodPatch, "/api/messages/"+messageID.String(), nil, input, &resp); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	return &resp.Message, nil
}

// DeleteMessage removes a message
func (c *Client) DeleteMessage(ctx context.Context, messageID uuid.UUID) error {
	if err := c.do(ctx, http.MethodDelete, "/api/messages/"+messageID.String(), nil, nil, nil); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// UploadAttachment sends one file as multipart form data
func (c *Client) UploadAttachment(ctx context.Context, up AttachmentUpload) (*models.Attachment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := map[string]string{
		"ticketId":  up.TicketID.String(),
		"messageId": up.MessageID.String(),
		"att_type":  string(up.AttType),
	}
	if up.EstimatedHours != nil {
		fields["estimated_hours"] = up.EstimatedHours.String()
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("upload attachment: %w", err)
		}
	}
	part, err := mw.CreateFormFile("file", up.Name)
	if err != nil {
		return nil, fmt.Errorf("upload attachment: %w", err)
	}
	if _, err := io.Copy(part, up.Content); err != nil {
		return nil, fmt.Errorf("upload attachment: read %s: %w", up.Name, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("upload attachment: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/attachment", nil, &buf)
	if err != nil {
		return nil, fmt.Errorf("upload attachment: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		Attachment models.Attachment `json:"attachment"`
	}
	if err := c.send(req, &resp); err != nil {
		return nil, fmt.Errorf("upload attachment: %w", err)
	}
	return &resp.Attachment, nil
}

// Download streams an attachment into w
func (c *Client) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/download", url.Values{"path": {path}}, nil)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("download: %w", decodeError(resp.StatusCode, body))
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download: %w", err)
	}
	return n, nil
}

// ListResources returns the users linked to a ticket
func (c *Client) ListResources(ctx context.Context, ticketID uuid.UUID) ([]models.TicketResource, error) {
	var resp resourcesResponse
	params := url.Values{"ticket_id": {ticketID.String()}}
	if err := c.do(ctx, http.MethodGet, "/api/ticket-resources", params, nil, &resp); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return resp.Resources, nil
}

// LinkResource links a user to a ticket and returns the updated list
func (c *Client) LinkResource(ctx context.Context, ticketID, userID uuid.UUID) ([]models.TicketResource, error) {
	var resp resourcesResponse
	body := models.ResourceInput{TicketID: ticketID, UserID: userID}
	if err := c.do(ctx, http.MethodPost, "/api/ticket-resources/link", nil, body, &resp); err != nil {
		return nil, fmt.Errorf("link resource: %w", err)
	}
	return resp.Resources, nil
}

// UnlinkResource removes a user from a ticket and returns the updated list
func (c *Client) UnlinkResource(ctx context.Context, ticketID, userID uuid.UUID) ([]models.TicketResource, error) {
	var resp resourcesResponse
	body := models.ResourceInput{TicketID: ticketID, UserID: userID}
	if err := c.do(ctx, http.MethodDelete, "/api/ticket-resources", nil, body, &resp); err != nil {
		return nil, fmt.Errorf("unlink resource: %w", err)
	}
	return resp.Resources, nil
}

// SetMainResource flags or unflags the main resource and returns the updated list
func (c *Client) SetMainResource(ctx context.Context, ticketID, userID uuid.UUID, isMain bool) ([]models.TicketResource, error) {
	var resp resourcesResponse
	body := models.SetMainResourceInput{TicketID: ticketID, UserID: userID, IsMain: &isMain}
	if err := c.do(ctx, http.MethodPut, "/api/ticket-resources", nil, body, &resp); err != nil {
		return nil, fmt.Errorf("set main resource: %w", err)
	}
	return resp.Resources, nil
}

// LogHours records an hour appointment
func (c *Client) LogHours(ctx context.Context, input *models.CreateHourInput) (*models.TicketHour, error) {
	var resp struct {
		Hour models.TicketHour `json:"hour"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/ticket-hours", nil, input, &resp); err != nil {
		return nil, fmt.Errorf("log hours: %w", err)
	}
	return &resp.Hour, nil
}

// ListHours returns hour appointments with their total
func (c *Client) ListHours(ctx context.Context, q HourQuery) (*HourList, error) {
	var list HourList
	if err := c.do(ctx, http.MethodGet, "/api/ticket-hours", q.values(), nil, &list); err != nil {
		return nil, fmt.Errorf("list hours: %w", err)
	}
	return &list, nil
}

// HoursSummary returns dashboard totals per ticket and per user
func (c *Client) HoursSummary(ctx context.Context, q HourQuery) (*models.HoursSummary, error) {
	var resp struct {
		Summary models.HoursSummary `json:"summary"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/dashboard/hours", q.values(), nil, &resp); err != nil {
		return nil, fmt.Errorf("hours summary: %w", err)
	}
	return &resp.Summary, nil
}

// ListProjects returns the projects visible to the caller. all includes
// inactive projects for staff.
func (c *Client) ListProjects(ctx context.Context, all bool) ([]models.Project, error) {
	var resp struct {
		Projects []models.Project `json:"projects"`
	}
	var params url.Values
	if all {
		params = url.Values{"all": {"true"}}
	}
	if err := c.do(ctx, http.MethodGet, "/api/projects", params, nil, &resp); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return resp.Projects, nil
}

// Lookups returns the selectable values of a categorization field
func (c *Client) Lookups(ctx context.Context, field models.CategorizationField, projectID *uuid.UUID) ([]models.Lookup, error) {
	var resp struct {
		Values []models.Lookup `json:"values"`
	}
	var params url.Values
	if projectID != nil {
		params = url.Values{"project_id": {projectID.String()}}
	}
	if err := c.do(ctx, http.MethodGet, "/api/lookups/"+string(field), params, nil, &resp); err != nil {
		return nil, fmt.Errorf("list %s values: %w", field, err)
	}
	return resp.Values, nil
}

type resourcesResponse struct {
	Resources []models.TicketResource `json:"resources"`
}

func (q HourQuery) values() url.Values {
	params := url.Values{}
	for name, id := range map[string]*uuid.UUID{"ticket_id": q.TicketID, "project_id": q.ProjectID, "user_id": q.UserID} {
		if id != nil {
			params.Set(name, id.String())
		}
	}
	if q.From != "" {
		params.Set("from", q.From)
	}
	if q.To != "" {
		params.Set("to", q.To)
	}
	return params
}

func setInt(params url.Values, key string, v int) {
	if v > 0 {
		params.Set(key, strconv.Itoa(v))
	}
}

// do performs a JSON request and decodes the response into result
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, query, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, result)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) send(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, respBody)
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) *APIError {
	var envelope struct {
		Error APIError `json:"error"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		apiErr = &envelope.Error
		apiErr.StatusCode = status
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
