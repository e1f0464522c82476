// Package cliutil holds the plumbing shared by the desk subcommands: the API
// client built from configuration, output rendering and argument parsing.
package cliutil

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/afterdarksys/servicedesk/internal/auth"
	"github.com/afterdarksys/servicedesk/internal/client"
	"github.com/afterdarksys/servicedesk/internal/models"
	"github.com/afterdarksys/servicedesk/internal/pkg/logger"
	"github.com/afterdarksys/servicedesk/internal/workflow"
)

// Configuration keys
const (
	KeyAPIURL  = "api_url"
	KeyToken   = "token"
	KeyOutput  = "output"
	KeyVerbose = "verbose"
	KeyTimeout = "timeout"
)

// DefaultAPIURL is used when no api_url is configured
const DefaultAPIURL = "http://localhost:8080"

var ErrNoToken = errors.New("not logged in: run 'desk auth set-token' first")

// NewClient returns an API client for the configured server and token
func NewClient() *client.Client {
	apiURL := viper.GetString(KeyAPIURL)
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return client.New(apiURL, viper.GetString(KeyToken), client.WithTimeout(timeout()))
}

// Context returns a context bounded by the configured request timeout
func Context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*timeout())
}

func timeout() time.Duration {
	if d := viper.GetDuration(KeyTimeout); d > 0 {
		return d
	}
	return 30 * time.Second
}

// Principal decodes the stored token. The server still verifies it on every
// request.
func Principal() (models.Principal, error) {
	token := viper.GetString(KeyToken)
	if token == "" {
		return models.Principal{}, ErrNoToken
	}
	claims, err := auth.Inspect(token)
	if err != nil {
		return models.Principal{}, err
	}
	return claims.Principal()
}

// Logger returns a console logger, debug level when verbose is set
func Logger() *zap.Logger {
	level := "warn"
	if viper.GetBool(KeyVerbose) {
		level = "debug"
	}
	l, err := logger.New(level, "development")
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Controller returns a workflow controller acting as the stored token's user
func Controller(opts ...workflow.Option) (*workflow.Controller, *client.Client, error) {
	p, err := Principal()
	if err != nil {
		return nil, nil, err
	}
	api := NewClient()
	return workflow.New(api, p, Logger(), opts...), api, nil
}

// Fail prints err to stderr and exits
func Fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.RequestID != "" && viper.GetBool(KeyVerbose) {
		fmt.Fprintf(os.Stderr, "Request ID: %s\n", apiErr.RequestID)
	}
	var stepErr *workflow.StepError
	if errors.As(err, &stepErr) && len(stepErr.Committed) > 0 {
		fmt.Fprintln(os.Stderr, "Some changes were saved; refresh the ticket before retrying.")
	}
	os.Exit(1)
}

// OutputFormat returns the configured output format
func OutputFormat() string {
	return strings.ToLower(viper.GetString(KeyOutput))
}

// Render writes v to w as json or yaml. Any other format calls table.
func Render(w io.Writer, format string, v any, table func(w io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		// round trip through json so field names follow the json tags
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		table(w)
		return nil
	}
}

// Print renders v to stdout in the configured format
func Print(v any, table func(w io.Writer)) {
	if err := Render(os.Stdout, OutputFormat(), v, table); err != nil {
		Fail(err)
	}
}

// Confirm asks a yes/no question on stdin
func Confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// ParseUUID parses a user or message id argument
func ParseUUID(what, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q", what, s)
	}
	return id, nil
}

var statusAliases = map[string]models.StatusID{
	"open":       models.StatusOpen,
	"attendance": models.StatusInAttendance,
	"working":    models.StatusInAttendance,
	"closure":    models.StatusClosureRequested,
	"paused":     models.StatusPausedByRequester,
	"pause":      models.StatusPausedByRequester,
	"finalized":  models.StatusFinalized,
	"done":       models.StatusFinalized,
}

// ParseStatus accepts a status id, its display name or a short alias
func ParseStatus(s string) (models.StatusID, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		id := models.StatusID(n)
		if !id.Valid() {
			return 0, fmt.Errorf("%w: %d", models.ErrUnknownStatus, n)
		}
		return id, nil
	}
	if id, ok := statusAliases[strings.ToLower(s)]; ok {
		return id, nil
	}
	for _, st := range models.AllStatuses() {
		if strings.EqualFold(st.Name, s) {
			return st.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", models.ErrUnknownStatus, s)
}

var attachmentAliases = map[string]models.AttachmentType{
	"evidence":      models.AttachmentTypeEvidence,
	"specification": models.AttachmentTypeSpecification,
	"spec":          models.AttachmentTypeSpecification,
	"document":      models.AttachmentTypeDocument,
	"doc":           models.AttachmentTypeDocument,
	"other":         models.AttachmentTypeOther,
}

// ParseAttachmentType accepts the stored type name or an english alias
func ParseAttachmentType(s string) (models.AttachmentType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", models.ErrAttachmentTypeRequired
	}
	if t, ok := attachmentAliases[strings.ToLower(s)]; ok {
		return t, nil
	}
	for _, t := range []models.AttachmentType{
		models.AttachmentTypeEvidence,
		models.AttachmentTypeSpecification,
		models.AttachmentTypeDocument,
		models.AttachmentTypeOther,
	} {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown attachment type %q", s)
}

// AttachSpec is a parsed --attach value
type AttachSpec struct {
	Path           string
	AttType        models.AttachmentType
	EstimatedHours *decimal.Decimal
}

// ParseAttachSpec parses PATH[,TYPE[,HOURS]]. defaultType applies when the
// type is omitted.
func ParseAttachSpec(s string, defaultType models.AttachmentType) (AttachSpec, error) {
	parts := strings.Split(s, ",")
	spec := AttachSpec{Path: strings.TrimSpace(parts[0]), AttType: defaultType}
	if spec.Path == "" {
		return spec, fmt.Errorf("attachment %q has no path", s)
	}
	if len(parts) > 3 {
		return spec, fmt.Errorf("attachment %q: expected PATH[,TYPE[,HOURS]]", s)
	}
	if len(parts) > 1 {
		t, err := ParseAttachmentType(parts[1])
		if err != nil {
			return spec, err
		}
		spec.AttType = t
	}
	if len(parts) > 2 {
		est, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
		if err != nil {
			return spec, fmt.Errorf("attachment %q: invalid hour estimate", s)
		}
		spec.EstimatedHours = &est
	}
	return spec, nil
}

// ParseRange parses an HH:MM-HH:MM appointment range
func ParseRange(s string) (start, end string, err error) {
	start, end, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return "", "", fmt.Errorf("invalid range %q: expected HH:MM-HH:MM", s)
	}
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if _, err := models.ParseClock(start); err != nil {
		return "", "", err
	}
	if _, err := models.ParseClock(end); err != nil {
		return "", "", err
	}
	return start, end, nil
}

// Truncate shortens s to n runes for table cells
func Truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// FormatTime formats timestamps for table output
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
