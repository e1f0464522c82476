package ticket

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/afterdarksys/servicedesk/internal/cli/cliutil"
	"github.com/afterdarksys/servicedesk/internal/models"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a new ticket",
	Long: `Open a new ticket in a project.

The description may be read from a file with --description-file, or from
stdin with --description-file -.

Examples:
  # Create with the required fields
  desk ticket create \
    --project 7b0c1f9e-2a4d-4b7e-9d36-0b1f5e3c8a21 \
    --title "Invoice export fails" \
    --description "Export to CSV returns an empty file since Monday"

  # Create with categorization and a planned end date
  desk ticket create --project 7b0c... --title "New report" \
    --description-file report.md --category 3 --module 2 --priority 1 \
    --planned-end 2024-06-30`,
	Run: runCreate,
}

func init() {
	createCmd.Flags().String("project", "", "Project id (required)")
	createCmd.Flags().String("title", "", "Ticket title (required)")
	createCmd.Flags().String("description", "", "Ticket description")
	createCmd.Flags().String("description-file", "", "Read the description from a file (- for stdin)")
	createCmd.Flags().IntP("priority", "p", 0, "Priority id")
	createCmd.Flags().Int("category", 0, "Category id")
	createCmd.Flags().Int("module", 0, "Module id")
	createCmd.Flags().String("planned-end", "", "Planned end date (YYYY-MM-DD)")
	createCmd.Flags().Bool("private", false, "Hide the ticket from client users")
	createCmd.Flags().String("ref", "", "Related ticket id or display id")
}

func runCreate(cmd *cobra.Command, args []string) {
	input, err := createInput(cmd)
	if err != nil {
		cliutil.Fail(err)
	}

	api := cliutil.NewClient()
	ctx, cancel := cliutil.Context()
	defer cancel()

	if ref, _ := cmd.Flags().GetString("ref"); ref != "" {
		related, err := api.ResolveTicket(ctx, ref)
		if err != nil {
			cliutil.Fail(err)
		}
		input.RefTicketID = &related.ID
	}

	t, err := api.CreateTicket(ctx, input)
	if err != nil {
		cliutil.Fail(err)
	}

	cliutil.Print(t, func(w io.Writer) {
		fmt.Fprintf(w, "Ticket created successfully: %s\n", t.ExternalID)
	})
}

func createInput(cmd *cobra.Command) (*models.CreateTicketInput, error) {
	flags := cmd.Flags()

	projectArg, _ := flags.GetString("project")
	if projectArg == "" {
		return nil, errors.New("--project is required")
	}
	projectID, err := cliutil.ParseUUID("project id", projectArg)
	if err != nil {
		return nil, err
	}

	title, _ := flags.GetString("title")
	if strings.TrimSpace(title) == "" {
		return nil, errors.New("--title is required")
	}

	description, _ := flags.GetString("description")
	if file, _ := flags.GetString("description-file"); file != "" {
		description, err = readText(file)
		if err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(description) == "" {
		return nil, errors.New("a description is required")
	}

	input := &models.CreateTicketInput{
		Title:       strings.TrimSpace(title),
		Description: description,
		ProjectID:   projectID,
	}
	input.IsPrivate, _ = flags.GetBool("private")
	input.PriorityID = optionalID(cmd, "priority")
	input.CategoryID = optionalID(cmd, "category")
	input.ModuleID = optionalID(cmd, "module")

	if planned, _ := flags.GetString("planned-end"); planned != "" {
		d, err := time.Parse(models.DateLayout, planned)
		if err != nil {
			return nil, fmt.Errorf("invalid --planned-end %q: expected YYYY-MM-DD", planned)
		}
		input.PlannedEndDate = &d
	}
	return input, nil
}

func optionalID(cmd *cobra.Command, name string) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetInt(name)
	return &v
}

// readText reads a file, or stdin for "-"
func readText(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}
