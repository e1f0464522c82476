package ticket

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/afterdarksys/servicedesk/internal/cli/cliutil"
	"github.com/afterdarksys/servicedesk/internal/client"
	"github.com/afterdarksys/servicedesk/internal/models"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tickets",
	Long: `List tickets visible to you with optional filters.

Statuses may be given by id, name or alias
(open, attendance, closure, paused, finalized).

Examples:
  # List all tickets
  desk ticket list

  # List tickets waiting on the team
  desk ticket list --status open,attendance

  # List tickets of one project
  desk ticket list --project 7b0c1f9e-2a4d-4b7e-9d36-0b1f5e3c8a21

  # List tickets you are linked to
  desk ticket list --mine

  # Search titles and display ids
  desk ticket list --search export --output json`,
	Run: runList,
}

func init() {
	listCmd.Flags().StringSlice("status", []string{}, "Filter by status")
	listCmd.Flags().String("project", "", "Filter by project id")
	listCmd.Flags().String("search", "", "Search title and display id")
	listCmd.Flags().Bool("mine", false, "Show only tickets you are linked to")
	listCmd.Flags().Int("page", 1, "Page number")
	listCmd.Flags().Int("per-page", 20, "Tickets per page")
}

func runList(cmd *cobra.Command, args []string) {
	q, err := listQuery(cmd)
	if err != nil {
		cliutil.Fail(err)
	}

	api := cliutil.NewClient()
	ctx, cancel := cliutil.Context()
	defer cancel()

	page, err := api.ListTickets(ctx, q)
	if err != nil {
		cliutil.Fail(err)
	}

	cliutil.Print(page, func(out io.Writer) {
		if page.Empty() {
			fmt.Fprintln(out, "No tickets found.")
			return
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TICKET\tSTATUS\tPRIORITY\tTITLE\tCREATED")
		fmt.Fprintln(w, "------\t------\t--------\t-----\t-------")
		for _, t := range page.Items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				t.ExternalID,
				t.Status.Name,
				lookupName(t.Priority),
				cliutil.Truncate(t.Title, 50),
				t.CreatedAt.Local().Format(models.DateLayout),
			)
		}
		w.Flush()
		fmt.Fprintf(out, "\nPage %d of %d (%d tickets)\n", page.Page, page.TotalPages, page.Total)
	})
}

func listQuery(cmd *cobra.Command) (client.TicketQuery, error) {
	flags := cmd.Flags()
	var q client.TicketQuery

	statuses, _ := flags.GetStringSlice("status")
	for _, s := range statuses {
		id, err := cliutil.ParseStatus(s)
		if err != nil {
			return q, err
		}
		q.Statuses = append(q.Statuses, id)
	}

	if project, _ := flags.GetString("project"); project != "" {
		id, err := cliutil.ParseUUID("project id", project)
		if err != nil {
			return q, err
		}
		q.ProjectID = &id
	}

	q.Search, _ = flags.GetString("search")
	q.Mine, _ = flags.GetBool("mine")
	q.Page, _ = flags.GetInt("page")
	q.PerPage, _ = flags.GetInt("per-page")
	return q, nil
}

func lookupName(l *models.Lookup) string {
	if l == nil || l.Name == "" {
		return "-"
	}
	return l.Name
}
