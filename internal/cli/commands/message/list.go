package message

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/afterdarksys/servicedesk/internal/cli/cliutil"
	"github.com/afterdarksys/servicedesk/internal/client"
)

var listCmd = &cobra.Command{
	Use:     "list [ticket]",
	Aliases: []string{"ls"},
	Short:   "List the messages of a ticket",
	Long: `List a page of a ticket thread, newest first.

Flags: P private, E edited, A attachments, H hours logged.

Examples:
  desk message list SC-2024-00012
  desk message list SC-2024-00012 --page 2
  desk message list SC-2024-00012 --hide-private`,
	Args: cobra.ExactArgs(1),
	Run:  runList,
}

func init() {
	listCmd.Flags().Int("page", 1, "Page number")
	listCmd.Flags().Int("page-size", 0, "Messages per page (server default when 0)")
	listCmd.Flags().Bool("hide-private", false, "Leave out private messages")
}

func runList(cmd *cobra.Command, args []string) {
	api := cliutil.NewClient()
	ctx, cancel := cliutil.Context()
	defer cancel()

	t, err := api.ResolveTicket(ctx, args[0])
	if err != nil {
		cliutil.Fail(err)
	}

	q := client.MessageQuery{TicketID: t.ID}
	q.Page, _ = cmd.Flags().GetInt("page")
	q.PageSize, _ = cmd.Flags().GetInt("page-size")
	q.HidePrivate, _ = cmd.Flags().GetBool("hide-private")

	page, err := api.ListMessages(ctx, q)
	if err != nil {
		cliutil.Fail(err)
	}
	if q.Page > 1 && len(page.Items) == 0 && page.TotalPages > 0 {
		fmt.Fprintf(os.Stderr, "Page %d is past the end of the thread (%d pages)\n", q.Page, page.TotalPages)
	}

	cliutil.Print(page, func(w io.Writer) {
		fmt.Fprintf(w, "%s: %s\n\n", t.ExternalID, t.Title)
		cliutil.MessageTable(w, page.Items)
		if page.TotalPages > 0 {
			fmt.Fprintf(w, "\nPage %d of %d (%d messages)\n", page.Page, page.TotalPages, page.Total)
		}
	})
}
