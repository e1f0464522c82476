package resource

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/afterdarksys/servicedesk/internal/cli/cliutil"
	"github.com/afterdarksys/servicedesk/internal/models"
	"github.com/afterdarksys/servicedesk/internal/workflow"
)

// ResourceCmd represents the resource command group
var ResourceCmd = &cobra.Command{
	Use:     "resource",
	Aliases: []string{"resources", "r"},
	Short:   "Manage the users working a ticket",
	Long: `List, link and unlink the users working a ticket, and choose the
main resource. A ticket has at most one main resource.

Examples:
  desk resource list SC-2024-00012
  desk resource link SC-2024-00012 5d0e2b7a-...
  desk resource main SC-2024-00012 5d0e2b7a-...
  desk resource main SC-2024-00012 5d0e2b7a-... --unset
  desk resource unlink SC-2024-00012 5d0e2b7a-...`,
}

func init() {
	ResourceCmd.AddCommand(listCmd)
	ResourceCmd.AddCommand(linkCmd)
	ResourceCmd.AddCommand(unlinkCmd)
	ResourceCmd.AddCommand(mainCmd)
	mainCmd.Flags().Bool("unset", false, "Clear the main flag instead of setting it")
}

var listCmd = &cobra.Command{
	Use:     "list [ticket]",
	Aliases: []string{"ls"},
	Short:   "List the resources of a ticket",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		api := cliutil.NewClient()
		ctx, cancel := cliutil.Context()
		defer cancel()

		t, err := api.ResolveTicket(ctx, args[0])
		if err != nil {
			cliutil.Fail(err)
		}
		resources, err := api.ListResources(ctx, t.ID)
		if err != nil {
			cliutil.Fail(err)
		}
		printResources(t, resources)
	},
}

var linkCmd = &cobra.Command{
	Use:   "link [ticket] [user-id]",
	Short: "Link a user to a ticket",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		mutate(args, func(ctx context.Context, c *workflow.Controller, ticketID, userID uuid.UUID) ([]models.TicketResource, error) {
			return c.LinkResource(ctx, ticketID, userID)
		})
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink [ticket] [user-id]",
	Short: "Unlink a user from a ticket",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		mutate(args, func(ctx context.Context, c *workflow.Controller, ticketID, userID uuid.UUID) ([]models.TicketResource, error) {
			return c.UnlinkResource(ctx, ticketID, userID)
		})
	},
}

var mainCmd = &cobra.Command{
	Use:   "main [ticket] [user-id]",
	Short: "Make a linked user the main resource",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		unset, _ := cmd.Flags().GetBool("unset")
		mutate(args, func(ctx context.Context, c *workflow.Controller, ticketID, userID uuid.UUID) ([]models.TicketResource, error) {
			return c.SetMainResource(ctx, ticketID, userID, !unset)
		})
	},
}

func mutate(args []string, fn func(context.Context, *workflow.Controller, uuid.UUID, uuid.UUID) ([]models.TicketResource, error)) {
	userID, err := cliutil.ParseUUID("user id", args[1])
	if err != nil {
		cliutil.Fail(err)
	}

	ctrl, api, err := cliutil.Controller()
	if err != nil {
		cliutil.Fail(err)
	}
	ctx, cancel := cliutil.Context()
	defer cancel()

	t, err := api.ResolveTicket(ctx, args[0])
	if err != nil {
		cliutil.Fail(err)
	}
	resources, err := fn(ctx, ctrl, t.ID, userID)
	if err != nil {
		cliutil.Fail(err)
	}
	printResources(t, resources)
}

func printResources(t *models.Ticket, resources []models.TicketResource) {
	cliutil.Print(resources, func(w io.Writer) {
		fmt.Fprintf(w, "%s: %s\n\n", t.ExternalID, t.Title)
		cliutil.ResourceTable(w, resources)
	})
}
