package ticket

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/afterdarksys/servicedesk/internal/cli/cliutil"
	"github.com/afterdarksys/servicedesk/internal/models"
	"github.com/afterdarksys/servicedesk/internal/workflow"
)

var statusCmd = &cobra.Command{
	Use:   "status [ticket] [status]",
	Short: "Move a ticket to another status",
	Long: `Move a ticket to another status.

Allowed moves:
  Aberto                   -> Em atendimento, Encerramento solicitado, Pausado pelo solicitante, Finalizado
  Em atendimento           -> Encerramento solicitado, Pausado pelo solicitante, Finalizado
  Encerramento solicitado  -> Em atendimento, Finalizado
  Pausado pelo solicitante -> Em atendimento, Finalizado

Finalized tickets cannot change. Client users may only pause or finalize.

Examples:
  desk ticket status SC-2024-00012 attendance
  desk ticket status SC-2024-00012 5`,
	Args: cobra.ExactArgs(2),
	Run:  runStatus,
}

var pauseCmd = &cobra.Command{
	Use:   "pause [ticket]",
	Short: "Pause a ticket on behalf of the requester",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		changeStatus(args[0], func(ctx context.Context, c *workflow.Controller, t *models.Ticket) (*models.Ticket, error) {
			return c.Pause(ctx, t)
		})
	},
}

var requestClosureCmd = &cobra.Command{
	Use:   "request-closure [ticket]",
	Short: "Finalize a ticket on behalf of the requester",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		if !force && !cliutil.Confirm(os.Stdin, os.Stdout, fmt.Sprintf("Finalize ticket %s? This cannot be undone.", args[0])) {
			fmt.Println("Cancelled")
			return
		}
		changeStatus(args[0], func(ctx context.Context, c *workflow.Controller, t *models.Ticket) (*models.Ticket, error) {
			return c.RequestClosure(ctx, t)
		})
	},
}

func init() {
	requestClosureCmd.Flags().Bool("force", false, "Skip confirmation prompt")
}

func runStatus(cmd *cobra.Command, args []string) {
	status, err := cliutil.ParseStatus(args[1])
	if err != nil {
		cliutil.Fail(err)
	}
	if status == models.StatusFinalized {
		force, _ := cmd.Flags().GetBool("force")
		if !force && !cliutil.Confirm(os.Stdin, os.Stdout, fmt.Sprintf("Finalize ticket %s? This cannot be undone.", args[0])) {
			fmt.Println("Cancelled")
			return
		}
	}
	changeStatus(args[0], func(ctx context.Context, c *workflow.Controller, t *models.Ticket) (*models.Ticket, error) {
		return c.SetStatus(ctx, t, status)
	})
}

func init() {
	statusCmd.Flags().Bool("force", false, "Skip confirmation prompt when finalizing")
}

func changeStatus(ref string, fn func(context.Context, *workflow.Controller, *models.Ticket) (*models.Ticket, error)) {
	ctrl, api, err := cliutil.Controller()
	if err != nil {
		cliutil.Fail(err)
	}
	ctx, cancel := cliutil.Context()
	defer cancel()

	t, err := api.ResolveTicket(ctx, ref)
	if err != nil {
		cliutil.Fail(err)
	}
	from := t.Status

	updated, err := fn(ctx, ctrl, t)
	if err != nil {
		cliutil.Fail(err)
	}

	cliutil.Print(updated, func(w io.Writer) {
		if updated.Status.ID == from.ID {
			fmt.Fprintf(w, "Ticket %s is already %s\n", updated.ExternalID, updated.Status.Name)
			return
		}
		fmt.Fprintf(w, "Ticket %s: %s -> %s\n", updated.ExternalID, from.Name, updated.Status.Name)
	})
}
