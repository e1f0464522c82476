package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/afterdarksys/servicedesk/internal/cli/cliutil"
	"github.com/afterdarksys/servicedesk/internal/client"
	"github.com/afterdarksys/servicedesk/internal/models"
	"github.com/afterdarksys/servicedesk/internal/workflow"
)

var exportCmd = &cobra.Command{
	Use:   "export [ticket...]",
	Short: "Export tickets to JSON files",
	Long: `Export tickets with their full thread, resources, hours and history to
local JSON files.

Useful for backup, handover, or offline analysis.

Examples:
  # Export a single ticket
  desk ticket export SC-2024-00012

  # Export multiple tickets
  desk ticket export SC-2024-00012 SB-2024-00003

  # Export every finalized ticket
  desk ticket export --all --status finalized

  # Export to a specific directory, including attachment files
  desk ticket export SC-2024-00012 --dir /path/to/backup --attachments`,
	Run: runExport,
}

func init() {
	exportCmd.Flags().Bool("all", false, "Export all visible tickets")
	exportCmd.Flags().String("dir", "", "Output directory (default: ./tickets)")
	exportCmd.Flags().StringSlice("status", []string{}, "Filter by status when using --all")
	exportCmd.Flags().Bool("attachments", false, "Download attachment files next to the JSON")
	exportCmd.Flags().Bool("overwrite", false, "Overwrite existing files")
}

// exportDoc is the file written per ticket
type exportDoc struct {
	Ticket    *models.Ticket          `json:"ticket"`
	Messages  []models.Message        `json:"messages"`
	Resources []models.TicketResource `json:"resources"`
	Hours     *client.HourList        `json:"hours,omitempty"`
	History   []models.TicketEvent    `json:"history"`
}

func runExport(cmd *cobra.Command, args []string) {
	flags := cmd.Flags()
	exportAll, _ := flags.GetBool("all")
	outputDir, _ := flags.GetString("dir")
	withFiles, _ := flags.GetBool("attachments")
	overwrite, _ := flags.GetBool("overwrite")

	if !exportAll && len(args) == 0 {
		cliutil.Fail(errors.New("usage: desk ticket export [ticket...] or desk ticket export --all"))
	}
	if outputDir == "" {
		outputDir = "tickets"
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		cliutil.Fail(fmt.Errorf("creating output directory: %w", err))
	}

	ctrl, api, err := cliutil.Controller()
	if err != nil {
		cliutil.Fail(err)
	}
	ctx := context.Background()

	refs := args
	if exportAll {
		q, err := listQuery(cmd)
		if err != nil {
			cliutil.Fail(err)
		}
		refs, err = allTicketIDs(ctx, api, q)
		if err != nil {
			cliutil.Fail(fmt.Errorf("fetching ticket list: %w", err))
		}
	}
	if len(refs) == 0 {
		fmt.Println("No tickets found to export.")
		return
	}

	fmt.Printf("Exporting %d ticket(s) to %s\n\n", len(refs), outputDir)

	var exported, skipped, failed int
	for _, ref := range refs {
		fmt.Printf("Exporting %s... ", ref)

		rctx, cancel := cliutil.Context()
		doc, err := collect(rctx, ctrl, api, ref)
		cancel()
		if err != nil {
			fmt.Printf("FAILED (%v)\n", err)
			failed++
			continue
		}

		jsonFile := filepath.Join(outputDir, doc.Ticket.ExternalID+".json")
		if !overwrite {
			if _, err := os.Stat(jsonFile); err == nil {
				fmt.Println("SKIPPED (exists)")
				skipped++
				continue
			}
		}

		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			fmt.Printf("FAILED (marshal error: %v)\n", err)
			failed++
			continue
		}
		if err := os.WriteFile(jsonFile, data, 0600); err != nil {
			fmt.Printf("FAILED (write error: %v)\n", err)
			failed++
			continue
		}

		if withFiles {
			n, err := downloadAttachments(ctx, api, filepath.Join(outputDir, doc.Ticket.ExternalID), doc.Messages)
			if err != nil {
				fmt.Printf("OK (%d files, attachments failed: %v)\n", n, err)
				exported++
				continue
			}
			fmt.Printf("OK (%d files)\n", n)
		} else {
			fmt.Println("OK")
		}
		exported++
	}

	fmt.Println()
	fmt.Printf("Export complete: %d exported, %d skipped, %d failed\n", exported, skipped, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func allTicketIDs(ctx context.Context, api *client.Client, q client.TicketQuery) ([]string, error) {
	q.Page, q.PerPage = 1, 100
	var ids []string
	for {
		page, err := api.ListTickets(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, t := range page.Items {
			ids = append(ids, t.ID.String())
		}
		if page.Page >= page.TotalPages {
			return ids, nil
		}
		q.Page++
	}
}

// collect gathers everything exported for one ticket, walking every thread page
func collect(ctx context.Context, ctrl *workflow.Controller, api *client.Client, ref string) (*exportDoc, error) {
	t, err := api.ResolveTicket(ctx, ref)
	if err != nil {
		return nil, err
	}
	snap, err := ctrl.Refresh(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	doc := &exportDoc{
		Ticket:    snap.Ticket,
		Resources: snap.Resources,
		Hours:     snap.Hours,
		Messages:  snap.Messages.Items,
	}
	for p := 2; p <= snap.Messages.TotalPages; p++ {
		page, err := api.ListMessages(ctx, client.MessageQuery{TicketID: t.ID, Page: p})
		if err != nil {
			return nil, err
		}
		doc.Messages = append(doc.Messages, page.Items...)
	}

	doc.History, err = api.TicketHistory(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func downloadAttachments(ctx context.Context, api *client.Client, dir string, msgs []models.Message) (int, error) {
	count := 0
	for _, m := range msgs {
		for _, a := range m.Attachments {
			if count == 0 {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return 0, err
				}
			}
			if err := downloadOne(ctx, api, filepath.Join(dir, a.ID.String()[:8]+"-"+filepath.Base(a.Name)), a.Path); err != nil {
				return count, fmt.Errorf("%s: %w", a.Name, err)
			}
			count++
		}
	}
	return count, nil
}

func downloadOne(ctx context.Context, api *client.Client, dest, path string) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := api.Download(ctx, path, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
