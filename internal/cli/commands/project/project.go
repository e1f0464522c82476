package project

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/afterdarksys/servicedesk/internal/cli/cliutil"
	"github.com/afterdarksys/servicedesk/internal/models"
)

// ProjectCmd represents the project command group
var ProjectCmd = &cobra.Command{
	Use:     "project",
	Aliases: []string{"projects", "p"},
	Short:   "Browse projects and categorization values",
	Long: `List the projects you can open tickets on and the values accepted
by the category, module and priority fields.

Examples:
  desk project list
  desk project values priority
  desk project values module --project 7b0c...`,
}

func init() {
	ProjectCmd.AddCommand(listCmd)
	ProjectCmd.AddCommand(valuesCmd)

	listCmd.Flags().Bool("all", false, "Include inactive projects")
	valuesCmd.Flags().String("project", "", "Only values available to this project")
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects",
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")

		api := cliutil.NewClient()
		ctx, cancel := cliutil.Context()
		defer cancel()

		projects, err := api.ListProjects(ctx, all)
		if err != nil {
			cliutil.Fail(err)
		}
		cliutil.Print(projects, func(out io.Writer) {
			if len(projects) == 0 {
				fmt.Fprintln(out, "No projects")
				return
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tKIND\tACTIVE")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", p.ID, p.Name, p.Kind, p.IsActive)
			}
			w.Flush()
		})
	},
}

var valuesCmd = &cobra.Command{
	Use:       "values [category|module|priority]",
	Short:     "List the values of a categorization field",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(models.FieldCategory), string(models.FieldModule), string(models.FieldPriority)},
	Run: func(cmd *cobra.Command, args []string) {
		field := models.CategorizationField(strings.ToLower(args[0]))
		if !field.Valid() {
			cliutil.Fail(fmt.Errorf("unknown field %q: expected category, module or priority", args[0]))
		}
		var projectID *uuid.UUID
		if s, _ := cmd.Flags().GetString("project"); s != "" {
			id, err := cliutil.ParseUUID("project id", s)
			if err != nil {
				cliutil.Fail(err)
			}
			projectID = &id
		}

		api := cliutil.NewClient()
		ctx, cancel := cliutil.Context()
		defer cancel()

		values, err := api.Lookups(ctx, field, projectID)
		if err != nil {
			cliutil.Fail(err)
		}
		cliutil.Print(values, func(out io.Writer) {
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME")
			for _, v := range values {
				fmt.Fprintf(w, "%d\t%s\n", v.ID, v.Name)
			}
			w.Flush()
		})
	},
}
