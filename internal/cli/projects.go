package cli

import (
	"fmt"
	"io"

	"github.com/lherron/folio/internal/cli/appctx"
	"github.com/lherron/folio/internal/domain"
	"github.com/lherron/folio/internal/render"
	"github.com/spf13/cobra"
)

var projectCmd = &cobra.Command{
	Use:     "project",
	Aliases: []string{"projects"},
	Short:   "Manage projects (manuscripts)",
}

var projectAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.WithUser(), runProjectAdd),
}

var projectLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List live projects",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.WithUser(), runProjectLs),
}

var projectRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a project and, on every device after sync, everything in it",
	Args:  cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.WithUser(), func(app *appctx.App, cmd *cobra.Command, args []string) error {
		return runRemove(app, cmd, domain.EntityProject, args[0])
	}),
}

var projectDescription string

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectAddCmd, projectLsCmd, projectRmCmd)

	projectAddCmd.Flags().StringVar(&projectDescription, "description", "", "Project description")
}

func runProjectAdd(app *appctx.App, cmd *cobra.Command, args []string) error {
	p := &domain.Project{UserID: app.UserID, Title: args[0], Description: projectDescription}
	if err := app.Store.SaveProject(cmd.Context(), p); err != nil {
		return err
	}
	return renderCreated(app, cmd, domain.EntityProject, p.ID, p)
}

func runProjectLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	projects, err := app.Store.ListProjects(cmd.Context(), app.UserID)
	if err != nil {
		return err
	}
	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}
	return r.Render(projects, func(w io.Writer) error {
		rows := make([][]string, 0, len(projects))
		for _, p := range projects {
			rows = append(rows, []string{short(p.ID), p.Title, p.UpdatedAt})
		}
		return tableOrEmpty(w, []string{"ID", "TITLE", "UPDATED"}, rows, "No projects.")
	})
}

// renderCreated prints the new entity, or a one-line confirmation in table
// mode.
func renderCreated(app *appctx.App, cmd *cobra.Command, kind domain.EntityType, entityID string, entity any) error {
	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}
	return r.Render(entity, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "✓ Created %s %s\n", kind, entityID)
		return err
	})
}

func runRemove(app *appctx.App, cmd *cobra.Command, kind domain.EntityType, ref string) error {
	entityID, err := resolveID(app, cmd, kind, ref)
	if err != nil {
		return err
	}
	tomb, err := app.Store.SoftDelete(cmd.Context(), app.UserID, kind, entityID)
	if err != nil {
		return err
	}
	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}
	return r.Render(tomb, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "✓ Deleted %s %s\n", kind, entityID)
		return err
	})
}

func tableOrEmpty(w io.Writer, headers []string, rows [][]string, empty string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, empty)
		return err
	}
	return render.Table(w, headers, rows)
}
