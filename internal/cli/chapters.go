package cli

import (
	"fmt"
	"io"

	"github.com/lherron/folio/internal/cli/appctx"
	"github.com/lherron/folio/internal/domain"
	"github.com/spf13/cobra"
)

var chapterCmd = &cobra.Command{
	Use:     "chapter",
	Aliases: []string{"chapters"},
	Short:   "Manage chapters of a project",
}

var chapterAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Append a chapter to a project",
	Long: `Add creates a chapter in --project. Content comes from --content, or from
--file (use - for stdin). A markdown file may start with YAML front matter
setting title and order; flags and arguments take precedence. Without an
order the chapter goes last.

Examples:
  folio chapter add -p 3f2a "Arrival" --content "The ship docked."
  folio chapter add -p 3f2a -f chapters/01-arrival.md`,
	Args: cobra.RangeArgs(0, 1),
	RunE: appctx.WithApp(appctx.WithUser(), runChapterAdd),
}

var chapterLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List live chapters of a project in order",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.WithUser(), runChapterLs),
}

var chapterRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a chapter",
	Args:  cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.WithUser(), func(app *appctx.App, cmd *cobra.Command, args []string) error {
		return runRemove(app, cmd, domain.EntityChapter, args[0])
	}),
}

var (
	chapterProject string
	chapterContent string
	chapterFile    string
	chapterOrder   int
)

func init() {
	rootCmd.AddCommand(chapterCmd)
	chapterCmd.AddCommand(chapterAddCmd, chapterLsCmd, chapterRmCmd)

	chapterCmd.PersistentFlags().StringVarP(&chapterProject, "project", "p", "", "Project id or prefix")
	chapterAddCmd.Flags().StringVar(&chapterContent, "content", "", "Chapter text")
	chapterAddCmd.Flags().StringVarP(&chapterFile, "file", "f", "", "Read chapter text from file (- for stdin)")
	chapterAddCmd.Flags().IntVar(&chapterOrder, "order", -1, "Position within the project (default: last)")
}

func runChapterAdd(app *appctx.App, cmd *cobra.Command, args []string) error {
	projectID, err := requireProject(app, cmd, chapterProject)
	if err != nil {
		return err
	}
	draft, err := readDraft(cmd, chapterContent, chapterFile)
	if err != nil {
		return err
	}
	title := ""
	if len(args) > 0 {
		title = args[0]
	}
	title = orString(title, draft.Title)
	if title == "" {
		return fmt.Errorf("a chapter title is required")
	}

	order := chapterOrder
	if order < 0 && draft.Order != nil {
		order = *draft.Order
	}
	if order < 0 {
		existing, err := app.Store.ListChapters(cmd.Context(), app.UserID, projectID)
		if err != nil {
			return err
		}
		order = len(existing)
	}

	c := &domain.Chapter{
		UserID:    app.UserID,
		ProjectID: projectID,
		Title:     title,
		Content:   draft.Content,
		Order:     order,
	}
	if err := app.Store.SaveChapter(cmd.Context(), c); err != nil {
		return err
	}
	return renderCreated(app, cmd, domain.EntityChapter, c.ID, c)
}

func runChapterLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	projectID, err := requireProject(app, cmd, chapterProject)
	if err != nil {
		return err
	}
	chapters, err := app.Store.ListChapters(cmd.Context(), app.UserID, projectID)
	if err != nil {
		return err
	}
	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}
	return r.Render(chapters, func(w io.Writer) error {
		rows := make([][]string, 0, len(chapters))
		for _, c := range chapters {
			rows = append(rows, []string{
				fmt.Sprintf("%d", c.Order), short(c.ID), c.Title, fmt.Sprintf("%d", c.WordCount), c.UpdatedAt,
			})
		}
		return tableOrEmpty(w, []string{"#", "ID", "TITLE", "WORDS", "UPDATED"}, rows, "No chapters.")
	})
}

func requireProject(app *appctx.App, cmd *cobra.Command, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("--project is required")
	}
	return resolveID(app, cmd, domain.EntityProject, ref)
}
