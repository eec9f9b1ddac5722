package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/lherron/folio/internal/cli/appctx"
	"github.com/lherron/folio/internal/domain"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <character|term|world-doc|memo> <name>",
	Short: "Add a character, term, world document or memo to a project",
	Long: `Add creates a project-scoped entity. The second argument is the character
name, the term, or the title of a world document or memo.

Examples:
  folio add character -p 3f2a "Mara" --role protagonist
  folio add term -p 3f2a "Veil" --definition "The boundary between worlds"
  folio add world-doc -p 3f2a "Timeline" --type plot --file plot.md
  folio add memo -p 3f2a "Ideas" --content "..." --tags draft,act2

With --file, a markdown file may start with YAML front matter (description,
type, order, tags) filling flags that were not given.`,
	Args: cobra.ExactArgs(2),
	RunE: appctx.WithApp(appctx.WithUser(), runAdd),
}

var lsCmd = &cobra.Command{
	Use:   "ls <kind>",
	Short: "List live characters, terms, world documents or memos of a project",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.WithUser(), runLs),
}

var rmCmd = &cobra.Command{
	Use:   "rm <kind> <id>",
	Short: "Delete an entity and record a tombstone for sync",
	Args:  cobra.ExactArgs(2),
	RunE: appctx.WithApp(appctx.WithUser(), func(app *appctx.App, cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		return runRemove(app, cmd, kind, args[1])
	}),
}

var (
	addProject     string
	addContent     string
	addFile        string
	addDescription string
	addRole        string
	addDefinition  string
	addCategory    string
	addDocType     string
	addTags        string
	addOrder       int
	lsProject      string
)

func init() {
	rootCmd.AddCommand(addCmd, lsCmd, rmCmd)

	addCmd.Flags().StringVarP(&addProject, "project", "p", "", "Project id or prefix")
	addCmd.Flags().StringVar(&addContent, "content", "", "Body text (world documents, memos)")
	addCmd.Flags().StringVarP(&addFile, "file", "f", "", "Read body text from file (- for stdin)")
	addCmd.Flags().StringVar(&addDescription, "description", "", "Character description")
	addCmd.Flags().StringVar(&addRole, "role", "", "Character role")
	addCmd.Flags().StringVar(&addDefinition, "definition", "", "Term definition")
	addCmd.Flags().StringVar(&addCategory, "category", "", "Term category")
	addCmd.Flags().StringVar(&addDocType, "type", string(domain.WorldDocSetting), "World document type: synopsis, plot, drawing, mindmap, graph, setting")
	addCmd.Flags().StringVar(&addTags, "tags", "", "Comma-separated memo tags")
	addCmd.Flags().IntVar(&addOrder, "order", 0, "Sort position (characters, terms)")

	lsCmd.Flags().StringVarP(&lsProject, "project", "p", "", "Project id or prefix")
}

func runAdd(app *appctx.App, cmd *cobra.Command, args []string) error {
	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}
	if kind == domain.EntityProject || kind == domain.EntityChapter {
		return fmt.Errorf("use 'folio %s add' to create a %s", kind, kind)
	}
	projectID, err := requireProject(app, cmd, addProject)
	if err != nil {
		return err
	}
	draft, err := readDraft(cmd, addContent, addFile)
	if err != nil {
		return err
	}
	content := draft.Content
	order := addOrder
	if !cmd.Flags().Changed("order") && draft.Order != nil {
		order = *draft.Order
	}
	docType := addDocType
	if !cmd.Flags().Changed("type") && draft.Type != nil {
		docType = *draft.Type
	}
	tags := splitTags(addTags)
	if len(tags) == 0 {
		tags = draft.Tags
	}

	ctx := cmd.Context()
	name := args[1]
	switch kind {
	case domain.EntityCharacter:
		c := &domain.Character{
			UserID: app.UserID, ProjectID: projectID, Name: name,
			Description: orString(addDescription, draft.Description), Role: addRole, Order: order,
		}
		if err := app.Store.SaveCharacter(ctx, c); err != nil {
			return err
		}
		return renderCreated(app, cmd, kind, c.ID, c)
	case domain.EntityTerm:
		t := &domain.Term{
			UserID: app.UserID, ProjectID: projectID, Term: name,
			Definition: orString(addDefinition, nonEmpty(content)), Category: addCategory, Order: order,
		}
		if err := app.Store.SaveTerm(ctx, t); err != nil {
			return err
		}
		return renderCreated(app, cmd, kind, t.ID, t)
	case domain.EntityWorldDocument:
		w := &domain.WorldDocument{
			UserID: app.UserID, ProjectID: projectID, Title: name,
			DocType: domain.WorldDocType(docType), Content: content,
		}
		if err := app.Store.SaveWorldDocument(ctx, w); err != nil {
			return err
		}
		return renderCreated(app, cmd, kind, w.ID, w)
	default:
		m := &domain.Memo{
			UserID: app.UserID, ProjectID: projectID, Title: name,
			Content: content, Tags: tags,
		}
		if err := app.Store.SaveMemo(ctx, m); err != nil {
			return err
		}
		return renderCreated(app, cmd, kind, m.ID, m)
	}
}

func runLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}
	switch kind {
	case domain.EntityProject:
		return runProjectLs(app, cmd, nil)
	case domain.EntityChapter:
		chapterProject = lsProject
		return runChapterLs(app, cmd, nil)
	}

	projectID, err := requireProject(app, cmd, lsProject)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}

	var (
		data    any
		headers []string
		rows    [][]string
	)
	switch kind {
	case domain.EntityCharacter:
		items, err := app.Store.ListCharacters(ctx, app.UserID, projectID)
		if err != nil {
			return err
		}
		data, headers = items, []string{"ID", "NAME", "ROLE", "UPDATED"}
		for _, c := range items {
			rows = append(rows, []string{short(c.ID), c.Name, c.Role, c.UpdatedAt})
		}
	case domain.EntityTerm:
		items, err := app.Store.ListTerms(ctx, app.UserID, projectID)
		if err != nil {
			return err
		}
		data, headers = items, []string{"ID", "TERM", "CATEGORY", "UPDATED"}
		for _, t := range items {
			rows = append(rows, []string{short(t.ID), t.Term, t.Category, t.UpdatedAt})
		}
	case domain.EntityWorldDocument:
		items, err := app.Store.ListWorldDocuments(ctx, app.UserID, projectID)
		if err != nil {
			return err
		}
		data, headers = items, []string{"ID", "TYPE", "TITLE", "UPDATED"}
		for _, w := range items {
			rows = append(rows, []string{short(w.ID), string(w.DocType), w.Title, w.UpdatedAt})
		}
	default:
		items, err := app.Store.ListMemos(ctx, app.UserID, projectID)
		if err != nil {
			return err
		}
		data, headers = items, []string{"ID", "TITLE", "TAGS", "UPDATED"}
		for _, m := range items {
			rows = append(rows, []string{short(m.ID), m.Title, strings.Join(m.Tags, ","), m.UpdatedAt})
		}
	}

	return r.Render(data, func(w io.Writer) error {
		return tableOrEmpty(w, headers, rows, fmt.Sprintf("No %ss.", kind))
	})
}

func splitTags(raw string) []string {
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
