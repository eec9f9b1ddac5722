package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/lherron/folio/internal/cli/appctx"
	"github.com/lherron/folio/internal/config"
	"github.com/lherron/folio/internal/domain"
	"github.com/lherron/folio/internal/id"
	"github.com/lherron/folio/internal/parse"
	"github.com/lherron/folio/internal/remote"
	"github.com/lherron/folio/internal/render"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rendererFor picks the output format from --json, then --output, then
// the configured default.
func rendererFor(cmd *cobra.Command, configured string) (*render.Renderer, error) {
	if f := cmd.Flag("json"); f != nil && f.Value.String() == "true" {
		return render.NewRenderer(cmd.OutOrStdout(), render.FormatJSON), nil
	}
	value := configured
	if f := cmd.Flag("output"); f != nil && f.Value.String() != "" {
		value = f.Value.String()
	}
	format, err := render.ParseFormat(value)
	if err != nil {
		return nil, err
	}
	return render.NewRenderer(cmd.OutOrStdout(), format), nil
}

func appRenderer(app *appctx.App, cmd *cobra.Command) (*render.Renderer, error) {
	configured := ""
	if app.Config != nil {
		configured = app.Config.Output
	}
	return rendererFor(cmd, configured)
}

// newRemote builds the configured sync backend. An HTTP URL takes
// precedence over a shared directory.
func newRemote(cfg *config.Config, logger *zap.Logger) (remote.Remote, error) {
	switch {
	case cfg.RemoteURL != "":
		return remote.NewHTTP(cfg.RemoteURL, cfg.RemoteToken, 30*time.Second), nil
	case cfg.RemoteDir != "":
		return remote.NewDir(cfg.RemoteDir, logger), nil
	}
	return nil, fmt.Errorf("no remote configured (set FOLIO_REMOTE_URL or FOLIO_REMOTE_DIR)")
}

// parseKind accepts entity type names in their wire form or common CLI
// spellings.
func parseKind(s string) (domain.EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "project", "projects":
		return domain.EntityProject, nil
	case "chapter", "chapters":
		return domain.EntityChapter, nil
	case "character", "characters":
		return domain.EntityCharacter, nil
	case "term", "terms":
		return domain.EntityTerm, nil
	case "world-doc", "world-docs", "worlddocument", "world-document", "worlddoc":
		return domain.EntityWorldDocument, nil
	case "memo", "memos":
		return domain.EntityMemo, nil
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// resolveID expands a full id or unique prefix against the user's live
// entities of kind.
func resolveID(app *appctx.App, cmd *cobra.Command, kind domain.EntityType, ref string) (string, error) {
	candidates, err := app.Store.LiveIDs(cmd.Context(), app.UserID, kind)
	if err != nil {
		return "", err
	}
	resolved, err := id.Resolve(ref, candidates)
	if err != nil {
		return "", fmt.Errorf("%s: %w", kind, err)
	}
	return resolved, nil
}

// readDraft returns inline content as a bare draft, or parses file (stdin
// when file is "-"). Markdown files may carry YAML front matter.
func readDraft(cmd *cobra.Command, inline, file string) (*parse.Draft, error) {
	if file == "" {
		return &parse.Draft{Content: inline}, nil
	}
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
	}
	d, err := parse.Parse(data, parse.FormatFor(file))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	if inline != "" {
		d.Content = inline
	}
	return d, nil
}

func orString(flag string, fromFile *string) string {
	if flag == "" && fromFile != nil {
		return *fromFile
	}
	return flag
}

func short(s string) string {
	return id.Short(s)
}

// shortRev trims a "sha256:<hex>" revision for display.
func shortRev(rev string) string {
	rev = strings.TrimPrefix(rev, "sha256:")
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
