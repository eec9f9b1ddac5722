package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lherron/folio/internal/cli"
	"github.com/lherron/folio/internal/watch"
)

func main() {
	addr := flag.String("addr", "", "Listen address (default from FOLIO_LISTEN_ADDR or 127.0.0.1:7464)")
	unixPath := flag.String("unix", "", "Listen on unix socket path")
	token := flag.String("token", "", "Shared token for local auth")
	dbPath := flag.String("db", "", "Database path override (defaults to config)")
	user := flag.String("user", "", "User id override (defaults to config)")
	autoSync := flag.Bool("auto-sync", false, "Sync after local database writes")
	debounce := flag.Duration("debounce", watch.DefaultDebounce, "Quiet period before an auto-sync")
	flag.Parse()

	opts := cli.DaemonOptions{
		Addr:     *addr,
		Unix:     *unixPath,
		Token:    *token,
		DBPath:   *dbPath,
		UserID:   *user,
		AutoSync: *autoSync,
		Debounce: *debounce,
	}

	if err := cli.ServeDaemon(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
