// Command lead-resync is an operator tool for rewinding a tenant's poll
// cursor. With -reset the cursor is removed so the next poll restarts from
// the configured lookback; with -from the cursor is pinned to an explicit
// timestamp. Re-emitted events are absorbed by the idempotent reconciler.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/cursor"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/config"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/logger"
)

func main() {
	tenantID := flag.String("tenant", "", "tenant id whose cursor to rewind (required)")
	reset := flag.Bool("reset", false, "remove the cursor entirely")
	from := flag.String("from", "", "pin the cursor to this RFC3339 timestamp")
	list := flag.Bool("list", false, "list all stored cursors and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)

	cursors, err := cursor.NewStore(cfg.CursorDir, cfg.CursorStaleness)
	if err != nil {
		log.Error("failed to open cursor store", "error", err)
		os.Exit(1)
	}

	if *list {
		all, err := cursors.List()
		if err != nil {
			log.Error("failed to list cursors", "error", err)
			os.Exit(1)
		}
		for _, cur := range all {
			fmt.Printf("%s\t%s\tid=%d\tsaved=%s\n",
				cur.TenantID,
				cur.Position.UpdatedAt.Format(time.RFC3339),
				cur.Position.ID,
				cur.SavedAt.Format(time.RFC3339),
			)
		}
		return
	}

	if *tenantID == "" {
		fmt.Fprintln(os.Stderr, "usage: lead-resync -tenant <id> [-reset | -from <rfc3339>]")
		os.Exit(2)
	}

	switch {
	case *reset:
		if err := cursors.Reset(*tenantID); err != nil {
			log.Error("failed to reset cursor", "tenant_id", *tenantID, "error", err)
			os.Exit(1)
		}
		log.Info("cursor reset, next poll restarts from lookback", "tenant_id", *tenantID)

	case *from != "":
		at, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -from timestamp: %v\n", err)
			os.Exit(2)
		}
		if err := cursors.Save(*tenantID, cursor.Position{UpdatedAt: at.UTC()}); err != nil {
			log.Error("failed to pin cursor", "tenant_id", *tenantID, "error", err)
			os.Exit(1)
		}
		log.Info("cursor pinned", "tenant_id", *tenantID, "from", at.UTC().Format(time.RFC3339))

	default:
		fmt.Fprintln(os.Stderr, "nothing to do: pass -reset or -from")
		os.Exit(2)
	}
}
