package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/yungbote/curator-backend/internal/app"
	"github.com/yungbote/curator-backend/internal/data/repos"
	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
)

// Fills content fingerprints on discovered items stored before hashing ran
// at ingest, so the duplicate detector can match them.
func main() {
	var batch int
	var dryRun bool
	flag.IntVar(&batch, "batch", 500, "rows updated per query")
	flag.BoolVar(&dryRun, "dry-run", false, "count items missing a fingerprint without updating")
	flag.Parse()

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	dbc := dbctx.Context{Ctx: context.Background()}
	if dryRun {
		rows, err := application.Repos.Items.QueryByState(dbc, types.StateDiscovered, repos.ItemFilter{MissingHash: true})
		if err != nil {
			fmt.Printf("query items: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%d discovered items missing a fingerprint\n", len(rows))
		return
	}

	n, err := application.Services.Items.BackfillFingerprints(dbc, batch)
	if err != nil {
		fmt.Printf("backfill stopped after %d items: %v\n", n, err)
		os.Exit(1)
	}
	fmt.Printf("backfilled %d items\n", n)
}
