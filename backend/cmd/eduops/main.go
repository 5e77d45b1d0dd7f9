// Command eduops integrates and analyses the education statistics datasets.
package main

import (
	"context"
	"os"

	"github.com/JustUsingaWebsite/eduops/backend/cmd/eduops/app"
)

// Populated at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, cancel := app.ContextWithSignals(context.Background())
	defer cancel()

	if err := app.New(version).Execute(ctx, os.Args[1:]); err != nil {
		cancel()
		app.ExitOnError(err)
	}
}
