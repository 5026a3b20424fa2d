// Command backend runs an embedded PocketBase with the terra-eye collections
// for local development. Production deployments point POCKETBASE_URL at
// their own PocketBase and apply the same migrations with `migrate up`.
package main

import (
	"os"
	"strings"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	log "github.com/sirupsen/logrus"

	_ "terra-eye/migrations"
)

func main() {
	app := pocketbase.New()

	// automigrate only when running from source
	isGoRun := strings.HasPrefix(os.Args[0], os.TempDir())
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Dir:         "migrations",
		Automigrate: isGoRun,
	})

	if err := app.Start(); err != nil {
		log.Fatalf("❌ backend failed: %v", err)
	}
}
