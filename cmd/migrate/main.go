// migrate applies the SQL files under migrations/ to the configured
// database. Pass -down N to revert the last N instead.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/config"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/migration"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/postgresql"
)

func main() {
	var (
		dir  = flag.String("dir", "migrations", "Directory holding *.up.sql / *.down.sql pairs")
		down = flag.Int("down", 0, "Revert this many migrations instead of applying")
	)
	flag.Parse()

	cfg := config.MustLoad()
	log, err := logger.NewLogger(logger.WithLoggingLevel(logger.Level(cfg.App.LogLevel)))
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	db, err := postgresql.NewClient(ctx, cfg.Postgres)
	if err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "connect_postgres"})
		os.Exit(1)
	}
	defer db.Close()

	runner := migration.NewRunner(db, log, migration.Config{Dir: *dir})

	if *down > 0 {
		err = runner.Down(ctx, *down)
	} else {
		err = runner.Up(ctx)
	}
	if err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "migrate"})
		os.Exit(1)
	}

	log.Info("migrations complete")
	_ = log.Sync()
}
