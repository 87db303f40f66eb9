// Command useradd creates a dashboard operator, or resets an operator's
// password with -reset. It reads the same configuration as the server.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"log"
	"os"

	"github.com/dmitrijs2005/catalogadmin/internal/adminctl"
	"github.com/dmitrijs2005/catalogadmin/internal/flagx"
	"github.com/dmitrijs2005/catalogadmin/internal/logging"
	"github.com/dmitrijs2005/catalogadmin/internal/server/config"
	"github.com/dmitrijs2005/catalogadmin/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/catalogadmin/internal/server/services"
)

func main() {
	var opts adminctl.UserAddOptions

	fs := flag.NewFlagSet("useradd", flag.ExitOnError)
	fs.StringVar(&opts.Email, "email", "", "operator email")
	fs.BoolVar(&opts.Reset, "reset", false, "reset the password of an existing operator")
	_ = fs.Parse(flagx.FilterArgs(os.Args[1:], []string{"-email", "--email", "-reset", "--reset"}))

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewJSONLogger(os.Stderr, cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	us := services.NewUserService(db, rm, cfg, logger)
	if err := adminctl.UserAdd(ctx, us, bufio.NewReader(os.Stdin), os.Stdout, opts); err != nil {
		log.Fatalf("%v", err)
	}
}
