package main

import (
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/NickGuerrero/cti-sys/storage/database"
)

var gooseRunFunc = runMigration // mockable

func runMigration(command string, db *sqlx.DB, version int64) error {
	switch command {
	case "up":
		return database.Migrate(db)
	case "up-by-one":
		return database.MigrateByOne(db)
	case "up-to":
		return database.MigrateTo(db, version)
	case "down":
		return database.Rollback(db)
	case "down-to":
		return database.RollbackTo(db, version)
	case "redo":
		return database.Redo(db)
	}
	return fmt.Errorf("%q: no such command", command)
}

func (cli *commandLine) migrate(args []string) error {
	command := args[0]
	var version int64

	switch command {
	case "up", "up-by-one", "down", "redo": // pass
	case "up-to", "down-to":
		if len(args) < 2 {
			return fmt.Errorf("%s must be of form: admin migrate %s VERSION", command, command)
		}
		v, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("version must be a number (got '%s')", args[1])
		}
		version = v
	default:
		return fmt.Errorf("%q: no such command", command)
	}

	if err := gooseRunFunc(command, cli.db, version); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "migrate %s: OK\n", command)
	return nil
}
