package main

import (
	"context"
	"errors"

	"github.com/trezcool/companion/storage/database"
)

var (
	migrateFunc = database.Migrate // mockable

	errNoSQLStorage = errors.New("migrations need the postgres storage backend")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoSQLStorage
	}
	return migrateFunc(context.Background(), cli.db, args[0], args[1:]...)
}
