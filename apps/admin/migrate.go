package main

import (
	"context"

	"github.com/itdsea/coursework/storage/database"
)

var gooseRunFunc = database.RunMigrationCommand // mockable

func (cli *commandLine) migrate(args []string) error {
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	if args[0] == "up" {
		// first run bootstraps the database itself
		if err := database.CreateIfNotExist(cli.conf); err != nil {
			return err
		}
	}
	return gooseRunFunc(context.Background(), cli.db.DB, args[0], arguments...)
}
