package main

import (
	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/storage/database"
)

var gooseRunFunc = database.RunGoose // mockable

func (cli *commandLine) migrate(args []string) error {
	if cli.conf.Storage.Driver == core.StorageBolt {
		return errNoMigrations
	}
	return gooseRunFunc(cli.db, args[0], args[1:]...)
}
