package main

import (
	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/storage/database"
)

var migrateFunc = runMigrations // mockable

func runMigrations(conf *core.Config, command string, args ...string) error {
	if err := database.CreateIfNotExist(conf); err != nil {
		return err
	}
	db, err := database.Open(conf)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return database.RunMigrations(db.DB, command, args...)
}

func (cli *commandLine) migrate(args []string) error {
	if cli.conf.Database.Engine != core.EnginePostgres {
		return errNotPostgres
	}
	return migrateFunc(cli.conf, args[0], args[1:]...)
}
