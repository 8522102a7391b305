package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/teaching"
	"github.com/sikhya/portal/core/user"
	logsvc "github.com/sikhya/portal/services/logger"
	"github.com/sikhya/portal/storage/database"
	boltdb "github.com/sikhya/portal/storage/database/bolt"
	sqlxrepos "github.com/sikhya/portal/storage/database/sqlx"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()

	rl := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	rl.Enable(!conf.Debug)
	logger = rl

	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	cli := commandLine{
		conf:     conf,
		validate: validate,
		out:      os.Stdout,
	}

	// set up the store
	switch conf.Storage.Driver {
	case core.StorageBolt:
		db, err := boltdb.Open(conf.Storage.BoltPath)
		errAndDie(err)
		defer closeOrLog(db.Close)

		usrRepo := boltdb.NewUserRepository(db)
		cli.usrSvc = user.NewService(db, usrRepo, nil)
		cli.teachSvc = teaching.NewService(db, boltdb.NewLinkRepository(db), usrRepo, boltdb.NewProgressRepository(db), logger)

	default:
		db, err := database.Open(conf)
		errAndDie(err)
		errAndDie(db.Ping())
		defer closeOrLog(db.Close)

		store := sqlxrepos.New(database.NewDBX(db))
		usrRepo := sqlxrepos.NewUserRepository(store)
		cli.db = db
		cli.usrSvc = user.NewService(store, usrRepo, nil)
		cli.teachSvc = teaching.NewService(store, sqlxrepos.NewLinkRepository(store), usrRepo, sqlxrepos.NewProgressRepository(store), logger)
	}

	// start CLI
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed: "+err.Error(), err)
		}
		os.Exit(1)
	}
}

func closeOrLog(closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Error("closing store: "+err.Error(), err)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
