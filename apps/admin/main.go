package main

import (
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/timetable"
	"github.com/trezcool/ratiba/core/user"
	emailsvc "github.com/trezcool/ratiba/services/email"
	logsvc "github.com/trezcool/ratiba/services/logger"
	"github.com/trezcool/ratiba/storage/database"
)

func main() {
	conf := core.NewConfig()

	zapLogger, err := logsvc.NewZapLogger(conf)
	if err != nil {
		panic(err)
	}
	logger := zapLogger.Named("admin").Sugar()
	defer func() { _ = logger.Sync() }()

	cli := &commandLine{conf: conf}
	closeStore := func() {}

	// migrations manage their own connection
	if len(os.Args) < 2 || os.Args[1] != "migrate" {
		store, err := database.OpenStore(conf)
		if err != nil {
			logger.Fatalw("setting up database", zap.Error(err))
		}
		closeStore = func() {
			if err := store.Close(); err != nil {
				logger.Errorw("closing database", zap.Error(err))
			}
		}

		validate := validator.New()
		translator := core.NewTranslator()
		core.InitValidators(validate, translator)
		user.InitValidators(validate, translator)

		cli.usrRepo = store.Users
		cli.usrSvc = user.NewService(store.Users, emailsvc.NewService(conf, logsvc.NewRollbarLogger(zapLogger, conf)), conf)
		cli.ttSvc = timetable.NewService(store.Timetable, validate, conf)
	}

	err = cli.run(os.Args)
	closeStore()
	if err != nil {
		if err != errHelp {
			logger.Errorw("command failed", zap.Error(err))
		}
		_ = logger.Sync()
		os.Exit(1)
	}
}
