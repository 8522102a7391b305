package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/dig"

	echoapi "github.com/sikhya/portal/apps/api/echo"
	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/catalog"
	"github.com/sikhya/portal/core/progress"
	"github.com/sikhya/portal/core/teaching"
	"github.com/sikhya/portal/core/user"
	emailsvc "github.com/sikhya/portal/services/email"
	logsvc "github.com/sikhya/portal/services/logger"
	"github.com/sikhya/portal/storage/database"
	boltdb "github.com/sikhya/portal/storage/database/bolt"
	sqlxrepos "github.com/sikhya/portal/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Store is the storage backend picked by the configured driver.
type Store struct {
	dig.Out
	Tx       core.Transactor
	Users    user.Repository
	Progress progress.Repository
	Links    teaching.LinkRepository
	Closer   StoreCloser
}

type StoreCloser func() error

const reconcileTimeout = 5 * time.Minute

// Shutdown receives OS signals and the shutdown requests of the API server.
type Shutdown chan os.Signal

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newStore(conf *core.Config, loggerParam DBLoggerParam) Store {
	switch conf.Storage.Driver {
	case core.StorageBolt:
		db, err := boltdb.Open(conf.Storage.BoltPath)
		if err != nil {
			loggerParam.Logger.Fatal(fmt.Sprintf("opening bolt store: %v", err), err)
		}
		return Store{
			Tx:       db,
			Users:    boltdb.NewUserRepository(db),
			Progress: boltdb.NewProgressRepository(db),
			Links:    boltdb.NewLinkRepository(db),
			Closer:   db.Close,
		}

	default:
		setUp := func() (*sqlxrepos.DB, error) {
			if err := database.CreateIfNotExist(conf); err != nil {
				return nil, err
			}
			db, err := database.Open(conf)
			if err != nil {
				return nil, err
			}
			if err = database.Migrate(db); err != nil {
				return nil, err
			}
			return sqlxrepos.New(database.NewDBX(db)), nil
		}

		db, err := setUp()
		if err != nil {
			loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		return Store{
			Tx:       db,
			Users:    sqlxrepos.NewUserRepository(db),
			Progress: sqlxrepos.NewProgressRepository(db),
			Links:    sqlxrepos.NewLinkRepository(db),
			Closer:   db.Close,
		}
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newShutdown() Shutdown {
	return make(Shutdown, 1)
}

func newServerOptions(
	conf *core.Config,
	logger core.Logger,
	shutdown Shutdown,
	validate *validator.Validate,
	translator ut.Translator,
	cat *catalog.Catalog,
	usrSvc user.Service,
	progSvc progress.Service,
	teachSvc teaching.Service,
) *echoapi.Options {
	return &echoapi.Options{
		Conf: conf,
		SignalShutdown: func() {
			select {
			case shutdown <- syscall.SIGTERM:
			default: // already shutting down
			}
		},
		Logger:      logger,
		Validate:    validate,
		Translator:  translator,
		Catalog:     cat,
		UserSvc:     usrSvc,
		ProgressSvc: progSvc,
		TeachingSvc: teachSvc,
	}
}

// newLinkReconciler schedules teaching.Service.ReconcileLinks. It has no entries when
// the schedule is empty.
func newLinkReconciler(conf *core.Config, logger core.Logger, svc teaching.Service) (*cron.Cron, error) {
	cronLogger := cron.PrintfLogger(log.New(os.Stdout, "CRON : ", log.LstdFlags))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	if conf.Links.ReconcileSchedule == "" {
		return c, nil
	}
	_, err := c.AddFunc(conf.Links.ReconcileSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()

		n, err := svc.ReconcileLinks(ctx)
		if err != nil {
			logger.Error(fmt.Sprintf("reconciling links: %v", err), err)
			return
		}
		if n > 0 {
			logger.Info(fmt.Sprintf("reconciled links: %d created", n))
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scheduling link reconciliation %q", conf.Links.ReconcileSchedule)
	}
	return c, nil
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStore))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(catalog.Load))
	must(c.Provide(user.NewService))
	must(c.Provide(progress.NewService))
	must(c.Provide(teaching.NewService))
	must(c.Provide(newShutdown))
	must(c.Provide(newServerOptions))
	must(c.Provide(echoapi.NewServer))
	must(c.Provide(newLinkReconciler))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
