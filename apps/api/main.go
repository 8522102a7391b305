package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	dig_container "github.com/sikhya/portal/apps/api/di/dig"
	echoapi "github.com/sikhya/portal/apps/api/echo"
	"github.com/sikhya/portal/core"
)

func main() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		closeStore dig_container.StoreCloser,
		validate *validator.Validate,
		translator ut.Translator,
		shutdown dig_container.Shutdown,
		server echoapi.Server,
		reconciler *cron.Cron,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		core.InitValidators(validate, translator)

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if err := closeStore(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		defer apiLogger.Info("Application stopped")

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)
		expvar.NewString("storage").Set(conf.Storage.Driver)

		if conf.Server.DebugHost != "" {
			go func() {
				if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
					apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
				}
			}()
		}

		// =========================================================================
		// Start Link Reconciliation

		reconciler.Start()
		defer func() {
			<-reconciler.Stop().Done() // wait for a running reconciliation
		}()

		// =========================================================================
		// Start API Service

		signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

		serverErrors := make(chan error, 1)
		go func() {
			apiLogger.Info(fmt.Sprintf("API listening on %s", conf.Server.Address))
			serverErrors <- server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-serverErrors:
			if err != nil && err != http.ErrServerClosed {
				apiLogger.Error(fmt.Sprintf("server error: %v", err), err)
			}

		case sig := <-shutdown:
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := server.Stop(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
			}
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
