package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"

	dig_container "github.com/trezcool/rollbook/apps/api/di/dig"
	echoapi "github.com/trezcool/rollbook/apps/api/echo"
	"github.com/trezcool/rollbook/core"
	"github.com/trezcool/rollbook/core/directory"
)

func startWithDig() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dir *directory.Directory,
		refresher *directory.Refresher,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
		defer apiLogger.Info("Application stopped")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// the directory is served empty until the first refresh succeeds
		if err := refresher.RefreshNow(ctx); err == nil {
			apiLogger.Info(fmt.Sprintf("directory loaded : %d entries", dir.Len()))
		}
		go refresher.Run(ctx)

		// =========================================================================
		// Start Debug Service
		//
		// /debug/vars - Added to the default mux by importing the expvar package.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)
		expvar.Publish("directory", expvar.Func(func() interface{} { return dir.Status() }))

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
			cancel() // stop the refresher

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
