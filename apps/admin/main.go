package main

import (
	"log"
	"net/http"
	"os"

	"github.com/trezcool/rollbook/core"
	"github.com/trezcool/rollbook/core/attendance"
	"github.com/trezcool/rollbook/core/credential"
	"github.com/trezcool/rollbook/core/directory"
	"github.com/trezcool/rollbook/core/records"
	logsvc "github.com/trezcool/rollbook/services/logger"
	"github.com/trezcool/rollbook/storage/airtable"
	"github.com/trezcool/rollbook/storage/memstore"
)

func main() {
	stdLogger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()
	if err := conf.Validate(); err != nil {
		stdLogger.Fatal(err)
	}
	logger := logsvc.NewRollbarLogger(stdLogger, conf)

	deriver, err := credential.NewDeriver([]byte(conf.SecretKey))
	if err != nil {
		logger.Fatal(err.Error(), err)
	}

	var store records.Store
	if conf.Store.BaseID != "" {
		store = airtable.NewClient(conf.Store, logger, &http.Client{})
	} else {
		logger.Warn("no STORE_BASE_ID, using an empty in-memory store")
		store = memstore.New(conf.Store.PageSize)
	}
	dir := directory.New(store, deriver, logger, directory.Options{
		Table:          conf.Store.StudentsTable,
		MasterPassword: conf.MasterPassword,
	})

	// start CLI
	cli := commandLine{
		deriver: deriver,
		dir:     dir,
		att: attendance.NewService(store, dir, logger, attendance.Options{
			StudentsTable:   conf.Store.StudentsTable,
			AttendanceTable: conf.Store.AttendanceTable,
			CoursesTable:    conf.Store.CoursesTable,
			Location:        conf.Location,
			PageSize:        conf.Store.PageSize,
		}),
		timeout: conf.Store.Timeout,
		out:     os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			stdLogger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
