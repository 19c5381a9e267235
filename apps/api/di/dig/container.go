package dig_container

import (
	"log"
	"net/http"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/rollbook/apps/api/echo"
	"github.com/trezcool/rollbook/core"
	"github.com/trezcool/rollbook/core/attendance"
	"github.com/trezcool/rollbook/core/credential"
	"github.com/trezcool/rollbook/core/directory"
	"github.com/trezcool/rollbook/core/records"
	logsvc "github.com/trezcool/rollbook/services/logger"
	"github.com/trezcool/rollbook/storage/airtable"
	"github.com/trezcool/rollbook/storage/memstore"
)

type StoreLoggerParam struct {
	dig.In
	Logger core.Logger `name:"storeLogger"`
}

// newConfig validates the configuration, a broken configuration is fatal.
func newConfig() *core.Config {
	conf := core.NewConfig()
	if err := conf.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	return conf
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newStoreLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "STORE : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

// newStore talks to the hosted store, or keeps records in memory when no base is configured (DEV only).
func newStore(conf *core.Config, loggerParam StoreLoggerParam) records.Store {
	if conf.Store.BaseID == "" {
		if conf.Env != "DEV" {
			loggerParam.Logger.Fatal("STORE_BASE_ID is required outside DEV")
		}
		loggerParam.Logger.Warn("no STORE_BASE_ID, using an empty in-memory store")
		return memstore.New(conf.Store.PageSize)
	}
	return airtable.NewClient(conf.Store, loggerParam.Logger, &http.Client{})
}

func newDeriver(conf *core.Config, logger core.Logger) *credential.Deriver {
	d, err := credential.NewDeriver([]byte(conf.SecretKey))
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
	return d
}

func newDirectory(conf *core.Config, store records.Store, deriver *credential.Deriver, logger core.Logger) *directory.Directory {
	return directory.New(store, deriver, logger, directory.Options{
		Table:          conf.Store.StudentsTable,
		MasterPassword: conf.MasterPassword,
	})
}

func newRefresher(conf *core.Config, dir *directory.Directory, logger core.Logger) *directory.Refresher {
	return directory.NewRefresher(dir, conf.DirectoryRefreshInterval, 0, logger)
}

func newAttendanceService(conf *core.Config, store records.Store, dir *directory.Directory, logger core.Logger) *attendance.Service {
	return attendance.NewService(store, dir, logger, attendance.Options{
		StudentsTable:   conf.Store.StudentsTable,
		AttendanceTable: conf.Store.AttendanceTable,
		CoursesTable:    conf.Store.CoursesTable,
		Location:        conf.Location,
		PageSize:        conf.Store.PageSize,
	})
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(newConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newStoreLogger, dig.Name("storeLogger")))
	must(c.Provide(newStore))
	must(c.Provide(newDeriver))
	must(c.Provide(newDirectory))
	must(c.Provide(func(d *directory.Directory) echoapi.Directory { return d }))
	must(c.Provide(newRefresher))
	must(c.Provide(newAttendanceService))
	must(c.Provide(func(s *attendance.Service) echoapi.Attendance { return s }))
	must(c.Provide(newTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
