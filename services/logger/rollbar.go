package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/rollbook/core"
	"github.com/trezcool/rollbook/core/directory"
)

// RollbarLogger prints to std and reports to Rollbar when a token is configured.
type RollbarLogger struct {
	std   *log.Logger
	debug bool
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Address)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)
	return &RollbarLogger{std: std, debug: conf.Debug}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}, directory.Identity
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var idtSet bool
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		if idt, ok := arg.(directory.Identity); ok {
			if idt.IdentityToken == "" { // anonymous
				continue
			}
			if !idtSet { // only set one person
				rollbar.SetPerson(idt.IdentityToken, idt.Alias, "")
				idtSet = true
			}
			newArgs = append(newArgs, map[string]interface{}{"staff_override": idt.StaffOverride})
		} else {
			newArgs = append(newArgs, arg)
		}
	}
	if !idtSet {
		rollbar.ClearPerson()
	}
	return newArgs
}

func (l RollbarLogger) print(level, msg string, args []interface{}) {
	l.std.Printf("%s: %s", level, msg)
	for _, arg := range args {
		l.std.Printf("  %+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	if !l.debug {
		return
	}
	rollbar.Debug(l.prepare(msg, args)...)
	l.print("DEBUG", msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.print("INFO", msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print("WARN", msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print("ERROR", msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	l.print("FATAL", msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
