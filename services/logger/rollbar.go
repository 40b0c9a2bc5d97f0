package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	rollbarerrs "github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/shule/core"
)

type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(rollbarerrs.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// print mirrors everything to the std logger; key/value args follow the msg.
func (l RollbarLogger) print(level, msg string, args []interface{}) {
	l.std.Printf("%s: %s", level, msg)
	for _, arg := range args {
		l.std.Printf("%+v", arg)
	}
}

func (l RollbarLogger) fields(args []interface{}) map[string]interface{} {
	flds := make(map[string]interface{}, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			flds[key] = args[i+1]
		}
	}
	return flds
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	l.print("DEBUG", msg, args)
	rollbar.Debug(msg, l.fields(args))
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	l.print("INFO", msg, args)
	rollbar.Info(msg, l.fields(args))
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	l.print("WARN", msg, args)
	rollbar.Warning(msg, l.fields(args))
}

func (l RollbarLogger) Error(msg string, err error, args ...interface{}) {
	l.print("ERROR", msg+": "+err.Error(), args)
	rollbar.Error(msg, err, l.fields(args))
}

func (l RollbarLogger) Fatal(msg string, err error, args ...interface{}) {
	rollbar.Critical(msg, err, l.fields(args))
	rollbar.Wait()
	l.std.Fatalf("%s: %v", msg, err)
}
