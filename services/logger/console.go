package logsvc

import (
	"fmt"
	"log"

	"github.com/trezcool/shule/core"
)

// ConsoleLogger writes to the std logger; for local development and tests.
type ConsoleLogger struct {
	std     *log.Logger
	enabled bool
}

var _ core.Logger = (*ConsoleLogger)(nil)

func NewConsoleLogger(std *log.Logger) *ConsoleLogger {
	return &ConsoleLogger{std: std, enabled: true}
}

func (l *ConsoleLogger) Enable(enabled bool) { l.enabled = enabled }

func (l *ConsoleLogger) print(level, msg string, args []interface{}) {
	if !l.enabled {
		return
	}
	line := level + ": " + msg
	for i := 0; i+1 < len(args); i += 2 {
		line += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	l.std.Println(line)
}

func (l *ConsoleLogger) Debug(msg string, args ...interface{}) { l.print("DEBUG", msg, args) }
func (l *ConsoleLogger) Info(msg string, args ...interface{})  { l.print("INFO", msg, args) }
func (l *ConsoleLogger) Warn(msg string, args ...interface{})  { l.print("WARN", msg, args) }

func (l *ConsoleLogger) Error(msg string, err error, args ...interface{}) {
	l.print("ERROR", fmt.Sprintf("%s: %+v", msg, err), args)
}

func (l *ConsoleLogger) Fatal(msg string, err error, args ...interface{}) {
	l.std.Fatalf("%s: %+v", msg, err)
}
