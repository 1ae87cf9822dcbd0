package logsvc

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/user"
)

const serverRoot = "github.com/trezcool/companion"

// RollbarLogger prints every entry on a std logger and reports it to Rollbar when enabled.
// Each logger owns its Rollbar client; the acting profile travels with the item, never on the client.
type RollbarLogger struct {
	std    *log.Logger
	client *rollbar.Client
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	client := rollbar.NewAsync(conf.RollbarToken, conf.Env, conf.Build, conf.Server.Host, serverRoot)
	client.SetStackTracer(errors.StackTracer)
	client.SetEnabled(conf.RollbarToken != "")
	return &RollbarLogger{std: std, client: client}
}

// Enable turns remote reporting on or off. The std logger always prints.
func (l *RollbarLogger) Enable(enabled bool) {
	l.client.SetEnabled(enabled)
}

// entry is a log call sorted into what a Rollbar item carries.
type entry struct {
	level  string
	msg    string
	err    error // first error argument
	extras map[string]interface{}
	person *rollbar.Person
}

// newEntry accepts errors, maps of extra data and a user.Profile in any order.
// Further errors and other values land in the extras.
func newEntry(level, msg string, args []interface{}) entry {
	e := entry{level: level, msg: msg}
	for i, arg := range args {
		switch v := arg.(type) {
		case nil:
		case error:
			if e.err == nil {
				e.err = v
			} else {
				e.extra(fmt.Sprintf("error_%d", i), v.Error())
			}
		case map[string]interface{}:
			for k, val := range v {
				e.extra(k, val)
			}
		case user.Profile:
			if e.person == nil && v.ID != "" {
				e.person = &rollbar.Person{Id: v.ID, Username: v.Name, Email: v.Email}
			}
		default:
			e.extra(fmt.Sprintf("arg_%d", i), v)
		}
	}
	return e
}

func (e *entry) extra(key string, val interface{}) {
	if e.extras == nil {
		e.extras = make(map[string]interface{})
	}
	e.extras[key] = val
}

// String renders e on one line: LEVEL msg: err key=val ... [user id].
func (e entry) String() string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(e.level))
	b.WriteByte(' ')
	b.WriteString(e.msg)
	if e.err != nil {
		b.WriteString(": ")
		b.WriteString(e.err.Error())
	}
	keys := make([]string, 0, len(e.extras))
	for k := range e.extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.extras[k])
	}
	if e.person != nil {
		fmt.Fprintf(&b, " [user %s]", e.person.Id)
	}
	return b.String()
}

func (l *RollbarLogger) report(e entry) {
	ctx := context.Background()
	if e.person != nil {
		ctx = rollbar.NewPersonContext(ctx, e.person)
	}
	if e.err == nil {
		l.client.MessageWithExtrasAndContext(ctx, e.level, e.msg, e.extras)
		return
	}
	extras := map[string]interface{}{"message": e.msg}
	for k, v := range e.extras {
		extras[k] = v
	}
	l.client.ErrorWithExtrasAndContext(ctx, e.level, e.err, extras)
}

func (l *RollbarLogger) log(level, msg string, args []interface{}) entry {
	e := newEntry(level, msg, args)
	l.report(e)
	return e
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	l.std.Println(l.log(rollbar.DEBUG, msg, args))
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	l.std.Println(l.log(rollbar.INFO, msg, args))
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	l.std.Println(l.log(rollbar.WARN, msg, args))
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	l.std.Println(l.log(rollbar.ERR, msg, args))
}

// Fatal flushes the queued reports before exiting.
func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	e := l.log(rollbar.CRIT, msg, args)
	_ = l.client.Close()
	l.std.Fatalln(e)
}
