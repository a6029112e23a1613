package guest

import "github.com/arclight/dflow"

// Logger forwards level-tagged messages to the host as Log effects. Log
// effects never enter the replay log and always return Unit, so callers
// here don't need the reply.
type Logger struct {
	call Dispatch
}

// NewLogger binds a Logger to the guest's dispatch function.
func NewLogger(call Dispatch) *Logger {
	return &Logger{call: call}
}

func (l *Logger) log(level dflow.LogLevel, msg string) {
	_, _ = l.call(dflow.GuestToHost{
		Kind: dflow.EffectLog,
		Log:  &dflow.LogRequest{Level: level, Message: msg},
	})
}

func (l *Logger) Trace(msg string) { l.log(dflow.LevelTrace, msg) }
func (l *Logger) Debug(msg string) { l.log(dflow.LevelDebug, msg) }
func (l *Logger) Info(msg string)  { l.log(dflow.LevelInfo, msg) }
func (l *Logger) Warn(msg string)  { l.log(dflow.LevelWarn, msg) }
func (l *Logger) Error(msg string) { l.log(dflow.LevelError, msg) }
