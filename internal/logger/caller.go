package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

var wrapperFile = func() string {
	_, file, _, _ := runtime.Caller(0)
	return strings.TrimSuffix(file, "caller.go") + "logger.go"
}()

// callerHook replaces the caller logrus recorded (always a Logger method)
// with the first frame outside logrus and the Logger wrappers.
type callerHook struct{}

func (callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (callerHook) Fire(e *logrus.Entry) error {
	if f, ok := externalCaller(); ok {
		e.Caller = &f
	}
	return nil
}

func externalCaller() (runtime.Frame, bool) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if f.File != wrapperFile && !strings.HasPrefix(f.Function, "github.com/sirupsen/logrus.") {
			return f, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}
