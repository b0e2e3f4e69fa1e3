package core

// Logger receives progress and problems from long-running operations. The
// CLI renders it; tests record it.
type Logger interface {
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Success(msg string)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(string)    {}
func (NopLogger) Warn(string)    {}
func (NopLogger) Error(string)   {}
func (NopLogger) Success(string) {}

func loggerOrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}
