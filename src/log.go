package segment

// Logger is the minimal leveled-logging seam every core component
// accepts. segment/seglog.Logger implements it by wrapping
// github.com/charmbracelet/log; tests and simple callers can pass nil
// and get silent operation instead of having to construct a null
// object.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Warn(string, ...any)  {}

func logOrDiscard(l Logger) Logger {
	if l == nil {
		return discardLogger{}
	}
	return l
}
