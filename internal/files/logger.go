package files

// Logger is the slice of *slog.Logger the node services use, one line per
// mutation. Args are slog key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger drops every record. testutil.Env wires it into the services it
// builds; the CLI passes its slog logger instead.
type NopLogger struct{}

func NewNopLogger() NopLogger { return NopLogger{} }

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

var _ Logger = NopLogger{}
