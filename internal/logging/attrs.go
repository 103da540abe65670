package logging

import "log/slog"

// Error returns a standard error attribute, tolerating nil.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(FieldError, err.Error())
}

// Component tags a logger with its subsystem name.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	return logger.With(slog.String(FieldComponent, name))
}
