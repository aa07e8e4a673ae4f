package database

import "github.com/koustreak/schemabridge/internal/logger"

// AdapterSettings collects the optional collaborators of an engine adapter.
type AdapterSettings struct {
	Dial Dialer
	Log  *logger.Logger
}

// AdapterOption customises an engine adapter at construction time.
type AdapterOption func(*AdapterSettings)

// WithDialer replaces the engine's real driver. Used by tests.
func WithDialer(d Dialer) AdapterOption {
	return func(s *AdapterSettings) { s.Dial = d }
}

// WithLogger sets the logger probe failures are reported to.
func WithLogger(l *logger.Logger) AdapterOption {
	return func(s *AdapterSettings) { s.Log = l }
}

// ApplyAdapterOptions folds options over an empty AdapterSettings.
func ApplyAdapterOptions(options ...AdapterOption) AdapterSettings {
	var s AdapterSettings
	for _, o := range options {
		o(&s)
	}
	return s
}
