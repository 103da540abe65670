package config

const (
	defaultDataDir              = "~/.local/share/caseflow/data"
	defaultLogDir               = "~/.local/share/caseflow/logs"
	defaultAPIBind              = "127.0.0.1:7519"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultSessionTTLSeconds    = 6 * 60 * 60
	defaultSweepIntervalSeconds = 5 * 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Auth: Auth{
			Tokens: map[string]string{},
		},
		Queue: Queue{
			SessionTTLSeconds:    defaultSessionTTLSeconds,
			SweepIntervalSeconds: defaultSweepIntervalSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
