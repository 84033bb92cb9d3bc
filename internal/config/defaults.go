package config

const (
	defaultConfigPath        = "~/.config/fifocopy/config.toml"
	defaultProjectConfig     = "fifocopy.toml"
	defaultQueueCapacity     = 10
	defaultMaxLineLength     = 4096
	defaultListenerLock      = true
	defaultFileMode          = "0644"
	defaultRetryInitialDelay = 100
	defaultRetryMaxDelay     = 2000
	defaultSourcePolicy      = "skip"
	defaultExitCommand       = "exit"
	defaultLogLevel          = "info"
	defaultLogFormat         = "console"
)

// Default returns a Config populated with repository defaults. The pipe and
// destination have no default and must be supplied.
func Default() Config {
	return Config{
		Queue: Queue{
			Capacity: defaultQueueCapacity,
		},
		Listener: Listener{
			MaxLineLength: defaultMaxLineLength,
			Lock:          defaultListenerLock,
		},
		Copier: Copier{
			FileMode: defaultFileMode,
		},
		Retry: Retry{
			InitialDelayMS: defaultRetryInitialDelay,
			MaxDelayMS:     defaultRetryMaxDelay,
		},
		Errors: Errors{
			SourcePolicy: defaultSourcePolicy,
		},
		Control: Control{
			ExitCommand: defaultExitCommand,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
