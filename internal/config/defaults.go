package config

const (
	defaultDataDir = "~/.local/share/triage"
	defaultLogDir  = "~/.local/share/triage/logs"
	defaultAPIBind = "127.0.0.1:7841"

	defaultLLMBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	defaultChatModel         = "gemini-2.0-flash"
	defaultPredictModel      = "gemini-2.0-flash"
	defaultLLMTimeoutSeconds = 60

	defaultRetryMaxAttempts       = 3
	defaultRetryInitialDelayMS    = 1000
	defaultRetryBackoffMultiplier = 2.0
	defaultRetryMaxDelayMS        = 10000

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			ChatModel:      defaultChatModel,
			PredictModel:   defaultPredictModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Retry: Retry{
			MaxAttempts:       defaultRetryMaxAttempts,
			InitialDelayMS:    defaultRetryInitialDelayMS,
			BackoffMultiplier: defaultRetryBackoffMultiplier,
			MaxDelayMS:        defaultRetryMaxDelayMS,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
