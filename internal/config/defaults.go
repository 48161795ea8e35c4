package config

const (
	defaultOutputDir               = "~/recap"
	defaultLogDir                  = "~/.local/share/recap/logs"
	defaultStateDir                = "~/.local/share/recap/state"
	defaultChunkSeconds            = 2400.0
	defaultDarkLuminanceThreshold  = 10.0
	defaultDarkSampleFraction      = 1.0
	defaultAudioExtension          = "m4a"
	defaultBackend                 = BackendGemini
	defaultWorkers                 = 4
	defaultMaxAttempts             = 3
	defaultRetryBaseSeconds        = 2
	defaultRetryMaxSeconds         = 30
	defaultRequestTimeoutSeconds   = 600
	defaultAuditRequestsPerMinute  = 5
	defaultAuditWorkers            = 2
	defaultAuditMaxRetranscribe    = 3
	defaultAuditRetranscribeLevel  = "HIGH"
	defaultGeminiBaseURL           = "https://generativelanguage.googleapis.com"
	defaultGeminiModel             = "gemini-2.0-flash"
	defaultGeminiTimeoutSeconds    = 600
	defaultOpenAIModel             = "whisper-1"
	defaultWhisperXVADMethod       = "silero"
	defaultServerURL               = "http://localhost:5000/transcribe"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultMetricsTextfileFilename = "recap.prom"
	defaultNtfyTimeoutSeconds      = 10
)

// Transcription backend identifiers.
const (
	BackendGemini   = "gemini"
	BackendOpenAI   = "openai"
	BackendWhisperX = "whisperx"
	BackendServer   = "server"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir(),
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			StateDir:  defaultStateDir,
		},
		Media: Media{
			ChunkSeconds:           defaultChunkSeconds,
			DarkDetection:          true,
			DarkLuminanceThreshold: defaultDarkLuminanceThreshold,
			DarkSampleFraction:     defaultDarkSampleFraction,
			AudioExtension:         defaultAudioExtension,
		},
		Transcription: Transcription{
			Backend:               defaultBackend,
			Parallel:              true,
			Workers:               defaultWorkers,
			MaxAttempts:           defaultMaxAttempts,
			RetryBaseSeconds:      defaultRetryBaseSeconds,
			RetryMaxSeconds:       defaultRetryMaxSeconds,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
		},
		Audit: Audit{
			Enabled:              true,
			RequestsPerMinute:    defaultAuditRequestsPerMinute,
			Workers:              defaultAuditWorkers,
			MaxRetranscribe:      defaultAuditMaxRetranscribe,
			RetranscribeSeverity: defaultAuditRetranscribeLevel,
		},
		Gemini: Gemini{
			BaseURL:        defaultGeminiBaseURL,
			Model:          defaultGeminiModel,
			TimeoutSeconds: defaultGeminiTimeoutSeconds,
		},
		OpenAI: OpenAI{
			Model: defaultOpenAIModel,
		},
		WhisperX: WhisperX{
			VADMethod: defaultWhisperXVADMethod,
		},
		Server: Server{
			URL: defaultServerURL,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
		},
	}
}
