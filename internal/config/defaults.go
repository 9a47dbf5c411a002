package config

const (
	defaultDataDir       = "~/.local/share/snapsync"
	defaultInboxDir      = "~/.local/share/snapsync/inbox"
	defaultLogDir        = "~/.local/share/snapsync/logs"
	defaultAPIBind       = "127.0.0.1:7519"
	defaultEndpointURL   = "https://prioritysoftfile-upload-testap-production.up.railway.app/upload"
	defaultMaxRetries    = 5
	defaultRetryDelay    = 5
	defaultUploadTimeout = 60
	defaultProbeInterval = 10
	defaultProbeTimeout  = 5
	defaultInboxSettle   = 2
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			InboxDir: defaultInboxDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Upload: Upload{
			EndpointURL:       defaultEndpointURL,
			MaxRetries:        defaultMaxRetries,
			RetryDelaySeconds: defaultRetryDelay,
			RequestTimeout:    defaultUploadTimeout,
		},
		Connectivity: Connectivity{
			ProbeInterval: defaultProbeInterval,
			ProbeTimeout:  defaultProbeTimeout,
		},
		Inbox: Inbox{
			Enabled:       true,
			SettleSeconds: defaultInboxSettle,
			RemoveSource:  true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
