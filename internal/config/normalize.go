package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeUpload(); err != nil {
		return err
	}
	c.normalizeConnectivity()
	c.normalizeInbox()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.InboxDir) == "" {
		c.Paths.InboxDir = defaultInboxDir
	}
	if c.Paths.InboxDir, err = expandPath(c.Paths.InboxDir); err != nil {
		return fmt.Errorf("paths.inbox_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeUpload() error {
	c.Upload.EndpointURL = strings.TrimSpace(c.Upload.EndpointURL)
	if c.Upload.EndpointURL == "" {
		c.Upload.EndpointURL = defaultEndpointURL
	}
	if c.Upload.CandidateName == "" {
		if value, ok := os.LookupEnv("SNAPSYNC_CANDIDATE"); ok {
			c.Upload.CandidateName = value
		}
	}
	c.Upload.CandidateName = strings.TrimSpace(c.Upload.CandidateName)
	if c.Upload.MaxRetries < 0 {
		c.Upload.MaxRetries = defaultMaxRetries
	}
	if c.Upload.RetryDelaySeconds <= 0 {
		c.Upload.RetryDelaySeconds = defaultRetryDelay
	}
	if c.Upload.RequestTimeout <= 0 {
		c.Upload.RequestTimeout = defaultUploadTimeout
	}
	return nil
}

func (c *Config) normalizeConnectivity() {
	c.Connectivity.ProbeAddress = strings.TrimSpace(c.Connectivity.ProbeAddress)
	if c.Connectivity.ProbeAddress == "" {
		// Probe the upload endpoint itself so reachability reflects the one
		// host that matters for draining.
		if u, err := url.Parse(c.Upload.EndpointURL); err == nil && u.Host != "" {
			host := u.Host
			if u.Port() == "" {
				port := "443"
				if u.Scheme == "http" {
					port = "80"
				}
				host = u.Hostname() + ":" + port
			}
			c.Connectivity.ProbeAddress = host
		}
	}
	if c.Connectivity.ProbeInterval <= 0 {
		c.Connectivity.ProbeInterval = defaultProbeInterval
	}
	if c.Connectivity.ProbeTimeout <= 0 {
		c.Connectivity.ProbeTimeout = defaultProbeTimeout
	}
}

func (c *Config) normalizeInbox() {
	if c.Inbox.SettleSeconds < 0 {
		c.Inbox.SettleSeconds = defaultInboxSettle
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
