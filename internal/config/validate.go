package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateConnectivity(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateUpload() error {
	u, err := url.Parse(c.Upload.EndpointURL)
	if err != nil {
		return fmt.Errorf("upload.endpoint_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upload.endpoint_url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("upload.endpoint_url must include a host")
	}
	if c.Upload.CandidateName == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/snapsync/config.toml"
		}
		return fmt.Errorf("upload.candidate_name is required. Set SNAPSYNC_CANDIDATE env var or edit %s (create with 'snapsync config init')", defaultPath)
	}
	if c.Upload.MaxRetries > 100 {
		return errors.New("upload.max_retries must be at most 100")
	}
	return nil
}

func (c *Config) validateConnectivity() error {
	if c.Connectivity.ProbeAddress == "" {
		return errors.New("connectivity.probe_address could not be derived; set it explicitly")
	}
	if c.Connectivity.ProbeTimeout > c.Connectivity.ProbeInterval {
		return errors.New("connectivity.probe_timeout must not exceed connectivity.probe_interval")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
