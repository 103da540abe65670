package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAuth()
	c.normalizeQueue()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeAuth() {
	if c.Auth.Tokens == nil {
		c.Auth.Tokens = map[string]string{}
		return
	}
	normalized := make(map[string]string, len(c.Auth.Tokens))
	for token, userID := range c.Auth.Tokens {
		token = strings.TrimSpace(token)
		userID = strings.TrimSpace(userID)
		if token == "" || userID == "" {
			continue
		}
		normalized[token] = userID
	}
	c.Auth.Tokens = normalized
}

func (c *Config) normalizeQueue() {
	if c.Queue.SessionTTLSeconds <= 0 {
		c.Queue.SessionTTLSeconds = defaultSessionTTLSeconds
	}
	if c.Queue.SweepIntervalSeconds <= 0 {
		c.Queue.SweepIntervalSeconds = defaultSweepIntervalSeconds
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
