package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"caseflow/internal/client"
	"caseflow/internal/config"
)

type commandContext struct {
	apiFlag    *string
	tokenFlag  *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(apiFlag, tokenFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		tokenFlag:  tokenFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) apiBase() (string, error) {
	if c.apiFlag != nil {
		if value := strings.TrimSpace(*c.apiFlag); value != "" {
			if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
				return value, nil
			}
			return "http://" + value, nil
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return "http://" + cfg.Paths.APIBind, nil
}

func (c *commandContext) token() string {
	if c.tokenFlag != nil {
		if value := strings.TrimSpace(*c.tokenFlag); value != "" {
			return value
		}
	}
	return strings.TrimSpace(os.Getenv("CASEFLOW_TOKEN"))
}

func (c *commandContext) newClient() (*client.Client, error) {
	base, err := c.apiBase()
	if err != nil {
		return nil, fmt.Errorf("resolve daemon address: %w", err)
	}
	return client.New(base, c.token()), nil
}
