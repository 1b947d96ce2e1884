package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"convertbot/internal/config"
)

const defaultEnvFile = ".env"

type globalFlags struct {
	config   string
	envFile  string
	logLevel string
	json     bool
}

type commandContext struct {
	flags *globalFlags

	envOnce sync.Once
	envErr  error

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

// loadEnv reads KEY=value pairs into the process environment. Variables that
// are already set win over the file.
func (c *commandContext) loadEnv() error {
	c.envOnce.Do(func() {
		path := strings.TrimSpace(c.flags.envFile)
		explicit := path != ""
		if !explicit {
			path = defaultEnvFile
		}
		if err := godotenv.Load(path); err != nil {
			if !explicit && errors.Is(err, fs.ErrNotExist) {
				return
			}
			c.envErr = fmt.Errorf("load env file %s: %w", path, err)
		}
	})
	return c.envErr
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) JSONMode() bool {
	return c.flags != nil && c.flags.json
}

func (c *commandContext) resolvedLogLevel(cfg *config.Config) string {
	if level := strings.TrimSpace(c.flags.logLevel); level != "" {
		return level
	}
	if cfg != nil {
		return cfg.Logging.Level
	}
	return "info"
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
