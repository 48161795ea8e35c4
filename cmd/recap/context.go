package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"recap/internal/config"
	"recap/internal/logging"
	"recap/internal/pipeline"
	"recap/internal/transcript"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
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
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// runner builds a pipeline runner after applying per-command overrides.
func (c *commandContext) runner(apply func(*config.Config)) (*pipeline.Runner, *config.Config, error) {
	base, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	cfg := *base
	if apply != nil {
		apply(&cfg)
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, nil, err
	}
	runner, err := pipeline.Build(&cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return runner, &cfg, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// parseOffset accepts plain seconds or an MM:SS / HH:MM:SS timestamp.
func parseOffset(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	if strings.Contains(value, ":") {
		return transcript.ParseTimestamp(value)
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("invalid offset %q: expected seconds or HH:MM:SS", value)
	}
	return seconds, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
