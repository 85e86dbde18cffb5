// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/pdiddy/dossier/pkg/types"
)

// envKeys are the scalar settings that may also come from DOSSIER_*
// environment variables, e.g. DOSSIER_PIPELINE_PRIMARY_MODEL.
var envKeys = []string{
	"provider.base_url",
	"provider.api_key",
	"provider.timeout",
	"provider.max_retries",
	"provider.user_agent",
	"pipeline.primary_model",
	"pipeline.max_concurrent_phases",
	"pipeline.inter_phase_delay",
	"pipeline.phase_timeout",
	"pipeline.max_attempts",
	"pipeline.temperature",
	"pipeline.max_output_tokens",
	"pipeline.reasoning_effort",
	"scheduling.advanced",
	"scheduling.classic",
	"scheduling.unknown",
	"fallback.candidates",
	"cache.mode",
	"cache.dir",
	"cache.durable_backend",
	"cache.durable_enabled",
	"cache.file_enabled",
	"metrics.db_enabled",
	"metrics.prometheus_addr",
	"log.level",
	"log.format",
}

// loadConfig layers the config file and environment over
// types.DefaultConfig. It does not validate.
func loadConfig(v *viper.Viper) (types.Config, error) {
	v.SetEnvPrefix("DOSSIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only applies to keys viper already knows about.
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return types.Config{}, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	c := types.DefaultConfig()
	if err := v.Unmarshal(&c); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return c, nil
}

// newLogger builds the process logger from the log settings.
func newLogger(lc types.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
