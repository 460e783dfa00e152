// Package config loads engine configuration from a CUE or YAML file,
// validating it against an embedded CUE schema before it ever reaches
// the engine.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Config holds the tunables the engine needs at startup. Every field
// except database_path has a schema default; a config file must set
// database_path and only needs to override the rest where it cares.
type Config struct {
	DatabasePath     string        `json:"database_path" yaml:"database_path"`
	RecoverOnStartup bool          `json:"recover_on_startup" yaml:"recover_on_startup"`
	MaxStepDelay     time.Duration `json:"-" yaml:"-"`
	LogLevel         string        `json:"log_level" yaml:"log_level"`
}

type rawConfig struct {
	DatabasePath     string `json:"database_path" yaml:"database_path"`
	RecoverOnStartup bool   `json:"recover_on_startup" yaml:"recover_on_startup"`
	MaxStepDelayMS   int64  `json:"max_step_delay_ms" yaml:"max_step_delay_ms"`
	LogLevel         string `json:"log_level" yaml:"log_level"`
}

// Default returns the in-process defaults used when no config file is
// given: a local SQLite file in the working directory, recovery on
// startup enabled, a generous but bounded max step delay, info logging.
func Default() Config {
	return Config{
		DatabasePath:     "ambit.db",
		RecoverOnStartup: true,
		MaxStepDelay:     24 * time.Hour,
		LogLevel:         "info",
	}
}

// Load reads and validates a config file, returning the merged result.
// The format is sniffed from the file extension: ".yaml"/".yml" parses
// as YAML, anything else (including ".cue") loads as CUE. Either way the
// parsed value is unified against the embedded schema before being
// decoded, so a missing required field or an out-of-range value is
// rejected here rather than surfacing later as a confusing engine error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource)
	if schema.Err() != nil {
		return Config{}, fmt.Errorf("config: compile embedded schema: %w", schema.Err())
	}

	var value cue.Value
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		value, err = decodeYAML(ctx, data)
	default:
		value, err = decodeCUE(ctx, path, data)
	}
	if err != nil {
		return Config{}, err
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}

	var raw rawConfig
	if err := unified.Decode(&raw); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}

	return Config{
		DatabasePath:     raw.DatabasePath,
		RecoverOnStartup: raw.RecoverOnStartup,
		MaxStepDelay:     time.Duration(raw.MaxStepDelayMS) * time.Millisecond,
		LogLevel:         raw.LogLevel,
	}, nil
}

func decodeYAML(ctx *cue.Context, data []byte) (cue.Value, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cue.Value{}, fmt.Errorf("config: parse yaml: %w", err)
	}
	value := ctx.Encode(raw)
	if value.Err() != nil {
		return cue.Value{}, fmt.Errorf("config: encode yaml as CUE: %w", value.Err())
	}
	return value, nil
}

func decodeCUE(ctx *cue.Context, path string, data []byte) (cue.Value, error) {
	value := ctx.CompileBytes(data, cue.Filename(path))
	if value.Err() != nil {
		return cue.Value{}, fmt.Errorf("config: compile %s: %w", path, value.Err())
	}
	return value, nil
}
