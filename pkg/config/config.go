// Package config holds the pipeline configuration and the AWS credentials
// file loader.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v3"

	"github.com/wdm0006/songlake/pkg/io/parquetio"
)

// ErrConfig marks an unreadable, malformed or invalid configuration.
var ErrConfig = errors.New("invalid configuration")

type Config struct {
	Input   InputConfig   `toml:"input" yaml:"input"`
	Output  OutputConfig  `toml:"output" yaml:"output"`
	AWS     AWSConfig     `toml:"aws" yaml:"aws"`
	Runtime RuntimeConfig `toml:"runtime" yaml:"runtime"`
	Log     LogConfig     `toml:"log" yaml:"log"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics"`
}

type InputConfig struct {
	Base     string `toml:"base" yaml:"base"`
	SongGlob string `toml:"song_glob" yaml:"song_glob"`
	LogGlob  string `toml:"log_glob" yaml:"log_glob"`
	// SongplaysSongGlob selects the song catalog joined against the logs.
	// Empty means SongGlob, and the already loaded catalog is reused.
	SongplaysSongGlob string `toml:"songplays_song_glob" yaml:"songplays_song_glob"`
}

type OutputConfig struct {
	Base        string `toml:"base" yaml:"base"`
	Compression string `toml:"compression" yaml:"compression"`
}

type AWSConfig struct {
	Region          string `toml:"region" yaml:"region"`
	Endpoint        string `toml:"endpoint" yaml:"endpoint"`
	ForcePathStyle  bool   `toml:"force_path_style" yaml:"force_path_style"`
	CredentialsFile string `toml:"credentials_file" yaml:"credentials_file"`
}

type RuntimeConfig struct {
	Workers int    `toml:"workers" yaml:"workers"`
	TempDir string `toml:"temp_dir" yaml:"temp_dir"`
}

type LogConfig struct {
	Level     string `toml:"level" yaml:"level"`
	Format    string `toml:"format" yaml:"format"`
	Output    string `toml:"output" yaml:"output"`
	FilePath  string `toml:"file_path" yaml:"file_path"`
	AddSource bool   `toml:"add_source" yaml:"add_source"`
}

type MetricsConfig struct {
	Backend        string   `toml:"backend" yaml:"backend"`
	Job            string   `toml:"job" yaml:"job"`
	PushgatewayURL string   `toml:"pushgateway_url" yaml:"pushgateway_url"`
	DatadogAddr    string   `toml:"datadog_addr" yaml:"datadog_addr"`
	Namespace      string   `toml:"namespace" yaml:"namespace"`
	Tags           []string `toml:"tags" yaml:"tags"`
}

// Default reproduces the stock run: read the public song and log datasets,
// write to the spark-output bucket.
func Default() Config {
	return Config{
		Input: InputConfig{
			Base:     "s3a://udacity-dend/",
			SongGlob: "song_data/*/*/*/*.json",
			LogGlob:  "log_data/*/*/*.json",
		},
		Output: OutputConfig{
			Base:        "s3a://spark-output",
			Compression: "snappy",
		},
		AWS: AWSConfig{
			Region:          "us-west-2",
			CredentialsFile: "dl.cfg",
		},
		Runtime: RuntimeConfig{Workers: runtime.NumCPU()},
		Log:     LogConfig{Level: "info", Format: "text", Output: "stderr"},
		Metrics: MetricsConfig{Backend: "none", Job: "songlake"},
	}
}

// Load reads path over Default. The format follows the extension: .toml,
// .yaml or .yml. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err = dec.Decode(&cfg); errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		return cfg, fmt.Errorf("%w: %s: unsupported config extension", ErrConfig, path)
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
	}
	return cfg, cfg.Validate()
}

// SongplaysSongGlob returns the glob of the catalog joined into songplays.
func (c Config) SongplaysSongGlob() string {
	if c.Input.SongplaysSongGlob == "" {
		return c.Input.SongGlob
	}
	return c.Input.SongplaysSongGlob
}

func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}
	check(strings.TrimSpace(c.Input.Base) != "", "input.base is empty")
	check(strings.TrimSpace(c.Output.Base) != "", "output.base is empty")
	check(c.Input.SongGlob != "", "input.song_glob is empty")
	check(c.Input.LogGlob != "", "input.log_glob is empty")
	check(parquetio.ValidCompression(c.Output.Compression), "output.compression: unknown codec "+c.Output.Compression)
	check(c.Runtime.Workers >= 0, "runtime.workers is negative")
	check(oneOf(c.Log.Level, "", "debug", "info", "warn", "warning", "error"), "log.level: unknown level "+c.Log.Level)
	check(oneOf(c.Log.Format, "", "text", "json"), "log.format: must be text or json")
	check(oneOf(c.Log.Output, "", "stdout", "stderr", "file"), "log.output: must be stdout, stderr or file")
	check(c.Log.Output != "file" || c.Log.FilePath != "", "log.file_path is required when log.output is file")
	switch c.Metrics.Backend {
	case "", "none":
	case "prometheus":
		check(c.Metrics.PushgatewayURL != "", "metrics.pushgateway_url is required for the prometheus backend")
	case "datadog":
		check(c.Metrics.DatadogAddr != "", "metrics.datadog_addr is required for the datadog backend")
	default:
		problems = append(problems, "metrics.backend: unknown backend "+c.Metrics.Backend)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfig, strings.Join(problems, "; "))
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
