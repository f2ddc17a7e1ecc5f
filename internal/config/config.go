package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type DBConfig struct {
	Connection  string `yaml:"connection"`
	Database    string `yaml:"database"`
	Collections struct {
		Dataset string `yaml:"dataset"`
		Tasks   string `yaml:"tasks"`
	} `yaml:"collections"`
}

type APIConfig struct {
	// Endpoint may contain a {lang} placeholder.
	Endpoint          string `yaml:"endpoint"`
	PageViewsEndpoint string `yaml:"pageviews_endpoint"`
	UserAgent         string `yaml:"user_agent"`
	TimeoutSec        int    `yaml:"timeout_sec"`
	DefaultLanguage   string `yaml:"default_language"`
}

type WorkerConfig struct {
	Concurrency    int    `yaml:"concurrency"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
	Name           string `yaml:"name"`
}

type PrefetchConfig struct {
	Workers       int    `yaml:"workers"`
	DelayMS       int    `yaml:"delay_ms"`
	OutputDir     string `yaml:"output_dir"`
	RespectRobots bool   `yaml:"respect_robots"`
}

type ExportConfig struct {
	TempDir    string `yaml:"temp_dir"`
	ArchiveDir string `yaml:"archive_dir"`
	Limit      int    `yaml:"limit"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	DB       DBConfig       `yaml:"db"`
	API      APIConfig      `yaml:"api"`
	Worker   WorkerConfig   `yaml:"worker"`
	Prefetch PrefetchConfig `yaml:"prefetch"`
	Export   ExportConfig   `yaml:"export"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Log      LogConfig      `yaml:"log"`
}

func Default() *Config {
	cfg := &Config{
		DB: DBConfig{
			Connection: "mongodb://localhost:27017",
			Database:   "wekeypedia",
		},
		API: APIConfig{
			Endpoint:          "https://{lang}.wikipedia.org/w/api.php",
			PageViewsEndpoint: "http://stats.grok.se/json",
			UserAgent:         "wiki_harvester/1.0",
			TimeoutSec:        30,
			DefaultLanguage:   "en",
		},
		Worker: WorkerConfig{
			Concurrency:    4,
			PollIntervalMS: 500,
		},
		Prefetch: PrefetchConfig{
			Workers:   8,
			OutputDir: "data",
		},
		Export: ExportConfig{
			TempDir:    os.TempDir(),
			ArchiveDir: "archive",
			Limit:      100,
		},
		Metrics: MetricsConfig{
			Listen: ":9102",
		},
		Tracing: TracingConfig{
			ServiceName: "wiki_harvester",
			SampleRate:  1.0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
	cfg.DB.Collections.Dataset = "dataset"
	cfg.DB.Collections.Tasks = "tasks"
	return cfg
}

// LoadConfig reads a YAML file over the defaults. An empty path yields
// the defaults. Environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	host := os.Getenv("MONGODB_HOST")
	if host == "" {
		return
	}
	port := os.Getenv("MONGODB_PORT")
	if port == "" {
		port = "27017"
	}
	c.DB.Connection = fmt.Sprintf("mongodb://%s:%s", host, port)
}

func (c *Config) Validate() error {
	var errs []error
	if c.DB.Database == "" {
		errs = append(errs, errors.New("db.database is required"))
	}
	if c.DB.Collections.Dataset == "" || c.DB.Collections.Tasks == "" {
		errs = append(errs, errors.New("db.collections.dataset and db.collections.tasks are required"))
	}
	if c.API.Endpoint == "" {
		errs = append(errs, errors.New("api.endpoint is required"))
	}
	if c.Worker.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("worker.concurrency must be positive, got %d", c.Worker.Concurrency))
	}
	if c.Prefetch.Workers < 1 {
		errs = append(errs, fmt.Errorf("prefetch.workers must be positive, got %d", c.Prefetch.Workers))
	}
	return errors.Join(errs...)
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Worker.PollIntervalMS) * time.Millisecond
}
