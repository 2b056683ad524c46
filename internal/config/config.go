// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Extract ExtractConfig `mapstructure:"extract"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// APIKey guards the /v1 routes when set.
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// IngestConfig governs what one run crawls and when runs happen.
type IngestConfig struct {
	InputPath         string        `mapstructure:"input_path"`
	BaseDir           string        `mapstructure:"base_dir"`
	MaxPagesPerDomain int           `mapstructure:"max_pages_per_domain"`
	ShouldRecurse     bool          `mapstructure:"should_recurse"`
	DownloadPDF       bool          `mapstructure:"download_pdf"`
	MaxParallelism    int           `mapstructure:"max_parallelism"`
	QueueDepth        int           `mapstructure:"queue_depth"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
	CrawlAttempts     int           `mapstructure:"crawl_attempts"`
	RunHour           int           `mapstructure:"run_hour"`
	Timezone          string        `mapstructure:"timezone"`
	CheckInterval     time.Duration `mapstructure:"check_interval"`
}

// CrawlerConfig configures the crawl engine.
type CrawlerConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	RespectRobots  bool          `mapstructure:"respect_robots"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodySize    int           `mapstructure:"max_body_size"`
	DomainRPS      float64       `mapstructure:"domain_rps"`
	DomainBurst    int           `mapstructure:"domain_burst"`
	BlockedDomains []string      `mapstructure:"blocked_domains"`
	RefusalLimit   int           `mapstructure:"refusal_limit"`
}

// ExtractConfig configures PDF text extraction and the OCR fallback.
type ExtractConfig struct {
	MinPDFTextLength int    `mapstructure:"min_pdf_text_length"`
	OCREnabled       bool   `mapstructure:"ocr_enabled"`
	OCRDPI           int    `mapstructure:"ocr_dpi"`
	OCRLanguage      string `mapstructure:"ocr_language"`
	PdftoppmPath     string `mapstructure:"pdftoppm_path"`
	TesseractPath    string `mapstructure:"tesseract_path"`
}

// StorageConfig selects which object stores are available and where local
// staging happens.
type StorageConfig struct {
	TempDir        string        `mapstructure:"temp_dir"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	GCSEnabled     bool          `mapstructure:"gcs_enabled"`
	S3Enabled      bool          `mapstructure:"s3_enabled"`
	S3Region       string        `mapstructure:"s3_region"`
	S3Endpoint     string        `mapstructure:"s3_endpoint"`
	S3UsePathStyle bool          `mapstructure:"s3_use_path_style"`
}

// DBConfig controls access to Postgres. An empty DSN disables persistence.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	DocumentsTable  string        `mapstructure:"documents_table"`
	RunsTable       string        `mapstructure:"runs_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds notification settings. An empty project ID keeps
// notifications in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
	RunTopic  string `mapstructure:"run_topic"`
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Load builds a Config from disk/environment. Environment variables use the
// INGEST_ prefix with "." replaced by "_", e.g. INGEST_INGEST_BASE_DIR.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("ingest.input_path", "")
	v.SetDefault("ingest.base_dir", "")
	v.SetDefault("ingest.max_pages_per_domain", 1000)
	v.SetDefault("ingest.should_recurse", true)
	v.SetDefault("ingest.download_pdf", true)
	v.SetDefault("ingest.max_parallelism", 4)
	v.SetDefault("ingest.queue_depth", 64)
	v.SetDefault("ingest.job_timeout", 30*time.Minute)
	v.SetDefault("ingest.crawl_attempts", 2)
	v.SetDefault("ingest.run_hour", 1)
	v.SetDefault("ingest.timezone", "Local")
	v.SetDefault("ingest.check_interval", time.Hour)
	v.SetDefault("crawler.user_agent", "legal-ingest-bot/0.1")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.request_timeout", 15*time.Second)
	v.SetDefault("crawler.max_body_size", 64<<20)
	v.SetDefault("crawler.domain_rps", 1.0)
	v.SetDefault("crawler.domain_burst", 1)
	v.SetDefault("crawler.blocked_domains", []string{})
	v.SetDefault("crawler.refusal_limit", 3)
	v.SetDefault("extract.min_pdf_text_length", 1)
	v.SetDefault("extract.ocr_enabled", true)
	v.SetDefault("extract.ocr_dpi", 500)
	v.SetDefault("extract.ocr_language", "eng")
	v.SetDefault("extract.pdftoppm_path", "pdftoppm")
	v.SetDefault("extract.tesseract_path", "tesseract")
	v.SetDefault("storage.temp_dir", "")
	v.SetDefault("storage.http_timeout", 30*time.Second)
	v.SetDefault("storage.gcs_enabled", false)
	v.SetDefault("storage.s3_enabled", true)
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_endpoint", "")
	v.SetDefault("storage.s3_use_path_style", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.documents_table", "documents")
	v.SetDefault("db.runs_table", "crawl_runs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "site-catalogued")
	v.SetDefault("pubsub.run_topic", "run-completed")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if strings.TrimSpace(c.Ingest.BaseDir) == "" {
		return fmt.Errorf("ingest.base_dir is required")
	}
	if c.Ingest.MaxPagesPerDomain <= 0 {
		return fmt.Errorf("ingest.max_pages_per_domain must be > 0")
	}
	if c.Ingest.MaxParallelism <= 0 {
		return fmt.Errorf("ingest.max_parallelism must be > 0")
	}
	if c.Ingest.QueueDepth <= 0 {
		return fmt.Errorf("ingest.queue_depth must be > 0")
	}
	if c.Ingest.JobTimeout <= 0 {
		return fmt.Errorf("ingest.job_timeout must be > 0")
	}
	if c.Ingest.CrawlAttempts <= 0 {
		return fmt.Errorf("ingest.crawl_attempts must be > 0")
	}
	if c.Ingest.RunHour < 0 || c.Ingest.RunHour > 23 {
		return fmt.Errorf("ingest.run_hour must be between 0 and 23")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Ingest.CheckInterval <= 0 {
		return fmt.Errorf("ingest.check_interval must be > 0")
	}
	if c.Crawler.RequestTimeout <= 0 {
		return fmt.Errorf("crawler.request_timeout must be > 0")
	}
	if c.Crawler.DomainRPS <= 0 || c.Crawler.DomainBurst <= 0 {
		return fmt.Errorf("crawler.domain_rps and crawler.domain_burst must be > 0")
	}
	if c.Extract.OCREnabled && c.Extract.OCRDPI <= 0 {
		return fmt.Errorf("extract.ocr_dpi must be > 0 when ocr is enabled")
	}
	if c.Storage.HTTPTimeout <= 0 {
		return fmt.Errorf("storage.http_timeout must be > 0")
	}
	if c.DB.DSN != "" {
		for key, name := range map[string]string{
			"db.documents_table": c.DB.DocumentsTable,
			"db.runs_table":      c.DB.RunsTable,
		} {
			if !tableNamePattern.MatchString(name) {
				return fmt.Errorf("%s %q is not a valid table name", key, name)
			}
		}
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	return nil
}

// Location resolves ingest.timezone. Empty and "Local" mean the host zone.
func (c Config) Location() (*time.Location, error) {
	switch c.Ingest.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Ingest.Timezone)
	if err != nil {
		return nil, fmt.Errorf("ingest.timezone: %w", err)
	}
	return loc, nil
}
