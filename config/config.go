package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	SplitRandom = "random"
	SplitTime   = "time"
)

type Config struct {
	Server   ServerConfig   `envconfig:"SERVER"`
	Paths    PathsConfig    `envconfig:"DATA"`
	Training TrainingConfig `envconfig:"TRAIN"`
	Database DatabaseConfig `envconfig:"DB"`
	Redis    RedisConfig    `envconfig:"REDIS"`
	JWT      JWTConfig      `envconfig:"JWT"`
	CORS     CORSConfig     `envconfig:"CORS"`
}

// ServerConfig configures cmd/api. ModelPoll > 0 rescans the model
// directory on that interval in addition to Redis model events.
// RateLimit is in requests per second for /predict/; 0 disables it.
type ServerConfig struct {
	Port        int           `split_words:"true" default:"8080"`
	MetricsAddr string        `split_words:"true" default:""`
	ModelPoll   time.Duration `split_words:"true" default:"0"`
	RateLimit   float64       `split_words:"true" default:"0"`
	RateBurst   int           `split_words:"true" default:"20"`
}

// PathsConfig locates the input CSVs and the model and report directories.
type PathsConfig struct {
	TrainFile string `split_words:"true" default:"data/train.csv"`
	StoreFile string `split_words:"true" default:"data/store.csv"`
	ModelDir  string `split_words:"true" default:"models"`
	ReportDir string `split_words:"true" default:"reports"`
}

type TrainingConfig struct {
	Target   string  `split_words:"true" default:"Sales"`
	TestSize float64 `split_words:"true" default:"0.2"`
	Seed     int64   `split_words:"true" default:"42"`
	Trees    int     `split_words:"true" default:"100"`
	MaxDepth int     `split_words:"true" default:"0"`
	MinLeaf  int     `split_words:"true" default:"1"`
	Split    string  `split_words:"true" default:"random"`
	Retain   int     `split_words:"true" default:"0"`
}

func (t TrainingConfig) Validate() error {
	if t.TestSize <= 0 || t.TestSize >= 1 {
		return fmt.Errorf("test size must be in (0, 1), got %v", t.TestSize)
	}
	if t.Trees <= 0 {
		return fmt.Errorf("tree count must be positive, got %d", t.Trees)
	}
	if t.MinLeaf <= 0 {
		return fmt.Errorf("min leaf size must be positive, got %d", t.MinLeaf)
	}
	if t.Split != SplitRandom && t.Split != SplitTime {
		return fmt.Errorf("unknown split strategy %q", t.Split)
	}
	if t.Retain < 0 {
		return fmt.Errorf("retain must not be negative, got %d", t.Retain)
	}
	return nil
}

type DatabaseConfig struct {
	Enabled  bool   `split_words:"true" default:"false"`
	Host     string `split_words:"true" default:"localhost"`
	Port     int    `split_words:"true" default:"5432"`
	User     string `split_words:"true" default:"rossmann"`
	Password string `split_words:"true" default:"rossmann_dev_password"`
	Name     string `split_words:"true" default:"rossmann"`
	SSLMode  string `split_words:"true" default:"disable"`
}

// GetDSN returns the key/value form used by the gorm postgres driver.
func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// GetURL returns the URL form used by pgxpool.
func (d DatabaseConfig) GetURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + strconv.Itoa(d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

type RedisConfig struct {
	Enabled  bool          `split_words:"true" default:"false"`
	Host     string        `split_words:"true" default:"localhost"`
	Port     int           `split_words:"true" default:"6379"`
	Password string        `split_words:"true" default:""`
	DB       int           `split_words:"true" default:"0"`
	CacheTTL time.Duration `split_words:"true" default:"10m"`
}

// JWTConfig guards the admin endpoints. An empty AdminPasswordHash disables
// password login; tokens can still be minted offline by the CLI.
type JWTConfig struct {
	Secret            string `split_words:"true" default:"change-me-in-production"`
	ExpiryHours       int    `split_words:"true" default:"24"`
	AdminUser         string `split_words:"true" default:"admin"`
	AdminPasswordHash string `split_words:"true" default:""`
}

type CORSConfig struct {
	AllowedOrigins string `split_words:"true" default:"*"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	if err := cfg.Training.Validate(); err != nil {
		return nil, fmt.Errorf("invalid training config: %w", err)
	}
	return &cfg, nil
}
