package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config structs

type Config struct {
	IsDebug bool `yaml:"is_debug"`

	DataDir       string `yaml:"data_dir"`
	EncryptionKey string `yaml:"encryption_key"` // empty disables at-rest encryption

	Storage Storage `yaml:"storage"`
	Oracle  Oracle  `yaml:"oracle"`
	Engine  Engine  `yaml:"engine"`

	MySQL MySQL `yaml:"mysql"`
	Redis Redis `yaml:"redis"`
	Etcd  Etcd  `yaml:"etcd"`
	Nats  Nats  `yaml:"nats"`

	Metrics Metrics `yaml:"metrics"`

	Env Env `yaml:"env"`
}

type Storage struct {
	Backend   string `yaml:"backend"` // memory, file, redis, mysql, etcd
	KeyPrefix string `yaml:"key_prefix"`
}

type Oracle struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	CacheTTL  int    `yaml:"cache_ttl"` // seconds, 0 disables
	CacheIn   string `yaml:"cache_in"`  // memory or redis

	Breaker Breaker `yaml:"breaker"`
}

type Breaker struct {
	Enabled             bool   `yaml:"enabled"`
	MaxRequests         uint32 `yaml:"max_requests"`
	ConsecutiveFailures uint32 `yaml:"consecutive_failures"`
	OpenSeconds         int    `yaml:"open_seconds"`
}

type Engine struct {
	Journal bool `yaml:"journal"`
}

type MySQL struct {
	Main MySQLServer `yaml:"main"`
}

type MySQLServer struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Pass         string `yaml:"pass"`
	DB           string `yaml:"db"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type Redis struct {
	Main RedisServer `yaml:"main"`
}

type RedisServer struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
	Pass    string `yaml:"pass"`
	Timeout int    `yaml:"timeout"`
}

type Etcd struct {
	Main EtcdServer `yaml:"main"`
}

type EtcdServer struct {
	Enable bool   `yaml:"enable"`
	Url    string `yaml:"url"`
}

type Nats struct {
	Url     string `yaml:"url"`
	Stream  string `yaml:"stream"`
	Subject string `yaml:"subject"`
}

type Metrics struct {
	Addr string `yaml:"addr"`
}

type Env struct {
	XlogMode  string `yaml:"xlog_mode"`
	XlogColor bool   `yaml:"xlog_color"`
}

// Global variables

const DEVDATA = "/usr/local/peachcash/devdata"

var Shared *Config // single instance of the config

var ErrUnknownBackend = errors.New("unknown storage backend")

var (
	fConfig string // config file path
)

func init() {
	flag.StringVar(&fConfig, "config", "", "specify the config file")
}

// Default returns a config usable without any file: memory storage and the public CoinGecko API
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads and validates the config file at the given path
func Load(configFile string) (c *Config, err error) {
	file, err := os.Open(configFile)
	if err != nil {
		return
	}
	defer file.Close()

	c = &Config{}
	err = yaml.NewDecoder(file).Decode(c)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", configFile, err)
	}

	c.applyDefaults()
	err = c.Validate()
	if err != nil {
		return nil, err
	}
	return
}

// Initialize the Shared config with the given config file path
func Init(configFile string) {
	c, err := Load(configFile)
	if err != nil {
		panic(err)
	}
	Shared = c
}

// Initialize the Shared config with the default config file path
func EasyInit() {
	fpath := fConfig
	if fpath == "" {
		fpath = "config/config.yml"
	}

	// if the config file does not exist, use the default config file path
	if _, err := os.Stat(fpath); os.IsNotExist(err) {
		fpath = DEVDATA + "/config.yml"
		if _, err := os.Stat(fpath); os.IsNotExist(err) {
			printf("no config file found, use defaults")
			Shared = Default()
			return
		}
		printf(fmt.Sprintf("use config: %s (DEVDATA)", fpath))
	} else {
		printf(fmt.Sprintf("use config: %s", fpath))
	}

	// initialize the config
	Init(fpath)
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DEVDATA
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Oracle.BaseURL == "" {
		c.Oracle.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if c.Oracle.TimeoutMs <= 0 {
		c.Oracle.TimeoutMs = 5000
	}
	if c.Oracle.CacheIn == "" {
		c.Oracle.CacheIn = "memory"
	}
	if c.Oracle.Breaker.ConsecutiveFailures == 0 {
		c.Oracle.Breaker.ConsecutiveFailures = 5
	}
	if c.Oracle.Breaker.OpenSeconds <= 0 {
		c.Oracle.Breaker.OpenSeconds = 30
	}
	if c.Nats.Stream == "" {
		c.Nats.Stream = "PEACH"
	}
	if c.Nats.Subject == "" {
		c.Nats.Subject = "PEACH.exchange"
	}
}

// Validate checks the values that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "file", "redis", "mysql", "etcd":
	default:
		return fmt.Errorf("%w: %s", ErrUnknownBackend, c.Storage.Backend)
	}
	switch c.Oracle.CacheIn {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown oracle cache: %s", c.Oracle.CacheIn)
	}
	return nil
}

// OracleTimeout returns the bounded wait for a single rate lookup
func (c *Config) OracleTimeout() time.Duration {
	return time.Duration(c.Oracle.TimeoutMs) * time.Millisecond
}

// Print the given string to the standard output
func printf(s string) {
	fmt.Printf("%s %s\n", time.Now().Format("2006/01/02 15:04:05"), s)
}
