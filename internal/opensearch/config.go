package opensearch

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "/opensearch.yaml"
	defaultEnvFile    = ".env"
)

type Config struct {
	Server struct {
		Listen       string `yaml:"listen"`
		Port         int    `yaml:"port"`
		RedirectURL  string `yaml:"redirect_url"`
		StaticPrefix string `yaml:"static_prefix"`
	} `yaml:"server"`

	Backend BackendConfig `yaml:"backend"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

type BackendConfig struct {
	SearchPost         string `yaml:"search_post"`
	SearchCount        string `yaml:"search_count"`
	Board              string `yaml:"board"`
	Magnet             string `yaml:"magnet"`
	Token              string `yaml:"token"`
	Timeout            string `yaml:"timeout"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`

	// compiled
	timeoutDur time.Duration
}

type CacheConfig struct {
	Backend   string `yaml:"backend"`
	KeyPrefix string `yaml:"key_prefix"`
	LabelTTL  string `yaml:"label_ttl"`
	ItemTTL   string `yaml:"item_ttl"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	LevelDB struct {
		Path       string `yaml:"path"`
		SweepEvery string `yaml:"sweep_every"`
	} `yaml:"leveldb"`

	Memory struct {
		Max        string `yaml:"max"`
		SweepEvery string `yaml:"sweep_every"`
	} `yaml:"memory"`

	// compiled
	labelTTLDur    time.Duration
	itemTTLDur     time.Duration
	levelSweepDur  time.Duration
	memorySweepDur time.Duration
	memoryMaxBytes int64
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	LogStatsEvery string `yaml:"log_stats_every"`

	// compiled
	logStatsEveryDur time.Duration
}

const (
	cacheRedis   = "redis"
	cacheLevelDB = "leveldb"
	cacheMemory  = "memory"
)

// LoadConfig reads the YAML file at path, overlays .env and the process
// environment, then fills defaults and validates. A missing file is not an
// error: everything can come from the environment.
func LoadConfig(path string) (Config, error) {
	return loadConfig(path, defaultEnvFile)
}

func loadConfig(path, envFile string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, err
	default:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, envFile); err != nil {
		return Config{}, err
	}
	if err := cfg.compile(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKeys are the flat variable names the service has always been configured
// with. Each is looked up as written and upper-cased.
var envKeys = []string{
	"token", "search_post", "search_count", "board", "magnet",
	"redis_ex_sec", "redis_ex_cache_sec", "static_prefix",
	"redis_host", "redis_port", "redis_password", "redis_db",
}

func applyEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		// Load does not override variables already present in the environment.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	for _, k := range envKeys {
		if err := v.BindEnv(k, strings.ToUpper(k), k); err != nil {
			return fmt.Errorf("bind env %s: %w", k, err)
		}
	}

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	str("token", &cfg.Backend.Token)
	str("search_post", &cfg.Backend.SearchPost)
	str("search_count", &cfg.Backend.SearchCount)
	str("board", &cfg.Backend.Board)
	str("magnet", &cfg.Backend.Magnet)
	str("static_prefix", &cfg.Server.StaticPrefix)
	str("redis_password", &cfg.Cache.Redis.Password)

	seconds := func(key string, dst *string) error {
		if !v.IsSet(key) {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = (time.Duration(n) * time.Second).String()
		return nil
	}
	if err := seconds("redis_ex_sec", &cfg.Cache.LabelTTL); err != nil {
		return err
	}
	if err := seconds("redis_ex_cache_sec", &cfg.Cache.ItemTTL); err != nil {
		return err
	}

	if v.IsSet("redis_db") {
		n, err := strconv.Atoi(strings.TrimSpace(v.GetString("redis_db")))
		if err != nil {
			return fmt.Errorf("redis_db: %w", err)
		}
		cfg.Cache.Redis.DB = n
	}

	if v.IsSet("redis_host") || v.IsSet("redis_port") {
		host, port := "127.0.0.1", "6379"
		if cfg.Cache.Redis.Addr != "" {
			if h, p, err := net.SplitHostPort(cfg.Cache.Redis.Addr); err == nil {
				host, port = h, p
			}
		}
		str("redis_host", &host)
		str("redis_port", &port)
		cfg.Cache.Redis.Addr = net.JoinHostPort(host, port)
	}
	return nil
}

func (cfg *Config) compile() error {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 31337
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", cfg.Server.Port)
	}
	if cfg.Server.StaticPrefix == "" {
		cfg.Server.StaticPrefix = "/static"
	}

	if err := cfg.Backend.compile(); err != nil {
		return err
	}
	if err := cfg.Cache.compile(); err != nil {
		return err
	}
	return cfg.Logging.compile()
}

func (b *BackendConfig) compile() error {
	for _, ep := range []struct {
		name string
		val  *string
	}{
		{"backend.search_post", &b.SearchPost},
		{"backend.search_count", &b.SearchCount},
		{"backend.board", &b.Board},
		{"backend.magnet", &b.Magnet},
	} {
		*ep.val = strings.TrimSpace(*ep.val)
		if *ep.val == "" {
			return fmt.Errorf("%s is required", ep.name)
		}
	}
	b.Board = strings.TrimRight(b.Board, "/")
	b.Magnet = strings.TrimRight(b.Magnet, "/")

	if b.Timeout == "" {
		b.timeoutDur = 30 * time.Second
		return nil
	}
	d, err := time.ParseDuration(b.Timeout)
	if err != nil {
		return fmt.Errorf("backend.timeout: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("backend.timeout: must not be negative")
	}
	b.timeoutDur = d
	return nil
}

func (c *CacheConfig) compile() error {
	if c.Backend == "" {
		c.Backend = cacheRedis
	}
	switch c.Backend {
	case cacheRedis, cacheLevelDB, cacheMemory:
	default:
		return fmt.Errorf("cache.backend: unknown backend %q", c.Backend)
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "open_search"
	}

	var err error
	if c.labelTTLDur, err = positiveDuration("cache.label_ttl", c.LabelTTL, 24*time.Hour); err != nil {
		return err
	}
	if c.itemTTLDur, err = positiveDuration("cache.item_ttl", c.ItemTTL, time.Hour); err != nil {
		return err
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if c.LevelDB.Path == "" {
		c.LevelDB.Path = "./data/leveldb"
	}
	if c.levelSweepDur, err = positiveDuration("cache.leveldb.sweep_every", c.LevelDB.SweepEvery, time.Minute); err != nil {
		return err
	}
	if c.memorySweepDur, err = positiveDuration("cache.memory.sweep_every", c.Memory.SweepEvery, time.Minute); err != nil {
		return err
	}
	if c.Memory.Max == "" {
		c.Memory.Max = "64mb"
	}
	if c.memoryMaxBytes, err = parseBytes(c.Memory.Max); err != nil {
		return fmt.Errorf("cache.memory.max: %w", err)
	}
	return nil
}

func (l *LoggingConfig) compile() error {
	if l.Level == "" {
		l.Level = "info"
	}
	switch l.Format {
	case "":
		l.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q", l.Format)
	}
	if l.LogStatsEvery == "" {
		return nil
	}
	d, err := time.ParseDuration(l.LogStatsEvery)
	if err != nil {
		return fmt.Errorf("logging.log_stats_every: %w", err)
	}
	l.logStatsEveryDur = d
	return nil
}

func positiveDuration(name, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be > 0", name)
	}
	return d, nil
}
