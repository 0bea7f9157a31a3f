// config реализует конфигурацию page-comments: загрузка из YAML/ENV с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Поддерживаемые драйверы хранилища комментариев.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config — корневая конфигурация сервиса.
// Приоритет источников:
//  1. явный путь, переданный в MustLoad/Load;
//  2. переменная окружения CONFIG_PATH;
//  3. файл ./local.yaml из рабочей директории;
//  4. переменные окружения.
type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	DB        DBConfig        `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	Limits    LimitsConfig    `yaml:"limits"`
	Content   ContentConfig   `yaml:"content"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Cache     CacheConfig     `yaml:"cache"`
	Geo       GeoConfig       `yaml:"geo"`
	Admin     AdminConfig     `yaml:"admin"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
}

// TimeoutConfig — сервисные таймауты (общий дедлайн обработки запроса).
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
}

// HTTPConfig — публичный REST-сервер (API + health/metrics).
type HTTPConfig struct {
	Host     string `yaml:"host"      env:"HTTP_HOST"      env-default:"0.0.0.0"`
	Port     string `yaml:"port"      env:"HTTP_PORT"      env-default:"8080"`
	BasePath string `yaml:"base_path" env:"HTTP_BASE_PATH" env-default:"/api"`
	// Разрешённые источники для CORS; пусто — CORS выключен.
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" env-separator:","`
	// Доверять X-Forwarded-For и родственным заголовкам при определении IP клиента.
	// Включать только за доверенным прокси: иначе клиент подменяет IP и обходит лимиты ip и read_ip.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" env:"TRUST_PROXY_HEADERS" env-default:"false"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// DBConfig — настройки подключения к хранилищу комментариев.
type DBConfig struct {
	Driver string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	URL    string `yaml:"url"    env:"DATABASE_URL" env-required:"true"`
}

// RedisConfig — общий стор кэша и счётчиков rate limit.
// Пустой URL — in-memory реализации (только для одного инстанса/разработки).
type RedisConfig struct {
	URL    string `yaml:"url"    env:"REDIS_URL"`
	Prefix string `yaml:"prefix" env:"REDIS_PREFIX" env-default:"pc:"`
}

// LimitsConfig — лимиты на выдачу.
type LimitsConfig struct {
	// Пагинация: page_size=0 -> берём Default; верхняя граница — Max.
	Default int32 `yaml:"default" env:"DEFAULT_LIMIT" env-default:"20"`
	Max     int32 `yaml:"max"     env:"MAX_LIMIT"     env-default:"100"`
	// Сколько ответов подкладывать к каждому корневому комментарию в выдаче страницы.
	RepliesPreview int32 `yaml:"replies_preview" env:"REPLIES_PREVIEW" env-default:"3"`
}

// ContentConfig — границы пользовательских полей (в рунах).
type ContentConfig struct {
	MinContent  int `yaml:"min_content"  env:"MIN_CONTENT_LENGTH"  env-default:"10"`
	MaxContent  int `yaml:"max_content"  env:"MAX_CONTENT_LENGTH"  env-default:"2000"`
	MinUsername int `yaml:"min_username" env:"MIN_USERNAME_LENGTH" env-default:"2"`
	MaxUsername int `yaml:"max_username" env:"MAX_USERNAME_LENGTH" env-default:"100"`
	MaxEmail    int `yaml:"max_email"    env:"MAX_EMAIL_LENGTH"    env-default:"255"`
	MaxPage     int `yaml:"max_page"     env:"MAX_PAGE_LENGTH"     env-default:"200"`
}

// RateLimitConfig — правила трёх областей записи и отдельное правило для чтения по IP.
type RateLimitConfig struct {
	Enabled bool       `yaml:"enabled" env:"RATE_LIMIT_ENABLED" env-default:"true"`
	IP      IPRule     `yaml:"ip"`
	Email   EmailRule  `yaml:"email"`
	Global  GlobalRule `yaml:"global"`
	ReadIP  ReadRule   `yaml:"read_ip"`
}

// Rule — общий вид правила: лимит на окно и поведение при недоступности стора.
type Rule struct {
	Limit    int64
	Window   time.Duration
	FailOpen bool
}

// Отдельные типы нужны cleanenv, чтобы у каждой области были свои ENV и дефолты.

type IPRule struct {
	Limit    int64         `yaml:"limit"     env:"IP_RATE_LIMIT"     env-default:"5"`
	Window   time.Duration `yaml:"window"    env:"IP_RATE_WINDOW"    env-default:"60s"`
	FailOpen bool          `yaml:"fail_open" env:"IP_RATE_FAIL_OPEN" env-default:"true"`
}

type EmailRule struct {
	Limit    int64         `yaml:"limit"     env:"EMAIL_RATE_LIMIT"     env-default:"3"`
	Window   time.Duration `yaml:"window"    env:"EMAIL_RATE_WINDOW"    env-default:"300s"`
	FailOpen bool          `yaml:"fail_open" env:"EMAIL_RATE_FAIL_OPEN" env-default:"false"`
}

type GlobalRule struct {
	Limit    int64         `yaml:"limit"     env:"GLOBAL_RATE_LIMIT"     env-default:"1000"`
	Window   time.Duration `yaml:"window"    env:"GLOBAL_RATE_WINDOW"    env-default:"60s"`
	FailOpen bool          `yaml:"fail_open" env:"GLOBAL_RATE_FAIL_OPEN" env-default:"true"`
}

type ReadRule struct {
	Limit    int64         `yaml:"limit"     env:"READ_RATE_LIMIT"     env-default:"60"`
	Window   time.Duration `yaml:"window"    env:"READ_RATE_WINDOW"    env-default:"60s"`
	FailOpen bool          `yaml:"fail_open" env:"READ_RATE_FAIL_OPEN" env-default:"true"`
}

func (r IPRule) Rule() Rule     { return Rule{Limit: r.Limit, Window: r.Window, FailOpen: r.FailOpen} }
func (r EmailRule) Rule() Rule  { return Rule{Limit: r.Limit, Window: r.Window, FailOpen: r.FailOpen} }
func (r GlobalRule) Rule() Rule { return Rule{Limit: r.Limit, Window: r.Window, FailOpen: r.FailOpen} }
func (r ReadRule) Rule() Rule   { return Rule{Limit: r.Limit, Window: r.Window, FailOpen: r.FailOpen} }

// CacheConfig — TTL кэшированных выдач.
type CacheConfig struct {
	TTL      time.Duration `yaml:"ttl"       env:"CACHE_TTL"       env-default:"300s"`
	StatsTTL time.Duration `yaml:"stats_ttl" env:"STATS_CACHE_TTL" env-default:"10m"`
}

// GeoConfig — внешний сервис IP -> регион.
type GeoConfig struct {
	Enabled  bool          `yaml:"enabled"   env:"GEO_ENABLED"   env-default:"true"`
	URL      string        `yaml:"url"       env:"GEO_API_URL"   env-default:"https://api.vore.top/api/IP"`
	Timeout  time.Duration `yaml:"timeout"   env:"GEO_TIMEOUT"   env-default:"3s"`
	Retries  int           `yaml:"retries"   env:"GEO_RETRIES"   env-default:"2"`
	Backoff  time.Duration `yaml:"backoff"   env:"GEO_BACKOFF"   env-default:"200ms"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"GEO_CACHE_TTL" env-default:"24h"`
}

// AdminConfig — проверка admin bearer-токенов (HS256).
// Пустой секрет выключает админские маршруты.
type AdminConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"ADMIN_JWT_SECRET"`
	Issuer    string `yaml:"issuer"     env:"ADMIN_JWT_ISSUER"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла накладываем ENV-переменные поверх значений из YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	readFile := func(p string) error {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return fmt.Errorf("failed to read config %q: %w", p, err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return fmt.Errorf("failed to overlay env: %w", err)
		}

		return nil
	}

	switch {
	case path != "":
		if err := readFile(path); err != nil {
			return nil, err
		}
	case os.Getenv("CONFIG_PATH") != "":
		if err := readFile(os.Getenv("CONFIG_PATH")); err != nil {
			return nil, err
		}
	case fileExists("local.yaml"):
		if err := readFile("local.yaml"); err != nil {
			return nil, err
		}
	default:
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// validate — базовая валидация значений.
func (c *Config) validate() error {
	if c.DB.URL == "" {
		return fmt.Errorf("db.url is required")
	}

	if c.DB.Driver != DriverPostgres && c.DB.Driver != DriverMongo {
		return fmt.Errorf("db.driver must be %q or %q", DriverPostgres, DriverMongo)
	}

	if c.Limits.Default <= 0 {
		return fmt.Errorf("limits.default must be > 0")
	}

	if c.Limits.Max <= 0 {
		return fmt.Errorf("limits.max must be > 0")
	}

	if c.Limits.Default > c.Limits.Max {
		return fmt.Errorf("limits.default must be <= limits.max")
	}

	if c.Limits.RepliesPreview < 0 || c.Limits.RepliesPreview > c.Limits.Max {
		return fmt.Errorf("limits.replies_preview must be in [0, limits.max]")
	}

	if c.Content.MinContent <= 0 || c.Content.MinContent > c.Content.MaxContent {
		return fmt.Errorf("content.min_content must be in [1, content.max_content]")
	}

	if c.Content.MinUsername <= 0 || c.Content.MinUsername > c.Content.MaxUsername {
		return fmt.Errorf("content.min_username must be in [1, content.max_username]")
	}

	if c.Content.MaxEmail <= 0 || c.Content.MaxPage <= 0 {
		return fmt.Errorf("content.max_email and content.max_page must be > 0")
	}

	for name, r := range map[string]Rule{
		"ip":      c.RateLimit.IP.Rule(),
		"email":   c.RateLimit.Email.Rule(),
		"global":  c.RateLimit.Global.Rule(),
		"read_ip": c.RateLimit.ReadIP.Rule(),
	} {
		if r.Limit <= 0 {
			return fmt.Errorf("ratelimit.%s.limit must be > 0", name)
		}

		if r.Window < time.Second {
			return fmt.Errorf("ratelimit.%s.window must be at least 1s", name)
		}
	}

	if c.Cache.TTL <= 0 || c.Cache.StatsTTL <= 0 {
		return fmt.Errorf("cache.ttl and cache.stats_ttl must be > 0")
	}

	if c.Geo.Enabled {
		if c.Geo.URL == "" {
			return fmt.Errorf("geo.url is required when geo.enabled")
		}

		if c.Geo.Timeout <= 0 {
			return fmt.Errorf("geo.timeout must be > 0")
		}

		if c.Geo.Retries < 0 || c.Geo.Retries > 5 {
			return fmt.Errorf("geo.retries must be in [0, 5]")
		}
	}

	return nil
}
