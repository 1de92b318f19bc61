package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configFileEnvName = "STOREFRONT_CONFIG_FILE"
	envPrefix         = "STOREFRONT"
)

const (
	SimilarityNone  = "none"
	SimilarityFile  = "file"
	SimilarityS3    = "s3"
	SimilarityMinIO = "minio"
)

type checkout struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

type similarity struct {
	Source          string        `mapstructure:"source"`
	Path            string        `mapstructure:"path"`
	Bucket          string        `mapstructure:"bucket"`
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region"`
	AccessKey       string        `mapstructure:"access_key"`
	SecretKey       string        `mapstructure:"secret_key"`
	UseTLS          bool          `mapstructure:"use_tls"`
	ReloadInterval  time.Duration `mapstructure:"reload_interval"`
	MaxPayloadBytes uint64        `mapstructure:"max_payload_bytes"`
}

type tlsFiles struct {
	CA   string `mapstructure:"ca"`
	Cert string `mapstructure:"cert"`
	Key  string `mapstructure:"key"`
}

// Enabled reports whether broker connections use TLS.
func (t tlsFiles) Enabled() bool {
	return t.CA != ""
}

type consumers struct {
	CatalogGroup string `mapstructure:"catalog_group"`
}

type topics struct {
	Orders  string `mapstructure:"orders"`
	Catalog string `mapstructure:"catalog"`
}

type broker struct {
	SeedBrokers        []string  `mapstructure:"seed_brokers"`
	SchemaRegistryURLs []string  `mapstructure:"schema_registry_urls"`
	TLS                tlsFiles  `mapstructure:"tls"`
	Topics             topics    `mapstructure:"topics"`
	Consumers          consumers `mapstructure:"consumers"`
}

// Enabled reports whether the broker section is configured at all.
func (b broker) Enabled() bool {
	return len(b.SeedBrokers) != 0
}

type Config struct {
	LogLevel       slog.Level    `mapstructure:"log_level"`
	HTTPServerAddr string        `mapstructure:"http_server_addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SQLDB          string        `mapstructure:"sql_db"`
	Checkout       checkout      `mapstructure:"checkout"`
	Similarity     similarity    `mapstructure:"similarity"`
	Broker         broker        `mapstructure:"broker"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "INFO")
	v.SetDefault("http_server_addr", ":8080")
	v.SetDefault("request_timeout", 5*time.Second)
	v.SetDefault("sql_db", "")
	v.SetDefault("checkout.max_attempts", 3)
	v.SetDefault("checkout.retry_delay", 10*time.Millisecond)
	v.SetDefault("similarity.source", SimilarityNone)
	v.SetDefault("similarity.path", "")
	v.SetDefault("similarity.bucket", "")
	v.SetDefault("similarity.endpoint", "")
	v.SetDefault("similarity.region", "")
	v.SetDefault("similarity.access_key", "")
	v.SetDefault("similarity.secret_key", "")
	v.SetDefault("similarity.use_tls", true)
	v.SetDefault("similarity.reload_interval", time.Minute)
	v.SetDefault("similarity.max_payload_bytes", 1<<30)
	v.SetDefault("broker.seed_brokers", []string{})
	v.SetDefault("broker.schema_registry_urls", []string{})
	v.SetDefault("broker.tls.ca", "")
	v.SetDefault("broker.tls.cert", "")
	v.SetDefault("broker.tls.key", "")
	v.SetDefault("broker.topics.orders", "orders")
	v.SetDefault("broker.topics.catalog", "catalog")
	v.SetDefault("broker.consumers.catalog_group", "storefront-catalog")
}

func Load() Config {
	cfg, err := LoadFile(getConfigFilepath())
	if err != nil {
		die(err)
	}
	return cfg
}

// LoadFile reads the YAML config at path. Every key can be overridden by
// a STOREFRONT_ prefixed env variable, e.g. STOREFRONT_BROKER_TOPICS_ORDERS.
func LoadFile(path string) (Config, error) {
	const op = "config.LoadFile"

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", op, err)
	}

	var cfg Config
	err := v.UnmarshalExact(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", op, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Checkout.MaxAttempts < 1 {
		return fmt.Errorf("checkout.max_attempts must be positive, got %d",
			c.Checkout.MaxAttempts)
	}
	switch c.Similarity.Source {
	case SimilarityNone:
	case SimilarityFile:
		if c.Similarity.Path == "" {
			return fmt.Errorf("similarity.path is required for %q source",
				c.Similarity.Source)
		}
	case SimilarityS3, SimilarityMinIO:
		if c.Similarity.Bucket == "" || c.Similarity.Path == "" {
			return fmt.Errorf("similarity.bucket and similarity.path are required for %q source",
				c.Similarity.Source)
		}
	default:
		return fmt.Errorf("unknown similarity.source %q", c.Similarity.Source)
	}
	if c.Broker.Enabled() && len(c.Broker.SchemaRegistryURLs) == 0 {
		return fmt.Errorf("broker.schema_registry_urls is required with seed brokers")
	}
	return nil
}

func getConfigFilepath() string {
	cmdLine := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	arg := cmdLine.String("config", "/config.yaml", "config file")
	_ = cmdLine.Parse(os.Args[1:])
	env, ok := os.LookupEnv(configFileEnvName)
	if ok {
		return env
	}
	return *arg
}

func die(err error) {
	fmt.Printf("failed to load config file: %v\n", err)
	os.Exit(2)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

func (c Config) Print() {
	tamplate := `
	General:
	LogLevel=%q
	HTTPServerAddr=%q
	RequestTimeout=%s
	SQLDB=%q

	Checkout:
	MaxAttempts=%d
	RetryDelay=%s

	Similarity:
	Source=%q
	Path=%q
	Bucket=%q
	Endpoint=%q
	Region=%q
	AccessKey=%q
	SecretKey=%q
	UseTLS=%t
	ReloadInterval=%s
	MaxPayloadBytes=%d

	BrokerConfig:
	SeedBrokers=%q
	SchemaRegistryURLs=%q
	TLS:
		CA=%q
		Cert=%q
		Key=%q
	Topics:
		Orders=%q
		Catalog=%q
	Consumers:
		CatalogGroup=%q

`
	fmt.Println("Loaded config:")
	fmt.Printf(
		strings.TrimLeft(tamplate, "\n"),
		c.LogLevel,
		c.HTTPServerAddr,
		c.RequestTimeout,
		mask(c.SQLDB),
		c.Checkout.MaxAttempts,
		c.Checkout.RetryDelay,
		c.Similarity.Source,
		c.Similarity.Path,
		c.Similarity.Bucket,
		c.Similarity.Endpoint,
		c.Similarity.Region,
		c.Similarity.AccessKey,
		mask(c.Similarity.SecretKey),
		c.Similarity.UseTLS,
		c.Similarity.ReloadInterval,
		c.Similarity.MaxPayloadBytes,
		c.Broker.SeedBrokers,
		c.Broker.SchemaRegistryURLs,
		c.Broker.TLS.CA,
		c.Broker.TLS.Cert,
		c.Broker.TLS.Key,
		c.Broker.Topics.Orders,
		c.Broker.Topics.Catalog,
		c.Broker.Consumers.CatalogGroup,
	)
}
