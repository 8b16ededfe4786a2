package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/imgedge/imgedge/pkg/monitoring"
)

// Config contains configuration of edge distribution
//
// Config is created once by Load or Parse and must not be modified afterwards
type Config struct {
	Distribution Distribution `yaml:"distribution"`
	Stores       Stores       `yaml:"stores"`
	Compute      Compute      `yaml:"compute"`
	Server       Server       `yaml:"server"`
}

// storeKinds is list of available storage kinds
var storeKinds = []string{"local", "s3", "http", "noop"}

// DefaultFallbackStatusCodes are primary status codes on which transformation service is asked
var DefaultFallbackStatusCodes = []int{403, 500, 503, 504}

// DefaultImagePatterns are path patterns of transformable images
var DefaultImagePatterns = []string{"/*.png", "/*.jpg", "/*.jpeg"}

// DefaultCacheKeyHeader is header included in cache key of transformable responses
const DefaultCacheKeyHeader = "x-meta-original-url"

func defaultConfig() *Config {
	return &Config{
		Distribution: Distribution{
			Name:                           "imgedge",
			StoreTransformedImages:         true,
			TransformedImageExpirationDays: 90,
			TransformedImageCacheControl:   "max-age=31622400",
			MaxImageSize:                   4700000,
			CORSEnabled:                    true,
			MaxImageWidth:                  4000,
		},
		Compute: Compute{
			Timeout:     60,
			MemoryMB:    1500,
			Concurrency: 100,
		},
		Server: Server{
			LogLevel:       "prod",
			Listen:         ":8080",
			InternalListen: ":8081",
			RequestTimeout: 70,
			Cache:          CacheCfg{Type: "memory", CacheSize: 50000},
			Collapse:       CollapseCfg{Type: "none"},
		},
	}
}

// Load reads config data from file
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load config file %s", filePath)
	}

	return Parse(data)
}

// Parse creates configuration from yaml document
// environment variables in document are expanded
func Parse(data []byte) (*Config, error) {
	c := defaultConfig()
	data = []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "unable to parse config")
	}

	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Config) setDefaults() {
	if len(c.Distribution.ImagePatterns) == 0 {
		c.Distribution.ImagePatterns = DefaultImagePatterns
	}

	if len(c.Distribution.FallbackStatusCodes) == 0 {
		c.Distribution.FallbackStatusCodes = DefaultFallbackStatusCodes
	}

	if c.Distribution.CacheKeyHeader == "" {
		c.Distribution.CacheKeyHeader = DefaultCacheKeyHeader
	}

	if c.Stores.Original.MissStatus == 0 {
		c.Stores.Original.MissStatus = 404
	}

	// object stores without list permission answer 403 for missing keys
	if c.Stores.Transformed.MissStatus == 0 {
		c.Stores.Transformed.MissStatus = 403
	}

	if c.Compute.Signing != nil {
		s := c.Compute.Signing
		if s.OriginType == "" {
			s.OriginType = "lambda"
		}
		if s.Behavior == "" {
			s.Behavior = "always"
		}
		if s.Protocol == "" {
			s.Protocol = "sigv4"
		}
		if s.Service == "" {
			s.Service = "lambda"
		}
		if s.Region == "" {
			s.Region = "us-east-1"
		}
		if s.Name == "" {
			s.Name = "oac-" + c.Distribution.Name
		}
	}

	if c.Server.Collapse.Timeout == 0 {
		c.Server.Collapse.Timeout = c.Compute.Timeout
	}
}

func configInvalidError(msg string) error {
	monitoring.Logs().Warnw(msg)
	return errors.New(msg)
}

func (c *Config) validateStore(name string, store Store) error {
	var validKind bool
	for _, k := range storeKinds {
		if k == store.Kind {
			validKind = true
			break
		}
	}

	if !validKind {
		return configInvalidError(fmt.Sprintf("store %s has invalid kind %q valid %s", name, store.Kind, storeKinds))
	}

	errorMsgPrefix := fmt.Sprintf("store %s has invalid config for kind %s", name, store.Kind)
	switch store.Kind {
	case "local":
		if store.RootPath == "" {
			return configInvalidError(errorMsgPrefix + " - no rootPath")
		}
	case "http":
		if store.Url == "" {
			return configInvalidError(errorMsgPrefix + " - no url")
		}
	case "s3":
		if store.AccessKey == "" {
			return configInvalidError(errorMsgPrefix + " - no accessKey")
		}

		if store.SecretAccessKey == "" {
			return configInvalidError(errorMsgPrefix + " - no secretAccessKey")
		}
	}

	if store.Kind != "noop" && store.Bucket == "" {
		return configInvalidError(errorMsgPrefix + " - no bucket")
	}

	if store.MissStatus < 100 || store.MissStatus > 599 {
		return configInvalidError(fmt.Sprintf("%s - invalid missStatus %d", errorMsgPrefix, store.MissStatus))
	}

	return nil
}

func (c *Config) validateCompute() error {
	u, err := url.Parse(c.Compute.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return configInvalidError(fmt.Sprintf("compute url %q must be absolute", c.Compute.URL))
	}

	if c.Compute.Timeout <= 0 {
		return configInvalidError("compute timeout must be positive")
	}

	if s := c.Compute.Signing; s != nil {
		if s.Protocol != "sigv4" {
			return configInvalidError(fmt.Sprintf("signing %s has unsupported protocol %s", s.Name, s.Protocol))
		}

		if s.Behavior != "always" && s.Behavior != "never" {
			return configInvalidError(fmt.Sprintf("signing %s has invalid behavior %s", s.Name, s.Behavior))
		}

		if s.Behavior == "always" && (s.AccessKey == "" || s.SecretAccessKey == "") {
			return configInvalidError(fmt.Sprintf("signing %s requires accessKey and secretAccessKey", s.Name))
		}
	}

	return nil
}

func (c *Config) validateDistribution() error {
	d := c.Distribution
	if d.TransformedImageExpirationDays < 0 {
		return configInvalidError("transformedImageExpirationDays can't be negative")
	}

	if d.MaxImageSize <= 0 {
		return configInvalidError("maxImageSize must be positive")
	}

	for _, code := range d.FallbackStatusCodes {
		if code < 100 || code > 599 {
			return configInvalidError(fmt.Sprintf("invalid fallback status code %d", code))
		}
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.LogLevel != "prod" && c.Server.LogLevel != "dev" {
		return configInvalidError(fmt.Sprintf("invalid logLevel %s", c.Server.LogLevel))
	}

	if c.Server.InternalListen == c.Server.Listen {
		return configInvalidError("server has invalid configuration internalListen and listen should have different address")
	}

	switch c.Server.Cache.Type {
	case "memory", "none":
	case "redis", "redis-cluster":
		if len(c.Server.Cache.Address) == 0 {
			return configInvalidError("redis cache requires address")
		}
	default:
		return configInvalidError(fmt.Sprintf("invalid cache type %s", c.Server.Cache.Type))
	}

	switch c.Server.Collapse.Type {
	case "none", "memory":
	case "redis":
		if len(c.Server.Collapse.Address) == 0 {
			return configInvalidError("redis collapse requires address")
		}
	default:
		return configInvalidError(fmt.Sprintf("invalid collapse type %s", c.Server.Collapse.Type))
	}

	if c.Server.RateLimit.RequestsPerSecond < 0 || c.Server.RateLimit.Burst < 0 {
		return configInvalidError("rateLimit values can't be negative")
	}

	return nil
}

func (c *Config) validate() error {
	if err := c.validateStore("original", c.Stores.Original); err != nil {
		return err
	}

	if c.Distribution.StoreTransformedImages {
		if err := c.validateStore("transformed", c.Stores.Transformed); err != nil {
			return err
		}
	}

	if err := c.validateCompute(); err != nil {
		return err
	}

	if err := c.validateDistribution(); err != nil {
		return err
	}

	return c.validateServer()
}

// CustomFallback check if fallback status codes differ from DefaultFallbackStatusCodes
func (d Distribution) CustomFallback() bool {
	codes := make(map[int]bool, len(d.FallbackStatusCodes))
	for _, code := range d.FallbackStatusCodes {
		codes[code] = true
	}

	if len(codes) != len(DefaultFallbackStatusCodes) {
		return true
	}

	for _, code := range DefaultFallbackStatusCodes {
		if !codes[code] {
			return true
		}
	}

	return false
}
