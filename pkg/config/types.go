package config

// Store describe blob store used as origin
type Store struct {
	Kind            string            `yaml:"kind"`                      // type of storage from list ("local", "s3", "http", "noop")
	RootPath        string            `yaml:"rootPath,omitempty"`        // root path for local storage
	Url             string            `yaml:"url,omitempty"`             // Url for http storage
	Headers         map[string]string `yaml:"headers,omitempty"`         // request headers for http storage
	AccessKey       string            `yaml:"accessKey,omitempty"`       // access key for s3 storage
	SecretAccessKey string            `yaml:"secretAccessKey,omitempty"` // SecretAccessKey for s3 storage
	Region          string            `yaml:"region,omitempty"`          // region for s3 storage
	Endpoint        string            `yaml:"endpoint,omitempty"`        // endpoint for s3 storage
	PathPrefix      string            `yaml:"pathPrefix,omitempty"`      // prefix in path for all keys
	Bucket          string            `yaml:"bucket"`
	MissStatus      int               `yaml:"missStatus,omitempty"` // status code returned when key doesn't exist
}

// Stores contains original and transformed asset stores
type Stores struct {
	Original    Store `yaml:"original"`
	Transformed Store `yaml:"transformed"`
}

// Signing configure signature of requests sent from edge to compute
type Signing struct {
	Name            string `yaml:"name"`
	OriginType      string `yaml:"originType"` // kind of origin the signature is for, only "lambda" is used
	Behavior        string `yaml:"behavior"`   // "always" or "never"
	Protocol        string `yaml:"protocol"`   // only "sigv4" is supported
	Region          string `yaml:"region"`
	Service         string `yaml:"service"`
	AccessKey       string `yaml:"accessKey"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	SourceArn       string `yaml:"sourceArn"` // distribution identity the invocation is scoped to
}

// Compute describe transformation service
type Compute struct {
	URL         string   `yaml:"url"`
	Timeout     int      `yaml:"timeout"`     // seconds
	MemoryMB    int      `yaml:"memoryMB"`    // reported only
	Concurrency int      `yaml:"concurrency"` // maximum number of concurrent invocations
	Signing     *Signing `yaml:"signing,omitempty"`
}

// Distribution contains options of routing and caching policy
type Distribution struct {
	Name                           string   `yaml:"name"`
	StoreTransformedImages         bool     `yaml:"storeTransformedImages"`
	TransformedImageExpirationDays int      `yaml:"transformedImageExpirationDays"`
	TransformedImageCacheControl   string   `yaml:"transformedImageCacheControl"`
	MaxImageSize                   int64    `yaml:"maxImageSize"`
	CORSEnabled                    bool     `yaml:"corsEnabled"`
	OriginShieldRegion             string   `yaml:"originShieldRegion"`
	ImagePatterns                  []string `yaml:"imagePatterns"`
	FallbackStatusCodes            []int    `yaml:"fallbackStatusCodes"`
	CacheKeyHeader                 string   `yaml:"cacheKeyHeader"`
	MaxImageWidth                  int      `yaml:"maxImageWidth"`
}

// CacheCfg configure type of edge cache
type CacheCfg struct {
	Type         string            `yaml:"type"` // "memory", "redis", "redis-cluster" or "none"
	Address      []string          `yaml:"address"`
	CacheSize    int64             `yaml:"cacheSize"`
	ClientConfig map[string]string `yaml:"clientConfig"`
}

// CollapseCfg configure single-flight in front of compute
type CollapseCfg struct {
	Type         string            `yaml:"type"` // "none", "memory" or "redis"
	Address      []string          `yaml:"address"`
	ClientConfig map[string]string `yaml:"clientConfig"`
	Timeout      int               `yaml:"timeout"` // seconds
}

// RateLimitCfg configure per client rate limiting
type RateLimitCfg struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// Server configure HTTP server
type Server struct {
	LogLevel        string       `yaml:"logLevel"`
	AccessLog       bool         `yaml:"accessLogs"`
	Listen          string       `yaml:"listen"`
	InternalListen  string       `yaml:"internalListen"`
	RequestTimeout  int          `yaml:"requestTimeout"`
	RedirectToHTTPS bool         `yaml:"redirectToHTTPS"`
	H2C             bool         `yaml:"h2c"`
	Debug           bool         `yaml:"debug"` // error responses carry error message in body
	Cache           CacheCfg     `yaml:"cache"`
	Collapse        CollapseCfg  `yaml:"collapse"`
	RateLimit       RateLimitCfg `yaml:"rateLimit"`
}
