package storage

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aldor007/stow"
	httpStorage "github.com/aldor007/stow/http"
	fileStorage "github.com/aldor007/stow/local"
	// import blank to register noop adapter in stow.Register
	_ "github.com/aldor007/stow/noop"
	s3Storage "github.com/aldor007/stow/s3"
	"go.uber.org/zap"

	"github.com/imgedge/imgedge/pkg/config"
	"github.com/imgedge/imgedge/pkg/monitoring"
	"github.com/imgedge/imgedge/pkg/response"
)

const notFound = "{\"error\":\"item not found\"}"

// Store is blob store keyed by path
type Store struct {
	name       string
	cfg        config.Store
	expiration time.Duration

	lock      sync.Mutex
	container stow.Container
}

// New create store for given configuration
// objects older than expiration are reported as missing, zero expiration disables it
func New(name string, cfg config.Store, expiration time.Duration) *Store {
	return &Store{name: name, cfg: cfg, expiration: expiration}
}

// Name returns store name
func (s *Store) Name() string {
	return s.name
}

// Kind returns kind of storage adapter
func (s *Store) Kind() string {
	return s.cfg.Kind
}

// Bucket returns name of bucket
func (s *Store) Bucket() string {
	return s.cfg.Bucket
}

// Get retrieve object from storage and returns its wrapped in response
func (s *Store) Get(ctx context.Context, key string) *response.Response {
	return s.fetch(ctx, key, true)
}

// Head retrieve object headers from storage, content of object is omitted
func (s *Store) Head(ctx context.Context, key string) *response.Response {
	return s.fetch(ctx, key, false)
}

func (s *Store) fetch(ctx context.Context, key string, withBody bool) *response.Response {
	method := "head"
	if withBody {
		method = "get"
	}
	t := monitoring.Report().Timer("backend_time;backend:" + s.name + "-" + method)
	defer t.Done()

	if err := ctx.Err(); err != nil {
		return response.NewError(503, err)
	}

	client, err := s.getClient()
	if err != nil {
		monitoring.Log().Info("Storage/fetch get client", zap.String("store", s.name), zap.String("key", key), zap.Error(err))
		return response.NewError(503, err)
	}

	item, err := client.Item(s.getKey(key))
	if err != nil {
		if err == stow.ErrNotFound {
			monitoring.Log().Info("Storage/fetch item response", zap.String("store", s.name), zap.String("key", key), zap.Int("sc", s.cfg.MissStatus))
			return s.miss()
		}

		monitoring.Log().Info("Storage/fetch item response", zap.String("store", s.name), zap.String("key", key), zap.Error(err))
		return response.NewError(500, err)
	}

	if isDir(item) {
		return s.miss()
	}

	lastMod, err := item.LastMod()
	if err != nil {
		monitoring.Log().Warn("Storage/fetch read lastmod error", zap.String("store", s.name), zap.String("key", key), zap.Int("sc", 500), zap.Error(err))
		return response.NewError(500, err)
	}

	if s.expiration > 0 && time.Since(lastMod) > s.expiration {
		monitoring.Log().Info("Storage/fetch item expired", zap.String("store", s.name), zap.String("key", key), zap.Time("lastMod", lastMod))
		return s.miss()
	}

	var reader io.ReadCloser
	if withBody {
		reader, err = item.Open()
		if err != nil {
			monitoring.Logs().Warnw("Storage/fetch open item", zap.String("store", s.name), zap.String("key", key), zap.Int("sc", 500), zap.Error(err))
			return response.NewError(500, err)
		}
	}

	return s.prepareResponse(key, reader, item, lastMod)
}

func (s *Store) miss() *response.Response {
	res := response.NewString(s.cfg.MissStatus, notFound)
	res.SetContentType("application/json")
	return res
}

func (s *Store) getClient() (stow.Container, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.container != nil {
		return s.container, nil
	}

	var cfg stow.Config
	switch s.cfg.Kind {
	case "local":
		cfg = stow.ConfigMap{
			fileStorage.ConfigKeyPath:      s.cfg.RootPath,
			fileStorage.ConfigKeyMetaAllow: "true",
		}
	case "http":
		headers, _ := json.Marshal(s.cfg.Headers)
		cfg = stow.ConfigMap{
			httpStorage.ConfigUrl:    s.cfg.Url,
			httpStorage.ConfigHeader: string(headers),
		}
	case "s3":
		cfg = stow.ConfigMap{
			s3Storage.ConfigAccessKeyID: s.cfg.AccessKey,
			s3Storage.ConfigSecretKey:   s.cfg.SecretAccessKey,
			s3Storage.ConfigRegion:      s.cfg.Region,
			s3Storage.ConfigEndpoint:    s.cfg.Endpoint,
		}
	default:
		cfg = stow.ConfigMap{}
	}

	client, err := stow.Dial(s.cfg.Kind, cfg)
	if err != nil {
		monitoring.Log().Info("Storage/getClient", zap.String("kind", s.cfg.Kind), zap.Error(err))
		return nil, err
	}

	container, err := client.Container(s.cfg.Bucket)
	if err != nil {
		monitoring.Log().Info("Storage/getClient error", zap.String("kind", s.cfg.Kind), zap.String("bucket", s.cfg.Bucket), zap.Error(err))
		if err != stow.ErrNotFound || s.cfg.Kind != "local" {
			return nil, err
		}

		container, err = client.CreateContainer(s.cfg.Bucket)
		if err != nil {
			return nil, err
		}
	}

	s.container = container
	return container, nil
}

func (s *Store) getKey(key string) string {
	return strings.TrimPrefix(path.Join(s.cfg.PathPrefix, key), "/")
}

func (s *Store) prepareResponse(key string, stream io.ReadCloser, item stow.Item, lastMod time.Time) *response.Response {
	res := response.New(200, stream)
	if stream == nil {
		res.ContentLength = 0
	}

	metadata, err := item.Metadata()
	if err != nil {
		monitoring.Log().Warn("Storage/prepareResponse read metadata error", zap.String("store", s.name), zap.String("key", key), zap.Int("sc", 500), zap.Error(err))
		res.Close()
		return response.NewError(500, err)
	}

	s.parseMetadata(metadata, res)

	etag, err := item.ETag()
	if err != nil {
		monitoring.Log().Warn("Storage/prepareResponse read etag error", zap.String("store", s.name), zap.String("key", key), zap.Int("sc", 500), zap.Error(err))
		res.Close()
		return response.NewError(500, err)
	}

	if etag != "" {
		res.Set("ETag", etag)
	}
	res.Set("Last-Modified", lastMod.UTC().Format(http.TimeFormat))

	if size, err := item.Size(); err == nil && stream != nil && size > 0 {
		res.ContentLength = size
	}

	if res.Headers.Get(response.HeaderContentType) == "" {
		// transformed objects keep operations in last segment
		name := key
		if dir, last := path.Split(key); strings.Contains(last, "=") {
			name = strings.TrimSuffix(dir, "/")
		}

		if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
			res.SetContentType(ct)
		}
	}

	return res
}

func (s *Store) parseMetadata(metadata map[string]interface{}, res *response.Response) {
	for k, v := range metadata {
		value, ok := v.(string)
		if !ok {
			continue
		}

		switch s.cfg.Kind {
		case "s3":
			switch k {
			case "cache-control", "content-type":
				res.Set(k, value)
			default:
				res.Set("x-amz-meta-"+k, value)
			}
		default:
			switch http.CanonicalHeaderKey(k) {
			case "Cache-Control", "Content-Type":
				res.Set(k, value)
			}

			if strings.HasPrefix(http.CanonicalHeaderKey(k), "X-") {
				res.Set(k, value)
			}
		}
	}
}

func isDir(item stow.Item) bool {
	metaData, err := item.Metadata()
	if err != nil {
		return false
	}

	if dir, ok := metaData["is_dir"]; ok {
		if b, ok := dir.(bool); ok {
			return b
		}
	}

	if ct, ok := metaData["content-type"]; ok {
		if s, ok := ct.(string); ok {
			return s == "application/directory"
		}
	}

	return false
}
