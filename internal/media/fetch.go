package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/valyala/fasthttp"
)

var ErrUnsupportedSource = errors.New("unsupported media source")

// Fetcher materializes a remote source as a local file.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type FetcherConfig struct {
	Dir         string
	Timeout     time.Duration
	MaxBodySize int
	S3          S3Config
}

// URLFetcher downloads http(s) sources with fasthttp and s3:// sources with
// the MinIO client.
type URLFetcher struct {
	dir     string
	timeout time.Duration
	http    *fasthttp.Client
	s3      *minio.Client
}

func NewURLFetcher(cfg FetcherConfig) (*URLFetcher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 2000 << 20
	}
	dir := filepath.Join(cfg.Dir, "downloads")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	f := &URLFetcher{
		dir:     dir,
		timeout: cfg.Timeout,
		http: &fasthttp.Client{
			Name:                "courier",
			MaxResponseBodySize: cfg.MaxBodySize,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        30 * time.Second,
		},
	}
	if cfg.S3.Endpoint != "" {
		client, err := minio.New(cfg.S3.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
			Secure: cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 client: %w", err)
		}
		f.s3 = client
	}
	return f, nil
}

func (f *URLFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return f.fetchHTTP(ctx, u)
	case "s3":
		return f.fetchS3(ctx, u)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedSource, u.Scheme)
	}
}

func (f *URLFetcher) fetchHTTP(ctx context.Context, u *url.URL) (string, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(u.String())
	req.Header.SetMethod(fasthttp.MethodGet)

	deadline := time.Now().Add(f.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	done := make(chan error, 1)
	go func() { done <- f.http.DoDeadline(req, resp, deadline) }()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("download %s: %w", u.Host, err)
		}
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return "", fmt.Errorf("download %s: unexpected status %d", u.Host, code)
	}

	dst := f.target(u.Path)
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	if err := resp.BodyWriteTo(out); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return "", fmt.Errorf("write download file: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close download file: %w", err)
	}
	return dst, nil
}

func (f *URLFetcher) fetchS3(ctx context.Context, u *url.URL) (string, error) {
	if f.s3 == nil {
		return "", fmt.Errorf("%w: s3 storage is not configured", ErrUnsupportedSource)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", fmt.Errorf("s3 url needs bucket and key: %s", u.String())
	}
	dst := f.target(key)
	if err := f.s3.FGetObject(ctx, bucket, key, dst, minio.GetObjectOptions{}); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("get s3 object %s/%s: %w", bucket, key, err)
	}
	return dst, nil
}

// target keeps the remote file name so the extension survives.
func (f *URLFetcher) target(remotePath string) string {
	name := path.Base(remotePath)
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return '_'
		}
		return r
	}, name)
	return filepath.Join(f.dir, uuid.NewString()[:8]+"_"+name)
}
