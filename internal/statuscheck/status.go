package statuscheck

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// BucketHeader is the part of the S3 client used to probe the import bucket.
type BucketHeader interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// CircuitState reports the completion circuit breaker state.
type CircuitState interface {
	State() string
}

// Checker aggregates health checks for the service's dependencies.
type Checker struct {
	redis      RedisPinger
	s3         BucketHeader
	breaker    CircuitState
	s3Bucket   string
	apiKey     string
	modelURI   string
	importDir  string
	maxLatency time.Duration
}

// Options configures the Checker. A nil Redis means the text cache is off.
type Options struct {
	Redis     RedisPinger
	S3        BucketHeader
	Breaker   CircuitState
	S3Bucket  string
	APIKey    string
	ModelURI  string
	ImportDir string
	Timeout   time.Duration
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Completion Status `json:"completion"`
	ImportDir  Status `json:"import_dir"`
	Redis      Status `json:"redis"`
	S3         Status `json:"s3"`
}

// Healthy reports whether the service can serve chat requests. Redis and S3
// are optional and only degrade the service.
func (s Summary) Healthy() bool { return s.Completion.OK && s.ImportDir.OK }

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		redis:      opts.Redis,
		s3:         opts.S3,
		breaker:    opts.Breaker,
		s3Bucket:   strings.TrimSpace(opts.S3Bucket),
		apiKey:     strings.TrimSpace(opts.APIKey),
		modelURI:   strings.TrimSpace(opts.ModelURI),
		importDir:  opts.ImportDir,
		maxLatency: timeout,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Completion: c.checkCompletion(),
		ImportDir:  c.checkImportDir(),
		Redis:      c.checkRedis(ctx),
		S3:         c.checkS3(ctx),
	}
}

// checkCompletion inspects configuration and the circuit breaker; the
// completion API has no free endpoint to probe.
func (c *Checker) checkCompletion() Status {
	switch {
	case c.apiKey == "":
		return Status{OK: false, Message: "API key missing"}
	case c.modelURI == "":
		return Status{OK: false, Message: "Model URI missing"}
	}
	if c.breaker != nil && c.breaker.State() == "open" {
		return Status{OK: false, Message: "Circuit open"}
	}
	return Status{OK: true, Message: "Configured"}
}

func (c *Checker) checkImportDir() Status {
	if c.importDir == "" {
		return Status{OK: false, Message: "Not configured"}
	}
	if err := os.MkdirAll(c.importDir, 0o755); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	f, err := os.CreateTemp(c.importDir, ".health-*")
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	f.Close()
	_ = os.Remove(f.Name())
	return Status{OK: true, Message: filepath.Clean(c.importDir)}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: true, Message: "Cache disabled"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3Bucket == "" || c.s3 == nil {
		return Status{OK: true, Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.maxLatency)
	defer cancel()
	if _, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &c.s3Bucket}); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
