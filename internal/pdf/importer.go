package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfchat/internal/filetype"
	mpkg "github.com/local/pdfchat/internal/metrics"
)

// DefaultName is used when a reference carries no usable file name.
const DefaultName = "document.pdf"

// DefaultMaxBytes caps a single import.
const DefaultMaxBytes int64 = 100 << 20

var (
	ErrNotPDF          = errors.New("not a pdf")
	ErrInvalidPDF      = errors.New("invalid pdf")
	ErrS3Unavailable   = errors.New("s3 source not configured")
	ErrInvalidLocation = errors.New("invalid document reference")
	ErrLocalDisabled   = errors.New("local file references are disabled")
	ErrHostNotAllowed  = errors.New("document host not allowed")
	ErrTooLarge        = errors.New("document exceeds size limit")
)

// ObjectDownloader fetches an object into w.
type ObjectDownloader interface {
	Download(ctx context.Context, w io.WriterAt, bucket, key string) (int64, error)
}

// S3Options configures the S3 source. Static credentials are used when both
// keys are set, otherwise the default AWS chain applies.
type S3Options struct {
	Region    string
	AccessKey string
	SecretKey string
}

type s3Downloader struct {
	dl *manager.Downloader
}

// NewS3Client loads the AWS configuration described by opts.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	var loadOpts []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// NewS3Downloader wraps client in a concurrent ranged downloader.
func NewS3Downloader(client *s3.Client) ObjectDownloader {
	return &s3Downloader{dl: manager.NewDownloader(client)}
}

func (d *s3Downloader) Download(ctx context.Context, w io.WriterAt, bucket, key string) (int64, error) {
	return d.dl.Download(ctx, w, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
}

// Importer copies a referenced PDF into Dir. A file of the same name already
// in Dir is replaced. References may be a path, file://, http(s):// or
// s3://bucket/key (s3:///key uses S3Bucket).
type Importer struct {
	Dir        string
	HTTPClient *http.Client
	S3         ObjectDownloader
	S3Bucket   string
	Detector   *filetype.Detector
	// Validate checks PDF structure and returns the page count.
	Validate func(path string) (int, error)

	// AllowLocal permits plain paths and file:// references.
	AllowLocal bool
	// AllowedHosts restricts http(s) references to these host names. Empty
	// allows any host.
	AllowedHosts []string
	// MaxBytes caps the size of one import. Zero or less means DefaultMaxBytes.
	MaxBytes int64
}

// NewImporter returns an importer that accepts every reference kind. Servers
// should clear AllowLocal.
func NewImporter(dir string) *Importer {
	return &Importer{
		Dir:        dir,
		HTTPClient: http.DefaultClient,
		Detector:   filetype.New(),
		Validate:   api.PageCountFile,
		AllowLocal: true,
		MaxBytes:   DefaultMaxBytes,
	}
}

type source struct {
	kind   string // file, http, s3
	path   string
	url    string
	bucket string
	key    string
	name   string
}

func parseRef(ref, defaultBucket string) (source, error) {
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return source{}, ErrInvalidLocation
	}
	switch {
	case strings.HasPrefix(ref, "s3://"):
		rest := strings.TrimPrefix(ref, "s3://")
		slash := strings.Index(rest, "/")
		if slash < 0 || slash == len(rest)-1 {
			return source{}, fmt.Errorf("%w: %s", ErrInvalidLocation, ref)
		}
		bucket, key := rest[:slash], rest[slash+1:]
		if bucket == "" {
			bucket = defaultBucket
		}
		if bucket == "" {
			return source{}, fmt.Errorf("%w: no bucket in %s", ErrInvalidLocation, ref)
		}
		return source{kind: "s3", bucket: bucket, key: key, name: fileName(key)}, nil
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		u, err := url.Parse(ref)
		if err != nil || u.Host == "" {
			return source{}, fmt.Errorf("%w: %s", ErrInvalidLocation, ref)
		}
		return source{kind: "http", url: ref, name: fileName(u.Path)}, nil
	case strings.HasPrefix(ref, "file://"):
		p := strings.TrimPrefix(ref, "file://")
		if unescaped, err := url.PathUnescape(p); err == nil {
			p = unescaped
		}
		return source{kind: "file", path: p, name: fileName(p)}, nil
	}
	return source{kind: "file", path: ref, name: fileName(ref)}, nil
}

func fileName(p string) string {
	base := path.Base(filepath.ToSlash(p))
	if base == "" || base == "." || base == "/" || base == ".." {
		return DefaultName
	}
	return base
}

// Import copies ref into Dir and returns the local path of the copy.
func (im *Importer) Import(ctx context.Context, ref string) (string, error) {
	src, err := parseRef(ref, im.S3Bucket)
	if err != nil {
		return "", err
	}
	if err := im.permit(src); err != nil {
		log.Warn().Err(err).Str("ref", ref).Str("source", src.kind).Msg("pdf import refused")
		mpkg.IncImport(src.kind, "refused")
		return "", err
	}
	dest, err := im.importSource(ctx, src)
	result := "ok"
	if err != nil {
		result = "error"
		log.Warn().Err(err).Str("ref", ref).Str("source", src.kind).Msg("pdf import failed")
	} else {
		log.Info().Str("ref", ref).Str("source", src.kind).Str("file", dest).Msg("pdf imported")
	}
	mpkg.IncImport(src.kind, result)
	return dest, err
}

func (im *Importer) permit(src source) error {
	switch src.kind {
	case "file":
		if !im.AllowLocal {
			return ErrLocalDisabled
		}
	case "http":
		if len(im.AllowedHosts) == 0 {
			return nil
		}
		u, err := url.Parse(src.url)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidLocation, src.url)
		}
		host := strings.ToLower(u.Hostname())
		for _, h := range im.AllowedHosts {
			if strings.EqualFold(strings.TrimSpace(h), host) {
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}
	return nil
}

func (im *Importer) maxBytes() int64 {
	if im.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return im.MaxBytes
}

// copyLimited copies r into w and fails once more than limit bytes arrive.
func copyLimited(w io.Writer, r io.Reader, limit int64) error {
	n, err := io.Copy(w, io.LimitReader(r, limit+1))
	if err != nil {
		return err
	}
	if n > limit {
		return fmt.Errorf("%w of %d bytes", ErrTooLarge, limit)
	}
	return nil
}

// limitedWriterAt refuses writes that end past limit.
type limitedWriterAt struct {
	w     io.WriterAt
	limit int64
}

func (l limitedWriterAt) WriteAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > l.limit {
		return 0, fmt.Errorf("%w of %d bytes", ErrTooLarge, l.limit)
	}
	return l.w.WriteAt(p, off)
}

func (im *Importer) importSource(ctx context.Context, src source) (string, error) {
	if err := os.MkdirAll(im.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create import dir: %w", err)
	}
	dest := filepath.Join(im.Dir, src.name)

	// Importing a file that already sits at the destination only validates it.
	if src.kind == "file" && samePath(src.path, dest) {
		if fi, err := os.Stat(dest); err == nil && fi.Size() > im.maxBytes() {
			return "", fmt.Errorf("%w of %d bytes", ErrTooLarge, im.maxBytes())
		}
		if err := im.check(dest); err != nil {
			return "", err
		}
		return dest, nil
	}

	tmp, err := os.CreateTemp(im.Dir, ".import-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	keep := false
	defer func() {
		if !keep {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := im.fetch(ctx, src, tmp); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := im.check(tmp.Name()); err != nil {
		return "", err
	}

	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("replace %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("move into import dir: %w", err)
	}
	keep = true
	return dest, nil
}

func (im *Importer) fetch(ctx context.Context, src source, w *os.File) error {
	limit := im.maxBytes()
	switch src.kind {
	case "s3":
		if im.S3 == nil {
			return ErrS3Unavailable
		}
		if _, err := im.S3.Download(ctx, limitedWriterAt{w: w, limit: limit}, src.bucket, src.key); err != nil {
			if errors.Is(err, ErrTooLarge) {
				return err
			}
			return fmt.Errorf("download s3://%s/%s: %w", src.bucket, src.key, err)
		}
		return nil
	case "http":
		client := im.HTTPClient
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.url, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidLocation, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("download %s: %w", src.url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("download %s: http %d", src.url, resp.StatusCode)
		}
		if resp.ContentLength > limit {
			return fmt.Errorf("%w of %d bytes", ErrTooLarge, limit)
		}
		if err := copyLimited(w, resp.Body, limit); err != nil {
			return fmt.Errorf("download %s: %w", src.url, err)
		}
		return nil
	default:
		f, err := os.Open(src.path)
		if err != nil {
			return fmt.Errorf("open %s: %w", src.path, err)
		}
		defer f.Close()
		if err := copyLimited(w, f, limit); err != nil {
			return fmt.Errorf("copy %s: %w", src.path, err)
		}
		return nil
	}
}

// check rejects non-PDF content and structurally broken PDFs.
func (im *Importer) check(p string) error {
	det := im.Detector
	if det == nil {
		det = filetype.New()
	}
	ok, info, err := det.IsPDF(p)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotPDF, info.Description)
	}
	if im.Validate == nil {
		return nil
	}
	n, err := im.Validate(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	log.Debug().Str("file", p).Int("pages", n).Msg("pdf structure validated")
	return nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
