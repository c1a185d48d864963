// Package app assembles the collaborators shared by the HTTP service and the
// terminal front end.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfchat/internal/chat"
	"github.com/local/pdfchat/internal/completion"
	cfgpkg "github.com/local/pdfchat/internal/config"
	"github.com/local/pdfchat/internal/limiter"
	logpkg "github.com/local/pdfchat/internal/logger"
	"github.com/local/pdfchat/internal/pdf"
	"github.com/local/pdfchat/internal/statuscheck"
	"github.com/local/pdfchat/internal/store"
)

// Deps holds the wired dependencies. Optional parts are nil when disabled.
type Deps struct {
	Client    *completion.Client
	Completer chat.Completer
	Breaker   *limiter.Breaker
	Loader    *pdf.Loader
	Cache     *store.TextCache
	S3        *s3.Client
	Health    *statuscheck.Checker
}

// InitLogging configures the global logger from cfg.
func InitLogging(cfg cfgpkg.Config, opts logpkg.Options) error {
	opts.Level = cfg.Logging.Level
	opts.Pretty = cfg.Logging.Pretty
	opts.File = cfg.Logging.File
	opts.MaxSizeMB = cfg.Logging.MaxSizeMB
	opts.MaxBackups = cfg.Logging.MaxBackups
	opts.MaxAgeDays = cfg.Logging.MaxAgeDays
	opts.Compress = cfg.Logging.Compress
	opts.SendToAxiom = cfg.Axiom.Send && cfg.Axiom.APIKey != ""
	opts.AxiomAPIKey = cfg.Axiom.APIKey
	opts.AxiomOrgID = cfg.Axiom.OrgID
	opts.AxiomDataset = cfg.Axiom.Dataset
	opts.AxiomFlush = cfg.Axiom.FlushInterval
	return logpkg.Init(opts)
}

// Build wires the completion client, PDF loading and health checks. Redis and
// S3 failures disable those features instead of failing startup.
func Build(ctx context.Context, cfg cfgpkg.Config) *Deps {
	d := &Deps{}

	d.Client = completion.NewClient(completion.Options{
		BaseURL:         cfg.Completion.BaseURL,
		APIKey:          cfg.Completion.APIKey,
		ModelURI:        cfg.Completion.ModelURI,
		RequestTimeout:  cfg.Completion.RequestTimeout,
		ResourceTimeout: cfg.Completion.ResourceTimeout,
	})
	d.Breaker = limiter.NewBreaker(cfg.Completion.BreakerThreshold, cfg.Completion.BreakerBackoff, cfg.Completion.BreakerMaxBackoff)
	d.Completer = d.Breaker.Wrap(limiter.New(cfg.Completion.MaxInflight).Wrap(d.Client))
	if cfg.Completion.APIKey == "" {
		log.Warn().Msg("YANDEX_API_KEY is not set; completion requests will be rejected")
	}

	if cfg.Cache.Enabled {
		cache, err := store.NewTextCache(cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			log.Warn().Err(err).Msg("text cache disabled")
		} else {
			d.Cache = cache
		}
	}

	importer := pdf.NewImporter(cfg.Import.Dir)
	importer.HTTPClient = &http.Client{Timeout: cfg.Import.HTTPTimeout}
	importer.S3Bucket = cfg.Import.S3Bucket
	importer.AllowLocal = cfg.Import.AllowLocal
	importer.AllowedHosts = cfg.Import.AllowedHosts
	importer.MaxBytes = cfg.Import.MaxBytes
	s3Client, err := pdf.NewS3Client(ctx, pdf.S3Options{
		Region:    cfg.Import.AWSRegion,
		AccessKey: cfg.Import.AWSAccessKey,
		SecretKey: cfg.Import.AWSSecretKey,
	})
	if err != nil {
		log.Warn().Err(err).Msg("s3 documents disabled")
	} else {
		d.S3 = s3Client
		importer.S3 = pdf.NewS3Downloader(s3Client)
	}
	if n := pdf.CleanupStaleImports(cfg.Import.Dir, time.Hour); n > 0 {
		log.Info().Int("removed", n).Str("dir", cfg.Import.Dir).Msg("removed stale import files")
	}

	extractor := pdf.NewExtractor(nil)
	if d.Cache != nil {
		extractor.Cache = d.Cache
	}
	d.Loader = &pdf.Loader{Importer: importer, Extractor: extractor}

	hopts := statuscheck.Options{
		S3Bucket:  cfg.Import.S3Bucket,
		APIKey:    cfg.Completion.APIKey,
		ModelURI:  cfg.Completion.ModelURI,
		ImportDir: cfg.Import.Dir,
		Breaker:   d.Breaker,
	}
	if d.Cache != nil {
		hopts.Redis = d.Cache
	}
	if d.S3 != nil {
		hopts.S3 = d.S3
	}
	d.Health = statuscheck.New(hopts)
	return d
}

func (d *Deps) Close() {
	if d.Cache != nil {
		_ = d.Cache.Close()
	}
}
