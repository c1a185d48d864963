package pdf

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"
)

// PageCache stores extracted page texts by file fingerprint.
// *store.TextCache satisfies it.
type PageCache interface {
	LoadPages(ctx context.Context, fingerprint string) ([]string, bool, error)
	SavePages(ctx context.Context, fingerprint string, pages []string) error
}

// Extractor reads the text of every page of a local PDF.
type Extractor struct {
	Opener Opener
	// Cache is optional. Cache failures are logged and never fail an extraction.
	Cache PageCache
}

func NewExtractor(cache PageCache) *Extractor {
	return &Extractor{Opener: FitzOpener{}, Cache: cache}
}

// Extract returns the document at path. A page whose text cannot be read
// comes back empty.
func (e *Extractor) Extract(ctx context.Context, path string) (*Document, error) {
	fp, err := Fingerprint(path)
	if err != nil {
		return nil, err
	}
	doc := &Document{Name: filepath.Base(path), Path: path, Fingerprint: fp}

	if e.Cache != nil {
		pages, ok, err := e.Cache.LoadPages(ctx, fp)
		if err != nil {
			log.Warn().Err(err).Str("pdf", path).Msg("text cache lookup failed")
		} else if ok {
			log.Debug().Str("pdf", path).Int("pages", len(pages)).Msg("page text served from cache")
			doc.pages = pages
			return doc, nil
		}
	}

	opener := e.Opener
	if opener == nil {
		opener = FitzOpener{}
	}
	start := time.Now()
	d, err := opener.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer d.Close()

	n := d.NumPage()
	doc.pages = make([]string, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := d.Text(i)
		if err != nil {
			log.Warn().Err(err).Int("page", i+1).Str("pdf", path).Msg("failed to extract text from page")
			continue
		}
		doc.pages[i] = text
	}
	log.Info().Str("pdf", path).Int("pages", n).Dur("took", time.Since(start)).Msg("extracted pdf text")

	if e.Cache != nil {
		if err := e.Cache.SavePages(ctx, fp, doc.pages); err != nil {
			log.Warn().Err(err).Str("pdf", path).Msg("text cache store failed")
		}
	}
	return doc, nil
}

// Fingerprint is the hex BLAKE2b-256 digest of the file at path.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash pdf: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
