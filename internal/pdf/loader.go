package pdf

import (
	"context"
)

// Loader imports a referenced PDF and extracts its text.
type Loader struct {
	Importer  *Importer
	Extractor *Extractor
}

func (l *Loader) Load(ctx context.Context, ref string) (*Document, error) {
	p, err := l.Importer.Import(ctx, ref)
	if err != nil {
		return nil, err
	}
	return l.Extractor.Extract(ctx, p)
}
