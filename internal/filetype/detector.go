package filetype

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

const pdfMIME = "application/pdf"

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Supported   bool
	Description string
}

// Detector identifies files by magic bytes, not by name.
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect sniffs the file at filePath.
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	d.classify(info, mtype)
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Str("file", filePath).Msg("detected file type")
	return info, nil
}

// classify marks which types can be opened as a chat document.
func (d *Detector) classify(info *FileTypeInfo, mtype *mimetype.MIME) {
	switch {
	case mtype.Is(pdfMIME):
		info.Supported = true
		info.Description = "PDF document"
	case strings.HasPrefix(info.MIMEType, "text/html"):
		info.Description = "HTML page, not a PDF"
	case strings.HasPrefix(info.MIMEType, "text/"):
		info.Description = "Plain text file, not a PDF"
	case strings.HasPrefix(info.MIMEType, "image/"):
		info.Description = "Image file, not a PDF"
	default:
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}

// IsPDF reports whether the file at filePath is a PDF by content.
func (d *Detector) IsPDF(filePath string) (bool, *FileTypeInfo, error) {
	info, err := d.Detect(filePath)
	if err != nil {
		return false, nil, err
	}
	return info.Supported, info, nil
}
