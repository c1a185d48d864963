package cli

import (
	"github.com/atotto/clipboard"
	"github.com/rs/zerolog/log"
)

// SystemClipboard writes copied messages to the OS clipboard.
type SystemClipboard struct{}

func (SystemClipboard) Copy(text string) {
	if err := clipboard.WriteAll(text); err != nil {
		log.Warn().Err(err).Msg("clipboard unavailable")
	}
}

// Available reports whether the OS clipboard can be used.
func (SystemClipboard) Available() bool { return !clipboard.Unsupported }
