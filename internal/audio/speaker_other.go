//go:build !windows && !darwin

package audio

import (
	"errors"

	"github.com/gopxl/beep"
)

var errNoSpeaker = errors.New("no audio output on this platform")

func speakerOutput(beep.Streamer, bool) error {
	return errNoSpeaker
}
