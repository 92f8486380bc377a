//go:build windows || darwin

package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

var (
	speakerOnce sync.Once
	speakerErr  error
)

func speakerOutput(s beep.Streamer, wait bool) error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(SampleRate, SampleRate.N(time.Second/10))
	})
	if speakerErr != nil {
		return speakerErr
	}

	if !wait {
		speaker.Play(s)
		return nil
	}
	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))
	<-done
	return nil
}
