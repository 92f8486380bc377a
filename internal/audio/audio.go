// Package audio plays short generated tones as feedback during installation.
package audio

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"

	"github.com/distantorigin/noobcraft-installer/internal/install"
)

// Cue names.
const (
	Start   = "start"
	Select  = "select"
	Success = "success"
	Error   = "error"
)

// SampleRate is the rate tones are generated at.
const SampleRate = beep.SampleRate(44100)

type note struct {
	freq float64 // Hz, 0 for a rest
	dur  time.Duration
}

var cues = map[string][]note{
	Start:   {{523.25, 90 * time.Millisecond}, {659.25, 90 * time.Millisecond}},
	Select:  {{880, 40 * time.Millisecond}},
	Success: {{523.25, 100 * time.Millisecond}, {659.25, 100 * time.Millisecond}, {783.99, 180 * time.Millisecond}},
	Error:   {{311.13, 150 * time.Millisecond}, {0, 40 * time.Millisecond}, {233.08, 250 * time.Millisecond}},
}

// Player plays cues through the speaker.
type Player struct {
	Quiet bool
	// Volume in the beep sense: 0 is unchanged, -1 halves.
	Volume float64
	Logger *slog.Logger

	output func(s beep.Streamer, wait bool) error
}

// New creates a player using the system speaker where one is supported.
func New(quiet bool, logger *slog.Logger) *Player {
	return &Player{Quiet: quiet, Volume: -2, Logger: logger, output: speakerOutput}
}

// Tone builds the streamer for a cue.
func Tone(name string, volume float64) (beep.Streamer, error) {
	notes, ok := cues[name]
	if !ok {
		return nil, fmt.Errorf("unknown cue %q", name)
	}
	parts := make([]beep.Streamer, 0, len(notes))
	for _, n := range notes {
		samples := SampleRate.N(n.dur)
		if n.freq == 0 {
			parts = append(parts, beep.Silence(samples))
			continue
		}
		sine, err := generators.SineTone(SampleRate, n.freq)
		if err != nil {
			return nil, fmt.Errorf("failed to generate %q: %w", name, err)
		}
		parts = append(parts, beep.Take(samples, sine))
	}
	return &effects.Volume{Streamer: beep.Seq(parts...), Base: 2, Volume: volume}, nil
}

// Play plays a cue and waits for it to finish.
func (p *Player) Play(name string) {
	p.play(name, true)
}

// PlayAsync starts a cue and returns immediately.
func (p *Player) PlayAsync(name string) {
	p.play(name, false)
}

func (p *Player) play(name string, wait bool) {
	if p == nil || p.Quiet || p.output == nil {
		return
	}
	s, err := Tone(name, p.Volume)
	if err == nil {
		err = p.output(s, wait)
	}
	if err != nil && p.Logger != nil {
		p.Logger.Debug("Sound unavailable", "cue", name, "error", err)
	}
}

// Event plays the cue matching an installer step transition.
func (p *Player) Event(e install.Event) {
	switch {
	case e.Kind == install.StepFailed:
		p.Play(Error)
	case e.State == install.Done && e.Kind == install.StepSucceeded:
		p.Play(Success)
	case e.State == install.CheckRequirements && e.Kind == install.StepStarted:
		p.PlayAsync(Start)
	case e.Kind == install.StepSucceeded:
		p.PlayAsync(Select)
	}
}
