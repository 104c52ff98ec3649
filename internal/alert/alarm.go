// Package alert rings the courier when a delivery becomes available.
package alert

import (
	"fmt"
	"sync"
	"time"

	"ms-delivery/internal/logger"
	"ms-delivery/internal/metrics"
)

type State int

const (
	Idle State = iota
	Ringing
)

func (s State) String() string {
	if s == Ringing {
		return "ringing"
	}
	return "idle"
}

// Sound plays a looping alert until stopped.
type Sound interface {
	Loop() error
	Stop()
}

// Vibrator plays an on/off pattern once.
type Vibrator interface {
	Vibrate(pattern []time.Duration) error
}

// Alarm is the ringing state. Start and Stop are its only mutators.
type Alarm struct {
	Sound    Sound
	Vibrator Vibrator
	Pattern  []time.Duration
	Logger   *logger.Logger

	mu    sync.Mutex
	state State
}

func NewAlarm(sound Sound, vibrator Vibrator, pattern []time.Duration, log *logger.Logger) *Alarm {
	return &Alarm{Sound: sound, Vibrator: vibrator, Pattern: pattern, Logger: log}
}

// Start rings. It is a no-op while already ringing. Device failures are
// logged; the alarm still counts as ringing so Stop stays meaningful.
func (a *Alarm) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == Ringing {
		return
	}
	a.state = Ringing
	metrics.AlarmsStartedTotal.Inc()
	a.Logger.LogAlarm("START", "new delivery available")

	if a.Sound != nil {
		if err := a.Sound.Loop(); err != nil {
			a.Logger.Warn("ALARM", fmt.Sprintf("Sound failed: %v", err))
		}
	}
	if a.Vibrator != nil && len(a.Pattern) > 0 {
		if err := a.Vibrator.Vibrate(a.Pattern); err != nil {
			a.Logger.Warn("ALARM", fmt.Sprintf("Vibration failed: %v", err))
		}
	}
}

func (a *Alarm) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == Idle {
		return
	}
	a.state = Idle
	if a.Sound != nil {
		a.Sound.Stop()
	}
	a.Logger.LogAlarm("STOP", "silenced")
}

func (a *Alarm) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Alarm) IsRinging() bool {
	return a.State() == Ringing
}
