package alert

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	bannerColor  = color.New(color.FgHiWhite, color.BgRed, color.Bold)
	vibrateColor = color.New(color.FgYellow)
)

// TerminalSound rings the terminal bell with a banner every Interval until
// stopped.
type TerminalSound struct {
	Out      io.Writer
	Interval time.Duration
	Message  string

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewTerminalSound(out io.Writer, interval time.Duration) *TerminalSound {
	return &TerminalSound{Out: out, Interval: interval, Message: "NOVO PEDIDO PARA ENTREGA"}
}

func (s *TerminalSound) Loop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}
	if s.Interval <= 0 {
		return fmt.Errorf("invalid alarm interval %s", s.Interval)
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.ring(s.stop, s.done)
	return nil
}

func (s *TerminalSound) ring(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		fmt.Fprint(s.Out, "\a")
		bannerColor.Fprintf(s.Out, " %s ", s.Message)
		fmt.Fprintln(s.Out)
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// Stop waits for the ring goroutine so nothing is written afterwards.
func (s *TerminalSound) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// TerminalVibrator renders the pattern as on/off blocks.
type TerminalVibrator struct {
	Out io.Writer
}

func (v TerminalVibrator) Vibrate(pattern []time.Duration) error {
	var b strings.Builder
	for i, d := range pattern {
		n := int(d / (100 * time.Millisecond))
		if n < 1 {
			n = 1
		}
		if i%2 == 0 {
			b.WriteString(strings.Repeat("▮", n))
		} else {
			b.WriteString(strings.Repeat(" ", n))
		}
	}
	_, err := vibrateColor.Fprintln(v.Out, b.String())
	return err
}
