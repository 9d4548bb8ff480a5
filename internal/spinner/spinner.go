// Package spinner draws a single animated status line on a terminal.
package spinner

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
)

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const interval = 80 * time.Millisecond

// Spinner redraws "<frame> <message>" in place until stopped. The message
// can be replaced while it runs.
type Spinner struct {
	w        io.Writer
	done     chan struct{}
	cleared  chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	message string
	width   int
}

// Start displays an animated spinner with the given message on w.
func Start(w io.Writer, message string) *Spinner {
	s := &Spinner{
		w:       w,
		done:    make(chan struct{}),
		cleared: make(chan struct{}),
		message: message,
	}
	go s.loop()
	return s
}

// Update replaces the message shown on the next frame.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Stop clears the line and returns once the spinner goroutine has exited.
// It is safe to call more than once.
func (s *Spinner) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	<-s.cleared
}

func (s *Spinner) loop() {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case <-s.done:
			s.mu.Lock()
			fmt.Fprintf(s.w, "\r%*s\r", s.width, "") //nolint:errcheck
			s.mu.Unlock()
			close(s.cleared)
			return
		case <-ticker.C:
			s.draw(frames[i%len(frames)])
		}
	}
}

func (s *Spinner) draw(frame string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := frame + " " + s.message
	w := runewidth.StringWidth(line)
	pad := max(s.width-w, 0)
	s.width = max(s.width, w)
	fmt.Fprintf(s.w, "\r%s%*s", line, pad, "") //nolint:errcheck
}
