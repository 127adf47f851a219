// Package playback provides the playback sources the agent can follow:
// a simulated real-time clock and a scripted reader, both implementing
// ports.PlaybackSource.
package playback

import (
	"sync"
	"time"

	"github.com/karatal/video-quiz-cli/internal/ports"
)

const defaultClockInterval = 500 * time.Millisecond

type ClockConfig struct {
	// Interval is how often a position is emitted while playing.
	Interval time.Duration
	// Start is the initial position in seconds.
	Start float64
}

// Clock simulates playback in real time: while playing, the position
// advances with the wall clock and is emitted once per interval. Pause
// freezes it, Seek jumps it.
type Clock struct {
	interval  time.Duration
	positions chan float64
	cmds      chan clockCmd
	done      chan struct{}
	closeOnce sync.Once
}

type clockCmdKind int

const (
	clockPause clockCmdKind = iota
	clockResume
	clockSeek
)

type clockCmd struct {
	kind clockCmdKind
	to   float64
}

var _ ports.PlaybackSource = (*Clock)(nil)

func NewClock(config ClockConfig) *Clock {
	interval := config.Interval
	if interval <= 0 {
		interval = defaultClockInterval
	}
	c := &Clock{
		interval:  interval,
		positions: make(chan float64, 16),
		cmds:      make(chan clockCmd, 8),
		done:      make(chan struct{}),
	}
	go c.run(config.Start)
	return c
}

func (c *Clock) run(position float64) {
	defer close(c.positions)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	playing := true
	last := time.Now()

	for {
		select {
		case <-c.done:
			return
		case cmd := <-c.cmds:
			switch cmd.kind {
			case clockPause:
				if playing {
					position += time.Since(last).Seconds()
					playing = false
				}
			case clockResume:
				if !playing {
					playing = true
					last = time.Now()
				}
			case clockSeek:
				position = cmd.to
				last = time.Now()
				c.emit(position)
			}
		case <-ticker.C:
			if !playing {
				continue
			}
			now := time.Now()
			position += now.Sub(last).Seconds()
			last = now
			c.emit(position)
		}
	}
}

// emit never blocks: a consumer that stopped reading loses ticks, not
// the clock goroutine.
func (c *Clock) emit(position float64) {
	select {
	case c.positions <- position:
	default:
	}
}

func (c *Clock) Positions() <-chan float64 { return c.positions }

func (c *Clock) Pause() {
	select {
	case c.cmds <- clockCmd{kind: clockPause}:
	case <-c.done:
	}
}

func (c *Clock) Resume() {
	select {
	case c.cmds <- clockCmd{kind: clockResume}:
	case <-c.done:
	}
}

func (c *Clock) Seek(to float64) {
	select {
	case c.cmds <- clockCmd{kind: clockSeek, to: to}:
	case <-c.done:
	}
}

func (c *Clock) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
