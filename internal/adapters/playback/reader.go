package playback

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/karatal/video-quiz-cli/internal/ports"
)

// Reader replays positions from an io.Reader, one float per line.
// Blank lines and lines starting with '#' are skipped; unparseable
// lines are silently dropped. The Positions channel closes at EOF,
// which the agent treats as the source going away.
type Reader struct {
	positions chan float64
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

var _ ports.PlaybackSource = (*Reader)(nil)

func NewReader(r io.Reader) *Reader {
	reader := &Reader{
		positions: make(chan float64),
		done:      make(chan struct{}),
		resume:    make(chan struct{}),
	}
	go reader.run(r)
	return reader
}

func (r *Reader) run(source io.Reader) {
	defer close(r.positions)

	scanner := bufio.NewScanner(source)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		position, err := strconv.ParseFloat(line, 64)
		if err != nil {
			continue
		}

		if !r.waitWhilePaused() {
			return
		}
		select {
		case r.positions <- position:
		case <-r.done:
			return
		}
	}
}

func (r *Reader) waitWhilePaused() bool {
	for {
		r.mu.Lock()
		paused := r.paused
		resume := r.resume
		r.mu.Unlock()
		if !paused {
			return true
		}
		select {
		case <-resume:
		case <-r.done:
			return false
		}
	}
}

func (r *Reader) Positions() <-chan float64 { return r.positions }

func (r *Reader) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = true
}

func (r *Reader) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.paused {
		return
	}
	r.paused = false
	close(r.resume)
	r.resume = make(chan struct{})
}

func (r *Reader) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return nil
}
