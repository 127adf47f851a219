// Package agent watches playback and decides when the quiz surface
// appears. It owns no durable state: segments come from coordinator
// broadcasts and snapshots, and everything it tracks (position, active
// segment, trigger memory) is discarded when the playback source or the
// task changes.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/karatal/video-quiz-cli/internal/bus"
	"github.com/karatal/video-quiz-cli/internal/domain"
	"github.com/karatal/video-quiz-cli/internal/ports"
)

const (
	defaultThrottle       = 250 * time.Millisecond
	defaultDetectInterval = 500 * time.Millisecond
	defaultEarly          = 3 * time.Second
	defaultLate           = 3 * time.Second
)

var errSourceLost = errors.New("agent: playback source lost")

// DetectFunc locates the current playback source. It is polled until it
// returns one, mirroring a video element that may not exist yet while
// the page is still navigating.
type DetectFunc func(ctx context.Context) (ports.PlaybackSource, error)

type Config struct {
	Bus     *bus.Bus
	Detect  DetectFunc
	Overlay ports.QuizOverlay
	Clock   ports.Clock
	Logger  *slog.Logger

	// Throttle bounds recompute work: at most one position is processed
	// per window no matter how fast the source emits.
	Throttle       time.Duration
	DetectInterval time.Duration

	// Early and Late bound the auto-open window around a segment's end:
	// [max(start, end-Early), end+Late].
	Early time.Duration
	Late  time.Duration
}

type command int

const (
	cmdOpenQuiz command = iota
	cmdCloseQuiz
)

type Agent struct {
	bus     *bus.Bus
	detect  DetectFunc
	overlay ports.QuizOverlay
	clock   ports.Clock
	logger  *slog.Logger

	throttle       time.Duration
	detectInterval time.Duration
	early          time.Duration
	late           time.Duration

	cmds chan command

	// Loop-owned state. Touched only from Run's goroutine.
	source    ports.PlaybackSource
	taskID    domain.TaskID
	segments  domain.SegmentList
	triggered map[domain.SegmentID]struct{}
	activeID  domain.SegmentID
	lastTick  time.Time

	affordanceVisible bool
	affordanceID      domain.SegmentID
}

func New(config Config) *Agent {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := config.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Agent{
		bus:            config.Bus,
		detect:         config.Detect,
		overlay:        config.Overlay,
		clock:          clock,
		logger:         logger.With("component", "agent"),
		throttle:       durationOr(config.Throttle, defaultThrottle),
		detectInterval: durationOr(config.DetectInterval, defaultDetectInterval),
		early:          durationOr(config.Early, defaultEarly),
		late:           durationOr(config.Late, defaultLate),
		cmds:           make(chan command, 8),
	}
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// OpenQuiz requests a manual overlay open for the active segment. Manual
// opens are allowed even for segments the auto-trigger already fired on.
func (a *Agent) OpenQuiz(ctx context.Context) error {
	select {
	case a.cmds <- cmdOpenQuiz:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseQuiz requests the overlay be dismissed and playback resumed. Safe
// to call when nothing is showing.
func (a *Agent) CloseQuiz(ctx context.Context) error {
	select {
	case a.cmds <- cmdCloseQuiz:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the agent until ctx is cancelled: find a playback source,
// follow it until it goes away, then look for a fresh one.
func (a *Agent) Run(ctx context.Context) error {
	events, unsubscribe := a.bus.Subscribe(64)
	defer unsubscribe()

	a.seed(ctx)

	for {
		source, err := a.waitForSource(ctx, events)
		if err != nil {
			return nil
		}
		a.attach(source)

		err = a.follow(ctx, events)
		a.detach()
		if !errors.Is(err, errSourceLost) {
			return nil
		}
		a.logger.Info("playback source lost, watching for a new one")
	}
}

// seed pulls the coordinator's snapshot so segments that arrived before
// the agent started are not missed.
func (a *Agent) seed(ctx context.Context) {
	requestCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	payload, err := a.bus.Request(requestCtx, bus.TopicStateSnapshot, nil)
	if err != nil {
		a.logger.Debug("snapshot seed failed", "error", err)
		return
	}
	snapshot := payload.(bus.Snapshot)
	a.taskID = snapshot.Task.ID
	a.segments = domain.NewSegmentList(snapshot.Segments...)
}

func (a *Agent) waitForSource(ctx context.Context, events <-chan bus.Event) (ports.PlaybackSource, error) {
	if source, err := a.detect(ctx); err == nil && source != nil {
		return source, nil
	}

	ticker := time.NewTicker(a.detectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			source, err := a.detect(ctx)
			if err != nil || source == nil {
				continue
			}
			return source, nil
		case event := <-events:
			a.applyEvent(event)
		}
	}
}

// attach binds a fresh source. Trigger memory and the active-segment
// pointer belong to one attachment; a new source starts clean so a
// rewatched video can auto-open again.
func (a *Agent) attach(source ports.PlaybackSource) {
	a.source = source
	a.triggered = make(map[domain.SegmentID]struct{})
	a.activeID = 0
	a.lastTick = time.Time{}
	a.setAffordance(false, 0)
}

func (a *Agent) detach() {
	if a.source != nil {
		_ = a.source.Close()
		a.source = nil
	}
	if a.overlay.Visible() {
		a.overlay.Close()
	}
	a.setAffordance(false, 0)
}

func (a *Agent) follow(ctx context.Context, events <-chan bus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case position, ok := <-a.source.Positions():
			if !ok {
				return errSourceLost
			}
			a.onPosition(ctx, position)
		case event := <-events:
			a.applyEvent(event)
		case cmd := <-a.cmds:
			switch cmd {
			case cmdOpenQuiz:
				a.manualOpen(ctx)
			case cmdCloseQuiz:
				a.closeOverlay()
			}
		}
	}
}

func (a *Agent) applyEvent(event bus.Event) {
	switch event.Topic {
	case bus.EventSegmentReady:
		ready := event.Payload.(bus.SegmentReady)
		if a.taskID == "" {
			a.taskID = ready.TaskID
		}
		if ready.TaskID != a.taskID {
			return
		}
		a.segments.Append(ready.Segment)
	case bus.EventTaskChanged:
		task := event.Payload.(domain.Task)
		if task.ID == a.taskID {
			return
		}
		// New video: everything position-derived is stale.
		a.taskID = task.ID
		a.segments = domain.SegmentList{}
		a.triggered = make(map[domain.SegmentID]struct{})
		a.activeID = 0
		if a.overlay.Visible() {
			a.closeOverlay()
		}
		a.setAffordance(false, 0)
	}
}

// onPosition is the throttled recompute: active segment, affordance
// visibility, then the auto-open decision.
func (a *Agent) onPosition(ctx context.Context, position float64) {
	now := a.clock.Now()
	if !a.lastTick.IsZero() && now.Sub(a.lastTick) < a.throttle {
		return
	}
	a.lastTick = now

	active, inSegment := a.segments.ActiveAt(position)
	if inSegment {
		a.activeID = active.ID
	} else {
		a.activeID = 0
	}
	a.setAffordance(inSegment, a.activeID)

	if a.overlay.Visible() {
		return
	}
	segment, ok := a.autoOpenCandidate(position)
	if !ok {
		return
	}
	a.openOverlay(ctx, segment, true)
}

// autoOpenCandidate returns the first segment (in arrival order) whose
// auto-open window contains position and which has not auto-opened yet.
// The window stretches past the segment's end, so the candidate is not
// necessarily the active segment.
func (a *Agent) autoOpenCandidate(position float64) (domain.Segment, bool) {
	for _, segment := range a.segments.All() {
		if _, done := a.triggered[segment.ID]; done {
			continue
		}
		from, to := segment.AutoOpenWindow(a.early, a.late)
		if position >= from && position <= to {
			return segment, true
		}
	}
	return domain.Segment{}, false
}

func (a *Agent) manualOpen(ctx context.Context) {
	if a.activeID == 0 {
		a.logger.Debug("manual open with no active segment")
		return
	}
	segment, ok := a.segments.ByID(a.activeID)
	if !ok {
		a.logger.Debug("active segment vanished", "segment_id", int64(a.activeID))
		return
	}
	a.openOverlay(ctx, segment, false)
}

// openOverlay pauses playback, fetches the segment's review so answered
// quizzes render disabled, and shows the surface. For auto opens the
// trigger memory insert is the first thing that happens: once a tick
// commits to opening, no later tick can open the same segment again,
// regardless of how long the review fetch takes.
func (a *Agent) openOverlay(ctx context.Context, segment domain.Segment, auto bool) {
	if auto {
		a.triggered[segment.ID] = struct{}{}
	}

	if a.source != nil {
		a.source.Pause()
	}

	review := a.fetchReview(ctx, segment.ID)
	if err := a.overlay.Open(ctx, segment, review); err != nil {
		a.logger.Warn("overlay open failed", "segment_id", int64(segment.ID), "error", err)
		if a.source != nil {
			a.source.Resume()
		}
		return
	}
	a.bus.Broadcast(bus.EventOverlay, bus.Overlay{
		SegmentID: segment.ID,
		Visible:   true,
		Auto:      auto,
		Segment:   segment,
		Review:    review,
	})
}

// fetchReview degrades to an empty review on any failure. A transient
// read error must never hold playback paused without a quiz on screen.
func (a *Agent) fetchReview(ctx context.Context, id domain.SegmentID) []domain.ReviewItem {
	requestCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	payload, err := a.bus.Request(requestCtx, bus.TopicQuizReview, bus.SegmentRef{SegmentID: id})
	if err != nil {
		a.logger.Debug("review fetch failed, opening without it", "segment_id", int64(id), "error", err)
		return nil
	}
	review, _ := payload.([]domain.ReviewItem)
	return review
}

func (a *Agent) closeOverlay() {
	a.overlay.Close()
	if a.source != nil {
		a.source.Resume()
	}
	a.bus.Broadcast(bus.EventOverlay, bus.Overlay{Visible: false})
}

func (a *Agent) setAffordance(visible bool, id domain.SegmentID) {
	if visible == a.affordanceVisible && id == a.affordanceID {
		return
	}
	a.affordanceVisible = visible
	a.affordanceID = id
	a.bus.Broadcast(bus.EventAffordance, bus.Affordance{SegmentID: id, Visible: visible})
}
