// Package coordinator owns all durable session, task and connection
// state. It is the single writer: every other component reads through
// bus requests or broadcasts, and every cache mutation happens before
// the broadcast announcing it.
package coordinator

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
	defaultReconnectDelay    = 3 * time.Second
	defaultKeepAliveInterval = 20 * time.Second
	defaultCompletionLinger  = 5 * time.Second
	inboxBuffer              = 32
)

type Config struct {
	Bus     *bus.Bus
	Backend ports.Backend
	Dialer  ports.PushDialer
	States  ports.StateRepository

	// Transport, when set, is bound to this coordinator's session state
	// so every authenticated call picks up the refresh-once policy.
	Transport *AuthTransport

	Clock  ports.Clock
	Logger *slog.Logger

	ReconnectDelay    time.Duration
	KeepAliveInterval time.Duration
	CompletionLinger  time.Duration
}

// Coordinator runs a single-threaded event loop over its bus inbox, the
// push connection's event stream and its timers. Handlers execute
// inline on the loop, which is what makes one writer enough: no cache
// access ever races another.
type Coordinator struct {
	bus     *bus.Bus
	backend ports.Backend
	dialer  ports.PushDialer
	states  ports.StateRepository
	clock   ports.Clock
	logger  *slog.Logger

	reconnectDelay    time.Duration
	keepAliveInterval time.Duration
	completionLinger  time.Duration

	inbox chan bus.Envelope

	state     domain.LocalState
	task      domain.Task
	connState domain.ConnectionState
	connTask  domain.TaskID
	conn      ports.PushConn

	keepAlive      *time.Ticker
	reconnectTimer *time.Timer
	lingerTimer    *time.Timer
}

func New(config Config) *Coordinator {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := config.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}

	c := &Coordinator{
		bus:               config.Bus,
		backend:           config.Backend,
		dialer:            config.Dialer,
		states:            config.States,
		clock:             clock,
		logger:            logger.With("component", "coordinator"),
		reconnectDelay:    durationOr(config.ReconnectDelay, defaultReconnectDelay),
		keepAliveInterval: durationOr(config.KeepAliveInterval, defaultKeepAliveInterval),
		completionLinger:  durationOr(config.CompletionLinger, defaultCompletionLinger),
		inbox:             make(chan bus.Envelope, inboxBuffer),
		connState:         domain.ConnIdle,
	}

	if config.Transport != nil {
		config.Transport.bind(c, c.backend.Refresh)
	}

	c.bus.HandleTopics(c.inbox,
		bus.TopicAuthLogin,
		bus.TopicAuthRegister,
		bus.TopicAuthLogout,
		bus.TopicVideoCheckOrUpload,
		bus.TopicVideoStatus,
		bus.TopicVideoSegments,
		bus.TopicConnConnect,
		bus.TopicConnDisconnect,
		bus.TopicQuizAnswer,
		bus.TopicQuizReview,
		bus.TopicQuizProgress,
		bus.TopicQuizRetake,
		bus.TopicUserStats,
		bus.TopicConfigGet,
		bus.TopicConfigSet,
		bus.TopicStateSnapshot,
	)

	return c
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Run drives the coordinator until ctx is cancelled. It loads persisted
// state first, so requests already queued in the inbox observe a
// resumed session.
func (c *Coordinator) Run(ctx context.Context) error {
	state, err := c.states.Load(ctx)
	if err != nil {
		return err
	}
	c.state = state
	c.ensureStateMaps()
	if task, ok := c.cachedCurrentTask(); ok {
		c.task = task
	}

	defer c.teardownConnection()

	for {
		select {
		case <-ctx.Done():
			return nil
		case envelope := <-c.inbox:
			c.handle(ctx, envelope)
		case event, ok := <-c.events():
			if !ok {
				c.socketClosed()
				continue
			}
			c.handlePush(ctx, event)
		case <-c.keepAliveC():
			c.sendKeepAlive(ctx)
		case <-c.reconnectC():
			c.reconnectTimer = nil
			c.probeAndReconnect(ctx)
		case <-c.lingerC():
			c.lingerTimer = nil
			c.closeAfterLinger()
		}
	}
}

func (c *Coordinator) ensureStateMaps() {
	if c.state.Segments == nil {
		c.state.Segments = make(map[domain.TaskID][]domain.Segment)
	}
	if c.state.Answers == nil {
		c.state.Answers = make(map[domain.QuizID]domain.AnswerRecord)
	}
	if c.state.Settings.Language == "" {
		c.state.Settings.Language = "en"
	}
	if c.state.Settings.Endpoint == "" {
		c.state.Settings.Endpoint = domain.DefaultEndpoint
	}
}

// cachedCurrentTask rebuilds a minimal task from persisted state. The
// cached status may be stale; connect re-probes before trusting it.
func (c *Coordinator) cachedCurrentTask() (domain.Task, bool) {
	if c.state.CurrentTaskID == "" {
		return domain.Task{}, false
	}
	return domain.Task{
		ID:       c.state.CurrentTaskID,
		Status:   domain.TaskStatusPending,
		VideoURL: c.state.VideoURL,
		Language: c.state.Settings.Language,
	}, true
}

func (c *Coordinator) events() <-chan domain.PushEvent {
	if c.conn == nil {
		return nil
	}
	return c.conn.Events()
}

func (c *Coordinator) keepAliveC() <-chan time.Time {
	if c.keepAlive == nil {
		return nil
	}
	return c.keepAlive.C
}

func (c *Coordinator) reconnectC() <-chan time.Time {
	if c.reconnectTimer == nil {
		return nil
	}
	return c.reconnectTimer.C
}

func (c *Coordinator) lingerC() <-chan time.Time {
	if c.lingerTimer == nil {
		return nil
	}
	return c.lingerTimer.C
}

func (c *Coordinator) persist(ctx context.Context) error {
	if err := c.states.Save(ctx, c.state); err != nil {
		c.logger.Error("persist state", "error", err)
		return err
	}
	return nil
}

// sessionHooks implementation for the auth transport.

func (c *Coordinator) accessToken() string {
	return c.state.Session.AccessToken
}

func (c *Coordinator) refreshToken() string {
	return c.state.Session.RefreshToken
}

func (c *Coordinator) replaceSession(session domain.Session) {
	c.state.Session = session
	_ = c.persist(context.Background())
}

// sessionExpired clears the session after a failed refresh. Consumers
// see a logout, not a raw error.
func (c *Coordinator) sessionExpired() {
	c.state.Session = domain.Session{}
	_ = c.persist(context.Background())
	c.bus.Broadcast(bus.EventSessionChanged, domain.Session{})
}

// mapAuthFailure converts backend rejections of credential operations
// into the auth error taxonomy.
func mapAuthFailure(err error) error {
	var backendErr *domain.BackendError
	if errors.As(err, &backendErr) {
		return &domain.AuthError{Message: backendErr.Message}
	}
	if errors.Is(err, domain.ErrUnauthorized) {
		return &domain.AuthError{Message: "invalid credentials"}
	}
	return err
}
