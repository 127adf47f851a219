package coordinator

import (
	"context"
	"fmt"

	"github.com/karatal/video-quiz-cli/internal/bus"
	"github.com/karatal/video-quiz-cli/internal/domain"
	"github.com/karatal/video-quiz-cli/internal/ports"
)

func (c *Coordinator) handle(ctx context.Context, envelope bus.Envelope) {
	payload, err := c.dispatch(ctx, envelope)
	if err != nil {
		c.logger.Debug("request failed", "topic", envelope.Topic, "error", err)
	}
	envelope.Respond(payload, err)
}

func (c *Coordinator) dispatch(ctx context.Context, envelope bus.Envelope) (any, error) {
	switch envelope.Topic {
	case bus.TopicAuthLogin:
		request, err := payloadAs[bus.Credentials](envelope)
		if err != nil {
			return nil, err
		}
		return c.handleLogin(ctx, request, false)
	case bus.TopicAuthRegister:
		request, err := payloadAs[bus.Credentials](envelope)
		if err != nil {
			return nil, err
		}
		return c.handleLogin(ctx, request, true)
	case bus.TopicAuthLogout:
		return c.handleLogout(ctx)
	case bus.TopicVideoCheckOrUpload:
		request, err := payloadAs[bus.CheckOrUpload](envelope)
		if err != nil {
			return nil, err
		}
		return c.handleCheckOrUpload(ctx, request)
	case bus.TopicVideoStatus:
		request, err := payloadAs[bus.TaskRef](envelope)
		if err != nil {
			return nil, err
		}
		return c.handleStatus(ctx, request)
	case bus.TopicVideoSegments:
		request, err := payloadAs[bus.TaskRef](envelope)
		if err != nil {
			return nil, err
		}
		return c.handleSegments(ctx, request)
	case bus.TopicConnConnect:
		request, err := payloadAs[bus.Connect](envelope)
		if err != nil {
			return nil, err
		}
		return nil, c.connect(ctx, request.TaskID)
	case bus.TopicConnDisconnect:
		return c.handleDisconnect()
	case bus.TopicQuizAnswer:
		request, err := payloadAs[bus.SubmitAnswer](envelope)
		if err != nil {
			return nil, err
		}
		return c.handleAnswer(ctx, request)
	case bus.TopicQuizReview:
		request, err := payloadAs[bus.SegmentRef](envelope)
		if err != nil {
			return nil, err
		}
		return c.backend.SegmentReview(ctx, request.SegmentID)
	case bus.TopicQuizProgress:
		request, err := payloadAs[bus.SegmentRef](envelope)
		if err != nil {
			return nil, err
		}
		return c.backend.SegmentProgress(ctx, request.SegmentID)
	case bus.TopicQuizRetake:
		request, err := payloadAs[bus.SegmentRef](envelope)
		if err != nil {
			return nil, err
		}
		return nil, c.backend.RetakeSegment(ctx, request.SegmentID)
	case bus.TopicUserStats:
		return c.backend.UserStats(ctx)
	case bus.TopicConfigGet:
		return c.state.Settings, nil
	case bus.TopicConfigSet:
		request, err := payloadAs[domain.Settings](envelope)
		if err != nil {
			return nil, err
		}
		return c.handleConfigSet(ctx, request)
	case bus.TopicStateSnapshot:
		return c.snapshot(), nil
	default:
		return nil, fmt.Errorf("coordinator: unexpected topic %q", envelope.Topic)
	}
}

func payloadAs[T any](envelope bus.Envelope) (T, error) {
	payload, ok := envelope.Payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("coordinator: %s: unexpected payload %T", envelope.Topic, envelope.Payload)
	}
	return payload, nil
}

func (c *Coordinator) handleLogin(ctx context.Context, request bus.Credentials, register bool) (domain.Session, error) {
	var session domain.Session
	var err error
	if register {
		session, err = c.backend.Register(ctx, request.Email, request.Password)
	} else {
		session, err = c.backend.Login(ctx, request.Email, request.Password)
	}
	if err != nil {
		return domain.Session{}, mapAuthFailure(err)
	}

	c.state.Session = session
	if err := c.persist(ctx); err != nil {
		return domain.Session{}, err
	}
	c.bus.Broadcast(bus.EventSessionChanged, session)
	return session, nil
}

func (c *Coordinator) handleLogout(ctx context.Context) (any, error) {
	c.teardownConnection()
	c.setConnState(c.connTask, domain.ConnClosed)

	c.state.Session = domain.Session{}
	if err := c.persist(ctx); err != nil {
		return nil, err
	}
	c.bus.Broadcast(bus.EventSessionChanged, domain.Session{})
	return nil, nil
}

// handleCheckOrUpload resolves a video to a task, reusing the backend's
// existing task when one is known for this (url, language) pair, then
// binds it as the current task and opens its push connection.
func (c *Coordinator) handleCheckOrUpload(ctx context.Context, request bus.CheckOrUpload) (domain.Task, error) {
	language := request.Language
	if language == "" {
		language = c.state.Settings.Language
	}

	check, err := c.backend.CheckVideo(ctx, request.URL, language)
	if err != nil {
		return domain.Task{}, err
	}

	taskID := check.TaskID
	if !check.Exists {
		upload, err := c.backend.UploadVideo(ctx, request.URL, language)
		if err != nil {
			return domain.Task{}, err
		}
		taskID = upload.TaskID
	}

	if taskID != c.state.CurrentTaskID {
		// Previous task's connection and timers must be fully gone
		// before the new task's state is bound.
		c.teardownConnection()
		c.connState = domain.ConnIdle
		c.connTask = ""

		c.state.CurrentTaskID = taskID
		c.state.VideoURL = request.URL
		c.task = domain.Task{
			ID:       taskID,
			Status:   domain.TaskStatusPending,
			VideoURL: request.URL,
			Language: language,
		}
		if err := c.persist(ctx); err != nil {
			return domain.Task{}, err
		}
		c.bus.Broadcast(bus.EventTaskChanged, c.task)
	}

	if err := c.connect(ctx, taskID); err != nil {
		// The task is bound even when the first dial fails; reconnect
		// policy takes it from here.
		c.logger.Warn("initial connect failed", "task_id", string(taskID), "error", err)
	}
	return c.task, nil
}

func (c *Coordinator) handleStatus(ctx context.Context, request bus.TaskRef) (domain.Task, error) {
	taskID := request.TaskID
	if taskID == "" {
		taskID = c.state.CurrentTaskID
	}
	if taskID == "" {
		return domain.Task{}, domain.ErrNoCurrentTask
	}

	task, err := c.backend.TaskStatus(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	c.applyTaskUpdate(task)
	return c.currentTaskOr(task), nil
}

func (c *Coordinator) handleSegments(ctx context.Context, request bus.TaskRef) (ports.SegmentsResult, error) {
	taskID := request.TaskID
	if taskID == "" {
		taskID = c.state.CurrentTaskID
	}
	if taskID == "" {
		return ports.SegmentsResult{}, domain.ErrNoCurrentTask
	}

	result, err := c.backend.Segments(ctx, taskID)
	if err != nil {
		// Degraded pull path: serve the cache rather than fail hard.
		if cached, ok := c.state.Segments[taskID]; ok {
			c.logger.Debug("segments pull failed, serving cache", "task_id", string(taskID), "error", err)
			return ports.SegmentsResult{TaskID: taskID, Status: c.task.Status, Segments: cached}, nil
		}
		return ports.SegmentsResult{}, err
	}

	c.mergeSegments(ctx, taskID, result.Segments)
	c.applyTaskUpdate(domain.Task{ID: taskID, Status: result.Status})

	return ports.SegmentsResult{
		TaskID:   taskID,
		Status:   result.Status,
		Segments: c.state.Segments[taskID],
	}, nil
}

// mergeSegments appends pull-fetched segments the cache has not seen.
// Push-delivered segments keep their arrival order; the pull path only
// fills gaps, it never reorders.
func (c *Coordinator) mergeSegments(ctx context.Context, taskID domain.TaskID, segments []domain.Segment) {
	known := make(map[domain.SegmentID]struct{}, len(c.state.Segments[taskID]))
	for _, segment := range c.state.Segments[taskID] {
		known[segment.ID] = struct{}{}
	}

	appended := false
	for _, segment := range segments {
		if _, ok := known[segment.ID]; ok {
			continue
		}
		c.state.Segments[taskID] = append(c.state.Segments[taskID], segment)
		known[segment.ID] = struct{}{}
		appended = true
	}
	if appended {
		_ = c.persist(ctx)
	}
}

func (c *Coordinator) handleAnswer(ctx context.Context, request bus.SubmitAnswer) (domain.AnswerResult, error) {
	result, err := c.backend.SubmitAnswer(ctx, request.QuizID, request.SelectedIndex)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	c.state.Answers[request.QuizID] = domain.AnswerRecord{
		QuizID:        request.QuizID,
		SelectedIndex: request.SelectedIndex,
		IsCorrect:     result.IsCorrect,
		AnsweredAt:    c.clock.Now(),
	}
	_ = c.persist(ctx)
	return result, nil
}

func (c *Coordinator) handleDisconnect() (any, error) {
	c.teardownConnection()
	c.setConnState(c.connTask, domain.ConnClosed)
	return nil, nil
}

// handleConfigSet persists the new settings before acknowledging, so
// consumers only echo state the coordinator has durably accepted.
func (c *Coordinator) handleConfigSet(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	if settings.Language == "" {
		settings.Language = c.state.Settings.Language
	}
	if settings.Endpoint == "" {
		settings.Endpoint = c.state.Settings.Endpoint
	}

	c.state.Settings = settings
	if err := c.persist(ctx); err != nil {
		return domain.Settings{}, err
	}
	c.bus.Broadcast(bus.EventSettings, settings)
	return settings, nil
}

func (c *Coordinator) snapshot() bus.Snapshot {
	snapshot := bus.Snapshot{
		Session:  c.state.Session,
		Settings: c.state.Settings,
		Task:     c.task,
		Connection: domain.ConnectionStatus{
			State:  c.connState,
			TaskID: c.connTask,
		},
		Answers: make(map[domain.QuizID]domain.AnswerRecord, len(c.state.Answers)),
	}
	if c.state.CurrentTaskID != "" {
		cached := c.state.Segments[c.state.CurrentTaskID]
		snapshot.Segments = make([]domain.Segment, len(cached))
		copy(snapshot.Segments, cached)
	}
	for id, record := range c.state.Answers {
		snapshot.Answers[id] = record
	}
	return snapshot
}

// applyTaskUpdate merges a status probe into the task cache, honoring
// forward-only transitions so a stale probe cannot roll progress back.
func (c *Coordinator) applyTaskUpdate(update domain.Task) {
	if update.ID != c.state.CurrentTaskID && update.ID != c.task.ID {
		return
	}
	if !c.task.Status.CanTransitionTo(update.Status) {
		c.logger.Debug("ignoring backwards status transition",
			"from", string(c.task.Status), "to", string(update.Status))
		return
	}

	c.task.Status = update.Status
	if update.Progress > 0 {
		c.task.Progress = update.Progress
	}
	if update.CurrentStage != "" {
		c.task.CurrentStage = update.CurrentStage
	}
	if update.ErrorMessage != "" {
		c.task.ErrorMessage = update.ErrorMessage
	}
}

func (c *Coordinator) currentTaskOr(task domain.Task) domain.Task {
	if task.ID == c.task.ID {
		return c.task
	}
	return task
}
