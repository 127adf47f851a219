package coordinator

import (
	"context"
	"time"

	"github.com/karatal/video-quiz-cli/internal/bus"
	"github.com/karatal/video-quiz-cli/internal/domain"
)

// connect is idempotent: already open for taskID means no work. Any
// other existing connection is torn down before the new dial, so at
// most one connection exists at a time.
func (c *Coordinator) connect(ctx context.Context, taskID domain.TaskID) error {
	if taskID == "" {
		return domain.ErrNoCurrentTask
	}
	if c.connState == domain.ConnOpen && c.connTask == taskID && c.conn != nil {
		return nil
	}

	c.teardownConnection()

	// Re-probe before opening: persisted status can be stale after a
	// restart, and connecting to a finished task is wasted work.
	task, err := c.backend.TaskStatus(ctx, taskID)
	if err == nil {
		c.applyTaskUpdate(task)
		if task.Status.Terminal() {
			c.setConnState(taskID, domain.ConnClosed)
			return nil
		}
	} else {
		c.logger.Debug("status probe before connect failed", "task_id", string(taskID), "error", err)
	}

	return c.dial(ctx, taskID)
}

func (c *Coordinator) dial(ctx context.Context, taskID domain.TaskID) error {
	c.setConnState(taskID, domain.ConnConnecting)

	conn, err := c.dialer.Dial(ctx, c.state.Settings.Endpoint, taskID, c.state.Session.AccessToken)
	if err != nil {
		c.setConnState(taskID, domain.ConnReconnecting)
		c.armReconnect()
		return err
	}

	c.conn = conn
	c.setConnState(taskID, domain.ConnOpen)
	c.startKeepAlive()
	return nil
}

// teardownConnection closes the socket and cancels every timer bound to
// it. State transitions are the caller's concern.
func (c *Coordinator) teardownConnection() {
	c.stopKeepAlive()
	c.stopReconnect()
	c.stopLinger()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Coordinator) setConnState(taskID domain.TaskID, next domain.ConnectionState) {
	if c.connState == next && c.connTask == taskID {
		return
	}
	if !c.connState.CanTransitionTo(next) {
		c.logger.Warn("illegal connection transition",
			"from", string(c.connState), "to", string(next))
	}
	c.connState = next
	c.connTask = taskID
	c.bus.Broadcast(bus.EventConnState, bus.ConnChange{TaskID: taskID, State: next})
}

// socketClosed handles the push connection ending remotely. Explicit
// disconnects never reach here: teardown clears the conn reference
// before closing, so the loop stops selecting on its event channel.
func (c *Coordinator) socketClosed() {
	reason := c.conn.CloseReason()
	c.conn = nil
	c.stopKeepAlive()
	c.stopLinger()

	if c.task.Status.Terminal() {
		c.setConnState(c.connTask, domain.ConnClosed)
		return
	}

	c.logger.Info("push connection lost", "task_id", string(c.connTask), "reason", reason)
	c.setConnState(c.connTask, domain.ConnReconnecting)
	c.armReconnect()
}

// probeAndReconnect runs when the reconnect delay elapses. The status
// probe gates the redial: a task that finished while we were away gets
// a closed connection, never a reconnect.
func (c *Coordinator) probeAndReconnect(ctx context.Context) {
	if c.connState != domain.ConnReconnecting {
		return
	}
	taskID := c.connTask

	task, err := c.backend.TaskStatus(ctx, taskID)
	if err != nil {
		// Still degraded; retry on the same fixed schedule.
		c.logger.Debug("reconnect probe failed", "task_id", string(taskID), "error", err)
		c.armReconnect()
		return
	}

	c.applyTaskUpdate(task)
	c.bus.Broadcast(bus.EventProgress, bus.Progress{
		TaskID:       taskID,
		Progress:     c.task.Progress,
		CurrentStage: c.task.CurrentStage,
		Status:       c.task.Status,
	})

	if task.Status.Terminal() {
		c.setConnState(taskID, domain.ConnClosed)
		return
	}

	if err := c.dial(ctx, taskID); err != nil {
		c.logger.Debug("reconnect dial failed", "task_id", string(taskID), "error", err)
	}
}

func (c *Coordinator) armReconnect() {
	c.stopReconnect()
	c.reconnectTimer = time.NewTimer(c.reconnectDelay)
}

func (c *Coordinator) stopReconnect() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Coordinator) startKeepAlive() {
	c.stopKeepAlive()
	c.keepAlive = time.NewTicker(c.keepAliveInterval)
}

func (c *Coordinator) stopKeepAlive() {
	if c.keepAlive != nil {
		c.keepAlive.Stop()
		c.keepAlive = nil
	}
}

// sendKeepAlive defeats idle-connection timeouts on intermediaries. A
// failed ping is advisory only: state transitions are driven solely by
// the socket actually closing.
func (c *Coordinator) sendKeepAlive(ctx context.Context) {
	if c.conn == nil {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.conn.Ping(pingCtx); err != nil {
		c.logger.Debug("keep-alive ping failed", "error", err)
	}
}

func (c *Coordinator) armLinger() {
	c.stopLinger()
	c.lingerTimer = time.NewTimer(c.completionLinger)
}

func (c *Coordinator) stopLinger() {
	if c.lingerTimer != nil {
		c.lingerTimer.Stop()
		c.lingerTimer = nil
	}
}

// closeAfterLinger shuts the connection down once the post-completion
// linger elapses, in case the server keeps the socket open.
func (c *Coordinator) closeAfterLinger() {
	taskID := c.connTask
	c.teardownConnection()
	c.setConnState(taskID, domain.ConnClosed)
}

// handlePush applies one inbound push event to the local cache and then
// broadcasts it. The ordering is the contract: a consumer that snapshots
// immediately after a broadcast sees the mutation that caused it.
func (c *Coordinator) handlePush(ctx context.Context, event domain.PushEvent) {
	switch event.Type {
	case domain.PushConnected:
		c.logger.Debug("push channel confirmed", "task_id", string(event.TaskID))
		c.bus.Broadcast(bus.EventConnState, bus.ConnChange{TaskID: c.connTask, State: c.connState})

	case domain.PushSegmentReady:
		if event.Segment == nil {
			return
		}
		taskID := c.connTask
		c.state.Segments[taskID] = append(c.state.Segments[taskID], *event.Segment)
		_ = c.persist(ctx)
		c.bus.Broadcast(bus.EventSegmentReady, bus.SegmentReady{
			TaskID:  taskID,
			Segment: *event.Segment,
			Total:   len(c.state.Segments[taskID]),
		})

	case domain.PushProgress:
		status := event.Status
		if status == "" {
			status = domain.TaskStatusProcessing
		}
		c.applyTaskUpdate(domain.Task{
			ID:           c.connTask,
			Status:       status,
			Progress:     event.Progress,
			CurrentStage: event.CurrentStage,
		})
		c.bus.Broadcast(bus.EventProgress, bus.Progress{
			TaskID:       c.connTask,
			Progress:     c.task.Progress,
			CurrentStage: c.task.CurrentStage,
			Status:       c.task.Status,
		})

	case domain.PushCompleted:
		c.applyTaskUpdate(domain.Task{ID: c.connTask, Status: domain.TaskStatusCompleted})
		c.task.Progress = 100
		_ = c.persist(ctx)
		c.bus.Broadcast(bus.EventCompleted, bus.Completed{
			TaskID:        c.connTask,
			TotalSegments: event.TotalSegments,
		})
		// Keep the socket briefly: trailing segment_ready events may
		// still be in flight right after completion.
		c.armLinger()

	case domain.PushError:
		c.applyTaskUpdate(domain.Task{
			ID:           c.connTask,
			Status:       domain.TaskStatusFailed,
			ErrorMessage: event.Message,
		})
		_ = c.persist(ctx)
		c.bus.Broadcast(bus.EventTaskError, bus.TaskFailed{
			TaskID:  c.connTask,
			Message: event.Message,
			Code:    event.Code,
		})
		// Terminal for the task: no reconnect, no polling.
		taskID := c.connTask
		c.teardownConnection()
		c.setConnState(taskID, domain.ConnClosed)

	default:
		c.logger.Warn("dropping unknown push event", "type", string(event.Type))
	}
}
