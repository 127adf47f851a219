// Package push implements the backend's per-task WebSocket channel.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/karatal/video-quiz-cli/internal/domain"
	"github.com/karatal/video-quiz-cli/internal/ports"
)

// Dialer opens WebSocket push connections against the backend.
type Dialer struct {
	Logger *slog.Logger
}

var _ ports.PushDialer = (*Dialer)(nil)

func (d *Dialer) Dial(ctx context.Context, endpoint string, taskID domain.TaskID, token string) (ports.PushConn, error) {
	wsURL, err := buildURL(endpoint, taskID, token)
	if err != nil {
		return nil, err
	}

	socket, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, &domain.NetworkError{Op: "dial push channel", Err: err}
	}
	// Segment payloads can be large.
	socket.SetReadLimit(1 << 20)

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn := &Conn{
		socket: socket,
		taskID: taskID,
		events: make(chan domain.PushEvent, 32),
		logger: logger.With("task_id", string(taskID)),
	}
	go conn.readLoop()
	return conn, nil
}

func buildURL(endpoint string, taskID domain.TaskID, token string) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse push endpoint: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported push endpoint scheme %q", parsed.Scheme)
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/api/video/ws/" + url.PathEscape(string(taskID))
	if token != "" {
		query := parsed.Query()
		query.Set("token", token)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

// Conn is one live push connection. The read loop decodes frames into
// events; malformed frames are logged and dropped without touching the
// connection.
type Conn struct {
	socket *websocket.Conn
	taskID domain.TaskID
	events chan domain.PushEvent
	logger *slog.Logger

	mu          sync.Mutex
	closed      bool
	closeReason error
}

var _ ports.PushConn = (*Conn)(nil)

func (c *Conn) Events() <-chan domain.PushEvent {
	return c.events
}

func (c *Conn) Ping(ctx context.Context) error {
	if err := c.socket.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		return &domain.NetworkError{Op: "push keep-alive", Err: err}
	}
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.socket.Close(websocket.StatusNormalClosure, "client disconnect")
}

func (c *Conn) CloseReason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

func (c *Conn) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.socket.Read(context.Background())
		if err != nil {
			c.mu.Lock()
			wasLocalClose := c.closed
			if !wasLocalClose {
				c.closeReason = err
			}
			c.mu.Unlock()
			if !wasLocalClose {
				c.logger.Debug("push socket closed", "error", err)
			}
			return
		}

		event, err := decodeFrame(data, c.taskID)
		if err != nil {
			c.logger.Warn("dropping malformed push frame", "error", err)
			continue
		}
		if event == nil {
			// Control frame (pong); not an event.
			continue
		}
		c.events <- *event
	}
}

type frame struct {
	Type  string `json:"type"`
	Event string `json:"event"`

	TaskID        string          `json:"task_id"`
	Segment       json.RawMessage `json:"segment"`
	Progress      float64         `json:"progress"`
	CurrentStage  string          `json:"current_stage"`
	Status        string          `json:"status"`
	TotalSegments int             `json:"total_segments"`
	Message       string          `json:"message"`
	Code          string          `json:"code"`
}

func decodeFrame(data []byte, taskID domain.TaskID) (*domain.PushEvent, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &domain.ProtocolError{Detail: fmt.Sprintf("undecodable frame: %v", err)}
	}

	if f.Type == "pong" {
		return nil, nil
	}

	event := domain.PushEvent{
		Type:          domain.PushEventType(f.Event),
		TaskID:        taskID,
		Progress:      f.Progress,
		CurrentStage:  f.CurrentStage,
		Status:        domain.TaskStatus(f.Status),
		TotalSegments: f.TotalSegments,
		Message:       f.Message,
		Code:          f.Code,
	}
	if f.TaskID != "" {
		event.TaskID = domain.TaskID(f.TaskID)
	}

	switch event.Type {
	case domain.PushConnected, domain.PushProgress, domain.PushCompleted, domain.PushError:
	case domain.PushSegmentReady:
		if len(f.Segment) == 0 {
			return nil, &domain.ProtocolError{Detail: "segment_ready without segment"}
		}
		segment, err := decodeSegment(f.Segment)
		if err != nil {
			return nil, err
		}
		event.Segment = &segment
	default:
		return nil, &domain.ProtocolError{Detail: fmt.Sprintf("unknown event %q", f.Event)}
	}

	return &event, nil
}

type segmentFrame struct {
	ID         int64    `json:"id"`
	SegmentID  int      `json:"segment_id"`
	StartTime  float64  `json:"start_time"`
	EndTime    float64  `json:"end_time"`
	TopicTitle string   `json:"topic_title"`
	Summary    string   `json:"short_summary"`
	Keywords   []string `json:"keywords"`
	Quizzes    []struct {
		ID           int64    `json:"id"`
		Question     string   `json:"question"`
		Options      []string `json:"options"`
		Type         string   `json:"type"`
		CorrectIndex *int     `json:"correct_index"`
		Explanation  string   `json:"explanation"`
	} `json:"quizzes"`
}

func decodeSegment(data json.RawMessage) (domain.Segment, error) {
	var f segmentFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return domain.Segment{}, &domain.ProtocolError{Detail: fmt.Sprintf("undecodable segment: %v", err)}
	}

	segment := domain.Segment{
		ID:         domain.SegmentID(f.ID),
		Number:     f.SegmentID,
		StartTime:  f.StartTime,
		EndTime:    f.EndTime,
		TopicTitle: f.TopicTitle,
		Summary:    f.Summary,
		Keywords:   f.Keywords,
	}
	for _, quiz := range f.Quizzes {
		correct := -1
		if quiz.CorrectIndex != nil {
			correct = *quiz.CorrectIndex
		}
		segment.Quizzes = append(segment.Quizzes, domain.Quiz{
			ID:           domain.QuizID(quiz.ID),
			Question:     quiz.Question,
			Options:      quiz.Options,
			Type:         quiz.Type,
			CorrectIndex: correct,
			Explanation:  quiz.Explanation,
		})
	}
	return segment, nil
}
