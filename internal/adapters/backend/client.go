// Package backend implements the REST client for the video-quiz
// service. All authenticated calls go through the injected Doer, which
// owns bearer attachment and the refresh-once policy.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/karatal/video-quiz-cli/internal/domain"
	"github.com/karatal/video-quiz-cli/internal/ports"
)

const maxResponseBytes = 1 << 20

type Config struct {
	BaseURL string
	// HTTPClient serves the unauthenticated auth endpoints. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
	// Doer serves every other endpoint. Defaults to HTTPClient.
	Doer ports.Doer
	// RequestTimeout bounds each call. Zero means 30 seconds.
	RequestTimeout time.Duration
}

type Client struct {
	baseURL        string
	httpClient     *http.Client
	doer           ports.Doer
	requestTimeout time.Duration
}

var _ ports.Backend = (*Client)(nil)

func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("backend: base url is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("backend: invalid base url %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	doer := config.Doer
	if doer == nil {
		doer = httpClient
	}
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:        strings.TrimRight(config.BaseURL, "/"),
		httpClient:     httpClient,
		doer:           doer,
		requestTimeout: timeout,
	}, nil
}

// SetDoer swaps the authenticated transport in after construction. The
// auth transport needs the client for token refresh, so wiring closes
// the cycle here.
func (c *Client) SetDoer(doer ports.Doer) {
	c.doer = doer
}

func (c *Client) Register(ctx context.Context, email, password string) (domain.Session, error) {
	var response tokenResponse
	err := c.call(ctx, c.httpClient, http.MethodPost, "/api/auth/register",
		credentialsRequest{Email: email, Password: password}, &response)
	if err != nil {
		return domain.Session{}, err
	}
	return response.toDomain(), nil
}

func (c *Client) Login(ctx context.Context, email, password string) (domain.Session, error) {
	var response tokenResponse
	err := c.call(ctx, c.httpClient, http.MethodPost, "/api/auth/login",
		credentialsRequest{Email: email, Password: password}, &response)
	if err != nil {
		return domain.Session{}, err
	}
	return response.toDomain(), nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (domain.Session, error) {
	var response tokenResponse
	err := c.call(ctx, c.httpClient, http.MethodPost, "/api/auth/refresh",
		refreshRequest{RefreshToken: refreshToken}, &response)
	if err != nil {
		return domain.Session{}, err
	}
	return response.toDomain(), nil
}

func (c *Client) CheckVideo(ctx context.Context, videoURL, language string) (ports.CheckResult, error) {
	var response checkResponse
	err := c.call(ctx, c.doer, http.MethodPost, "/api/video/check",
		videoRequest{URL: videoURL, Language: language}, &response)
	if err != nil {
		return ports.CheckResult{}, err
	}
	return ports.CheckResult{Exists: response.Exists, TaskID: domain.TaskID(response.TaskID)}, nil
}

func (c *Client) UploadVideo(ctx context.Context, videoURL, language string) (ports.UploadResult, error) {
	var response uploadResponse
	err := c.call(ctx, c.doer, http.MethodPost, "/api/video/upload/url",
		videoRequest{URL: videoURL, Language: language}, &response)
	if err != nil {
		return ports.UploadResult{}, err
	}
	return ports.UploadResult{
		TaskID:  domain.TaskID(response.TaskID),
		Cached:  response.Cached,
		Message: response.Message,
	}, nil
}

func (c *Client) TaskStatus(ctx context.Context, id domain.TaskID) (domain.Task, error) {
	var response statusResponse
	err := c.call(ctx, c.doer, http.MethodGet,
		fmt.Sprintf("/api/video/%s/status", url.PathEscape(string(id))), nil, &response)
	if err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:           domain.TaskID(response.TaskID),
		Status:       domain.TaskStatus(response.Status),
		Progress:     response.Progress,
		CurrentStage: response.CurrentStage,
		ErrorMessage: response.ErrorMessage,
	}, nil
}

func (c *Client) Segments(ctx context.Context, id domain.TaskID) (ports.SegmentsResult, error) {
	var response segmentsResponse
	err := c.call(ctx, c.doer, http.MethodGet,
		fmt.Sprintf("/api/video/%s/segments", url.PathEscape(string(id))), nil, &response)
	if err != nil {
		return ports.SegmentsResult{}, err
	}

	result := ports.SegmentsResult{
		TaskID: domain.TaskID(response.TaskID),
		Status: domain.TaskStatus(response.Status),
	}
	for _, segment := range response.Segments {
		result.Segments = append(result.Segments, segment.toDomain())
	}
	return result, nil
}

func (c *Client) SubmitAnswer(ctx context.Context, id domain.QuizID, selectedIndex int) (domain.AnswerResult, error) {
	var response answerResponse
	err := c.call(ctx, c.doer, http.MethodPost,
		fmt.Sprintf("/api/quiz/%d/answer", id), answerRequest{SelectedIndex: selectedIndex}, &response)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	return domain.AnswerResult{
		IsCorrect:    response.IsCorrect,
		CorrectIndex: response.CorrectIndex,
		Explanation:  response.Explanation,
		Stats: domain.AnswerStats{
			TotalAnswered: response.UserStats.TotalAnswered,
			TotalCorrect:  response.UserStats.TotalCorrect,
			Accuracy:      response.UserStats.Accuracy,
		},
	}, nil
}

func (c *Client) SegmentReview(ctx context.Context, id domain.SegmentID) ([]domain.ReviewItem, error) {
	var response []reviewResponse
	err := c.call(ctx, c.doer, http.MethodGet,
		fmt.Sprintf("/api/quiz/segment/%d/review", id), nil, &response)
	if err != nil {
		return nil, err
	}

	items := make([]domain.ReviewItem, 0, len(response))
	for _, item := range response {
		items = append(items, domain.ReviewItem{
			QuizID:        domain.QuizID(item.QuizID),
			Question:      item.Question,
			Options:       item.Options,
			SelectedIndex: item.UserAnswer,
			CorrectIndex:  item.CorrectIndex,
			IsCorrect:     item.IsCorrect,
			AnsweredAt:    item.AnsweredAt,
			Explanation:   item.Explanation,
		})
	}
	return items, nil
}

func (c *Client) SegmentProgress(ctx context.Context, id domain.SegmentID) (domain.SegmentProgress, error) {
	var response segmentStatusResponse
	err := c.call(ctx, c.doer, http.MethodGet,
		fmt.Sprintf("/api/quiz/segment/%d/status", id), nil, &response)
	if err != nil {
		return domain.SegmentProgress{}, err
	}
	return domain.SegmentProgress{
		SegmentID:         domain.SegmentID(response.SegmentID),
		TotalQuestions:    response.TotalQuestions,
		AnsweredQuestions: response.AnsweredQuestions,
		CorrectAnswers:    response.CorrectAnswers,
		IsComplete:        response.IsComplete,
		ScorePercentage:   response.ScorePercentage,
	}, nil
}

func (c *Client) RetakeSegment(ctx context.Context, id domain.SegmentID) error {
	return c.call(ctx, c.doer, http.MethodPost,
		"/api/quiz/segment/retake", retakeRequest{SegmentID: int64(id)}, nil)
}

func (c *Client) UserStats(ctx context.Context) (domain.UserStats, error) {
	var response statsResponse
	err := c.call(ctx, c.doer, http.MethodGet, "/api/user/stats", nil, &response)
	if err != nil {
		return domain.UserStats{}, err
	}
	return domain.UserStats{
		VideosWatched:     response.VideosWatched,
		QuestionsAnswered: response.QuestionsAnswered,
		CorrectAnswers:    response.CorrectAnswers,
		Accuracy:          response.Accuracy,
		CurrentStreak:     response.CurrentStreak,
	}, nil
}

func (c *Client) call(ctx context.Context, doer ports.Doer, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := doer.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: method + " " + path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	detail := resp.Status
	var payload errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err == nil && payload.Detail != "" {
		detail = payload.Detail
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, detail)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrUnknownID, detail)
	case resp.StatusCode >= http.StatusInternalServerError:
		return &domain.NetworkError{
			Op:  resp.Request.Method + " " + resp.Request.URL.Path,
			Err: errors.New(detail),
		}
	default:
		return &domain.BackendError{Message: detail}
	}
}
