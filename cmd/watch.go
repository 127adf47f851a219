package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	overlayadapter "github.com/karatal/video-quiz-cli/internal/adapters/overlay"
	"github.com/karatal/video-quiz-cli/internal/adapters/playback"
	"github.com/karatal/video-quiz-cli/internal/agent"
	"github.com/karatal/video-quiz-cli/internal/bus"
	"github.com/karatal/video-quiz-cli/internal/domain"
	"github.com/karatal/video-quiz-cli/internal/panel"
	"github.com/karatal/video-quiz-cli/internal/ports"
)

var errNoPlaybackSource = errors.New("playback source not available yet")

func newWatchCmd(app *app) *cobra.Command {
	var positionsPath, language string

	cmd := &cobra.Command{
		Use:   "watch <video-url>",
		Short: "Process a video and watch it with live quizzes",
		Long:  "watch submits the video for processing (reusing the backend's existing task when the video is already known), follows segment generation over the push connection, and opens the interactive session panel. Quizzes pop up automatically as playback crosses segment boundaries.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, app, args[0], positionsPath, language)
		},
	}

	cmd.Flags().StringVar(&positionsPath, "positions", "", "File of playback positions in seconds, one per line (default: simulated real-time playback)")
	cmd.Flags().StringVar(&language, "language", "", "Quiz language for this video (default: configured language)")

	return cmd
}

func runWatch(cmd *cobra.Command, app *app, videoURL, positionsPath, language string) error {
	return withCoordinator(cmd, app, func(ctx context.Context) error {
		snapshotResult, err := app.request(ctx, bus.TopicStateSnapshot, nil)
		if err != nil {
			return err
		}
		snapshot := snapshotResult.(bus.Snapshot)
		if !snapshot.Session.Authenticated() {
			return fmt.Errorf("not logged in: run `vq login` first: %w", domain.ErrNotAuthenticated)
		}

		if _, err := app.request(ctx, bus.TopicVideoCheckOrUpload, bus.CheckOrUpload{URL: videoURL, Language: language}); err != nil {
			return err
		}

		source, closeSource, err := openPlaybackSource(positionsPath)
		if err != nil {
			return err
		}
		defer closeSource()

		surface := overlayadapter.NewSurface()
		pageAgent := agent.New(agent.Config{
			Bus:     app.bus,
			Detect:  detectOnce(source),
			Overlay: surface,
			Logger:  app.logger,
		})

		agentCtx, stopAgent := context.WithCancel(ctx)
		defer stopAgent()
		agentDone := make(chan struct{})
		go func() {
			defer close(agentDone)
			_ = pageAgent.Run(agentCtx)
		}()

		model := panel.New(panel.Config{
			Bus:       app.bus,
			Logger:    app.logger,
			OpenQuiz:  pageAgent.OpenQuiz,
			CloseQuiz: pageAgent.CloseQuiz,
		})

		program := tea.NewProgram(
			model,
			tea.WithContext(ctx),
			tea.WithAltScreen(),
		)

		_, runErr := program.Run()

		stopAgent()
		<-agentDone

		if errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return runErr
	})
}

// detectOnce hands the single CLI playback source to the agent exactly
// once. Later polls report no source, which parks the agent once the
// source is exhausted instead of re-attaching a closed stream.
func detectOnce(source ports.PlaybackSource) agent.DetectFunc {
	var once sync.Once
	return func(context.Context) (ports.PlaybackSource, error) {
		var handed ports.PlaybackSource
		once.Do(func() { handed = source })
		if handed == nil {
			return nil, errNoPlaybackSource
		}
		return handed, nil
	}
}

func openPlaybackSource(positionsPath string) (ports.PlaybackSource, func(), error) {
	if positionsPath == "" {
		clock := playback.NewClock(playback.ClockConfig{})
		return clock, func() { _ = clock.Close() }, nil
	}

	file, err := os.Open(positionsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open positions file: %w", err)
	}

	reader := playback.NewReader(file)
	closeAll := func() {
		_ = reader.Close()
		_ = file.Close()
	}
	return reader, closeAll, nil
}
