package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/karatal/video-quiz-cli/internal/adapters/backend"
	"github.com/karatal/video-quiz-cli/internal/adapters/push"
	"github.com/karatal/video-quiz-cli/internal/adapters/render/report"
	tomlrepo "github.com/karatal/video-quiz-cli/internal/adapters/state/toml"
	"github.com/karatal/video-quiz-cli/internal/bus"
	"github.com/karatal/video-quiz-cli/internal/coordinator"
	"github.com/karatal/video-quiz-cli/internal/domain"
)

const requestTimeout = 30 * time.Second

type app struct {
	bus      *bus.Bus
	coord    *coordinator.Coordinator
	logger   *slog.Logger
	renderer func(report.Report) (string, error)
}

func wireApp() (*app, error) {
	logger := newLogger()

	states, err := tomlrepo.NewRepository(viper.New())
	if err != nil {
		return nil, fmt.Errorf("wire state repository: %w", err)
	}

	endpoint, err := resolveEndpoint(states)
	if err != nil {
		return nil, fmt.Errorf("resolve backend endpoint: %w", err)
	}

	transport := coordinator.NewAuthTransport(http.DefaultClient, logger)

	client, err := backend.New(backend.Config{
		BaseURL: endpoint,
		Doer:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("wire backend client: %w", err)
	}

	messageBus := bus.New(logger)

	coord := coordinator.New(coordinator.Config{
		Bus:       messageBus,
		Backend:   client,
		Dialer:    &push.Dialer{Logger: logger},
		States:    states,
		Transport: transport,
		Logger:    logger,
	})

	return &app{
		bus:      messageBus,
		coord:    coord,
		logger:   logger,
		renderer: report.Render,
	}, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if os.Getenv("VQ_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// resolveEndpoint picks the backend base URL: environment first, then the
// persisted settings, then the default. A later `vq config set --endpoint`
// changes the persisted value and wins on the next invocation.
func resolveEndpoint(states *tomlrepo.Repository) (string, error) {
	if endpoint := envOrDefault("VQ_ENDPOINT", ""); endpoint != "" {
		return endpoint, nil
	}

	state, err := states.Load(context.Background())
	if err != nil {
		return "", err
	}
	if state.Settings.Endpoint != "" {
		return state.Settings.Endpoint, nil
	}

	return domain.DefaultEndpoint, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// withCoordinator runs the coordinator loop for the duration of fn. One-shot
// commands use it so their bus requests are served against loaded state and
// the loop shuts down cleanly before the command returns.
func withCoordinator(cmd *cobra.Command, app *app, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		err := app.coord.Run(ctx)
		if err != nil {
			// Unblocks requests that would otherwise wait out their
			// timeout against a dead loop.
			cancel()
		}
		done <- err
	}()

	err := fn(ctx)

	cancel()
	if runErr := <-done; runErr != nil && !errors.Is(runErr, context.Canceled) {
		if err == nil || errors.Is(err, context.Canceled) {
			err = runErr
		}
	}
	return err
}

func (a *app) request(ctx context.Context, topic string, payload any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return a.bus.Request(ctx, topic, payload)
}

func (a *app) print(cmd *cobra.Command, r report.Report) error {
	output, err := a.renderer(r)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), output)
	return err
}
