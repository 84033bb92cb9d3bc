package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/jzx17/fifocopy/internal/config"
	"github.com/jzx17/fifocopy/internal/copier"
	errhandler "github.com/jzx17/fifocopy/internal/errors"
	"github.com/jzx17/fifocopy/internal/listener"
	"github.com/jzx17/fifocopy/internal/logging"
	"github.com/jzx17/fifocopy/pkg/lifecycle"
	"github.com/jzx17/fifocopy/pkg/retry"
)

const goodbyeMessage = "You exit the copier program"

// runCopy wires the pipe listener, the copier and the orchestrator together
// and runs until the exit command is read from stdin, a termination signal
// arrives or ctx is cancelled.
func runCopy(ctx context.Context, cfg *config.Config, stdin io.Reader, out io.Writer) error {
	if cfg == nil {
		return fmt.Errorf("configuration is required")
	}

	signalCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.LogOutputs(),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	runID := uuid.NewString()
	logger = logger.With(logging.String(logging.FieldRunID, runID))

	mode, err := cfg.FileMode()
	if err != nil {
		return err
	}

	sink, err := copier.New(copier.Options{
		Destination: cfg.Copier.Destination,
		Force:       cfg.Copier.Force,
		Verify:      cfg.Copier.Verify,
		FileMode:    mode,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	sourceHandler, err := newSourceErrorHandler(cfg.Errors.SourcePolicy, logger)
	if err != nil {
		return fmt.Errorf("errors.source_policy: %w", err)
	}

	source, err := listener.Open(listener.Options{
		Path:          cfg.Listener.Pipe,
		MaxLineLength: cfg.Listener.MaxLineLength,
		Lock:          cfg.Listener.Lock,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer source.Close()

	executor := retry.NewRetryExecutor(
		retry.FromSettings(cfg.Retry.MaxAttempts, cfg.RetryInitialDelay(), cfg.RetryMaxDelay(), cfg.Retry.Jitter),
		retry.WithEventHandler(retry.NewLogEventHandler(logger)),
	)

	orchestrator, err := lifecycle.New[string](source, sink, lifecycle.Config[string]{
		Capacity:           cfg.Queue.Capacity,
		JoinTimeout:        cfg.JoinTimeout(),
		SourceErrorHandler: sourceHandler,
		Operation:          "copy",
		Retry:              executor,
		OnReject: func(task string) {
			logger.Warn("file name arrived during shutdown and was not queued",
				logging.Task(task),
				logging.Event("task_rejected"),
			)
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	if isTerminal(stdin) {
		fmt.Fprintf(out, "Listening on %s. Type %q to stop.\n", cfg.Listener.Pipe, cfg.Control.ExitCommand)
	}

	logger.Info("fifocopy starting",
		logging.String("pipe", cfg.Listener.Pipe),
		logging.String("destination", cfg.Copier.Destination),
		logging.Int("capacity", cfg.Queue.Capacity),
		logging.Bool("force", cfg.Copier.Force),
	)

	started := time.Now()
	trigger := watchExitCommand(signalCtx, stdin, cfg.Control.ExitCommand, logger)
	runErr := orchestrator.Run(signalCtx, trigger)

	copies := executor.GetStats()
	fmt.Fprintln(out, renderSummary(orchestrator.Stats(), &copies, sink.Files(), sink.Bytes(), time.Since(started)))
	fmt.Fprintln(out, goodbyeMessage)

	if runErr != nil {
		logger.Error("fifocopy stopped with errors", logging.Error(runErr))
		return runErr
	}
	logger.Info("fifocopy stopped")
	return nil
}

// watchExitCommand returns a channel that is closed once a line equal to
// command is read from r. End of input only stops watching.
func watchExitCommand(ctx context.Context, r io.Reader, command string, logger *slog.Logger) <-chan struct{} {
	trigger := make(chan struct{})
	if r == nil {
		return trigger
	}

	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			if strings.TrimSpace(scanner.Text()) == command {
				close(trigger)
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Warn("reading standard input failed", logging.Error(err))
			return
		}
		logger.Debug("standard input closed; use a signal to stop")
	}()
	return trigger
}

func isTerminal(r io.Reader) bool {
	file, ok := r.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// newSourceErrorHandler resolves the configured source policy. Under the skip
// policy a malformed line is dropped, but a failure of the pipe itself still
// ends the producer since reading again would fail the same way.
func newSourceErrorHandler(policy string, logger *slog.Logger) (errhandler.ErrorHandler, error) {
	handler, err := errhandler.ForPolicy(policy, logger)
	if err != nil {
		return nil, err
	}
	if skip, ok := handler.(*errhandler.ContinueOnErrorHandler); ok {
		skip.AddFatalErrorType(&fs.PathError{})
	}
	return handler, nil
}
