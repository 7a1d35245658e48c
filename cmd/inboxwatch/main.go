package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/tracyhatemice/inboxwatch/internal/config"
	"github.com/tracyhatemice/inboxwatch/internal/forwarder"
	"github.com/tracyhatemice/inboxwatch/internal/receiver"
	"github.com/tracyhatemice/inboxwatch/internal/sender"
	"github.com/tracyhatemice/inboxwatch/internal/watcher"
)

type CLI struct {
	Config   string `name:"config" help:"Path to the configuration file." env:"INBOXWATCH_CONFIG" default:"config.yaml" type:"path"`
	LogLevel string `name:"log-level" help:"Log level (DEBUG, INFO, WARN, ERROR); overrides log_level in the configuration file." env:"INBOXWATCH_LOG_LEVEL"`
	Once     bool   `name:"once" help:"Poll every inbox once and exit."`
}

func (CLI *CLI) initLogger(level slog.Level) *slog.Logger {
	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

func (CLI *CLI) level(cfg *config.Config) slog.Level {
	name := cfg.LogLevel
	if CLI.LogLevel != "" {
		name = CLI.LogLevel
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func newReceiver(wc config.Watcher, logger *slog.Logger) (receiver.Receiver, error) {
	switch wc.GetSource() {
	case "web":
		opts := []receiver.WebOption{receiver.WithWebLogger(logger)}
		if wc.BaseURL != "" {
			opts = append(opts, receiver.WithBaseURL(wc.BaseURL))
		}
		if wc.UserAgent != "" {
			opts = append(opts, receiver.WithUserAgent(wc.UserAgent))
		}
		return receiver.NewWeb(wc.Domain, wc.Inbox, opts...), nil
	case "imap":
		return receiver.NewIMAP(
			wc.Host, wc.Port,
			wc.Username, wc.Password,
			wc.UseTLS, wc.IMAPFolder, wc.GetProcessDays(), logger,
		), nil
	case "pop3":
		return receiver.NewPOP3(
			wc.Host, wc.Port,
			wc.Username, wc.Password,
			wc.UseTLS, logger,
		), nil
	default:
		return nil, fmt.Errorf("unsupported source: %s", wc.Source)
	}
}

func newWatchers(cfg *config.Config, logger *slog.Logger) []*watcher.Watcher {
	var mailer forwarder.Mailer
	if cfg.Sender != nil {
		mailer = sender.New(
			cfg.Sender.Host,
			cfg.Sender.Port,
			cfg.Sender.Username,
			cfg.Sender.Password,
			cfg.Sender.From,
			cfg.Sender.UseTLS,
			logger,
		)
	}

	var watchers []*watcher.Watcher
	for i, wc := range cfg.Watchers {
		name := wc.Label(i)
		wl := logger.With("watcher", name)

		recv, err := newReceiver(wc, wl)
		if err != nil {
			logger.Error("failed to create receiver", "watcher", name, "error", err)
			continue
		}

		fwd := forwarder.New(name, wc.ForwardTo, mailer, logger)
		w := watcher.NewFromReceiver(recv,
			watcher.WithSender(wc.FromFilter),
			watcher.WithInterval(wc.Interval()),
			watcher.WithLogger(wl),
		).OnMailReceived(fwd.Handle).OnError(fwd.HandleError)
		watchers = append(watchers, w)
	}
	return watchers
}

func pollOnce(ctx context.Context, watchers []*watcher.Watcher) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, w := range watchers {
		w := w
		eg.Go(func() error {
			if err := w.Poll(ctx); err != nil {
				return fmt.Errorf("%s: %w", w.URI(), err)
			}
			return nil
		})
	}
	return eg.Wait()
}

func (CLI *CLI) run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	watchers := newWatchers(cfg, logger)
	defer func() {
		for _, w := range watchers {
			if err := w.Close(); err != nil {
				logger.Warn("close failed", "inbox", w.URI(), "error", err)
			}
		}
	}()

	if CLI.Once {
		return pollOnce(ctx, watchers)
	}

	for _, w := range watchers {
		if err := w.Start(); err != nil {
			return fmt.Errorf("start %s: %w", w.URI(), err)
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")
	for _, w := range watchers {
		w.Stop()
	}
	return nil
}

func main() {
	var CLI CLI
	kongCtx := kong.Parse(&CLI,
		kong.Name("inboxwatch"),
		kong.Description("Watch disposable and regular inboxes and relay new mail."),
	)

	cfg, err := config.Load(CLI.Config)
	kongCtx.FatalIfErrorf(err)

	logger := CLI.initLogger(CLI.level(cfg))
	logger.Info("inboxwatch starting", "watchers", len(cfg.Watchers))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err = CLI.run(ctx, cfg, logger)
	// FatalIfErrorf exits without running deferred calls.
	cancel()
	kongCtx.FatalIfErrorf(err)
	logger.Info("inboxwatch stopped")
}
