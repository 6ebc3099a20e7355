package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ceylontrails/tourchat/internal/client/api"
	"github.com/ceylontrails/tourchat/internal/client/auth"
	"github.com/ceylontrails/tourchat/internal/client/guest"
	"github.com/ceylontrails/tourchat/internal/client/session"
	"github.com/ceylontrails/tourchat/internal/client/transport"
	"github.com/ceylontrails/tourchat/internal/config"
)

type options struct {
	token        string
	conversation string
	language     string
	apiURL       string
	wsURL        string
	guestStore   string
	noRealtime   bool
	logLevel     string
}

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "tourchat",
		Short: "Chat with a Sri Lanka travel guide from the terminal",
		Long: "Interactive chat client. Without a token it chats as a guest over HTTP; " +
			"with a token it connects the realtime channel and can manage conversations.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.token, "token", os.Getenv("CHAT_TOKEN"), "API token; empty chats as a guest")
	flags.StringVar(&opts.conversation, "conversation", "", "conversation id to join on start")
	flags.StringVar(&opts.language, "language", "", "reply language (default from CHAT_LANGUAGE)")
	flags.StringVar(&opts.apiURL, "api-url", "", "REST base URL (default from CHAT_API_URL)")
	flags.StringVar(&opts.wsURL, "ws-url", "", "websocket URL (default from CHAT_WS_URL)")
	flags.StringVar(&opts.guestStore, "guest-store", "", "guest identity file, .yaml or .db (default from CHAT_GUEST_STORE)")
	flags.BoolVar(&opts.noRealtime, "no-realtime", false, "send every message over HTTP")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (default from LOG_LEVEL)")

	return cmd
}

func run(ctx context.Context, opts *options, in io.Reader, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	applyOverrides(&cfg.Client, &cfg.Log, opts)
	config.SetupLogging(cfg.Log, os.Stderr)

	store, err := guest.OpenStore(cfg.Client.GuestStorePath)
	if err != nil {
		return errors.Wrap(err, "open guest store")
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	connOpts := transport.DefaultOptions(cfg.Client.WebSocketURL)
	connOpts.ReconnectAttempts = cfg.Client.ReconnectAttempts
	connOpts.ReconnectDelay = cfg.Client.ReconnectDelay

	sess := auth.NewSession(connOpts, !opts.noRealtime)
	defer sess.Close()

	identity := guest.NewIdentity(store)
	deps := session.Deps{
		Backend:     api.New(cfg.Client.APIURL, cfg.Client.HTTPTimeout, sess),
		Credentials: sess,
		Guest:       identity,
	}
	if connector := sess.Connector(); connector != nil {
		deps.Transport = connector
	}
	coord := session.NewCoordinator(deps, cfg.Client.Language)

	if opts.token != "" {
		sess.SignIn(opts.token)
	}

	p := newPrinter(out)
	r := &repl{coord: coord, sess: sess, guest: identity, out: p}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := coord.Run(gctx, sess.Events())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		newRenderer(coord, p).run(gctx)
		return nil
	})
	g.Go(func() error {
		if opts.conversation != "" {
			if err := coord.Bind(gctx, opts.conversation); err != nil {
				p.printf("! could not load conversation: %v\n", err)
			}
		}
		return r.loop(gctx, in)
	})

	log.Debug().Str("api", cfg.Client.APIURL).Bool("realtime", !opts.noRealtime).Msg("chat client started")
	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

func applyOverrides(client *config.ClientConfig, logCfg *config.LogConfig, opts *options) {
	if opts.apiURL != "" {
		client.APIURL = opts.apiURL
	}
	if opts.wsURL != "" {
		client.WebSocketURL = opts.wsURL
	}
	if opts.language != "" {
		client.Language = opts.language
	}
	if opts.guestStore != "" {
		client.GuestStorePath = opts.guestStore
	}
	if opts.logLevel != "" {
		logCfg.Level = opts.logLevel
	} else if logCfg.Level == "info" {
		// keep the terminal readable unless asked otherwise
		logCfg.Level = "warn"
	}
}
