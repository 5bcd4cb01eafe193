package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"model-arena/internal"
	"model-arena/internal/arena"
	"model-arena/internal/config"
	"model-arena/internal/gateway"
	"model-arena/internal/payments"
)

func newCmd() *cobra.Command {
	v := viper.New()
	var envFile string

	cmd := &cobra.Command{
		Use:     "arena",
		Short:   "Two AI personas answer a prompt, the crowd picks a winner.",
		Args:    cobra.ExactArgs(0),
		Version: releaseVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFile)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	config.BindFlags(pf, v)

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			Args:  cobra.ExactArgs(0),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEnv(cmd.Context(), v, true, serve)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create database tables",
			Args:  cobra.ExactArgs(0),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEnv(cmd.Context(), v, false, func(context.Context, *env) error { return nil })
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Insert the default personas into an empty arena",
			Args:  cobra.ExactArgs(0),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEnv(cmd.Context(), v, false, func(ctx context.Context, e *env) error {
					n, err := internal.Seed(ctx, e.arena(nil), e.log)
					if err != nil {
						return err
					}
					e.log.Info("seed done", "created", n)
					return nil
				})
			},
		},
	)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("arena v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

type env struct {
	cfg *config.Config
	db  *pgxpool.Pool
	log *slog.Logger
}

func (e *env) arena(gen arena.Generator) *arena.Orchestrator {
	return arena.New(internal.NewPGStore(e.db), gen,
		arena.WithLogger(e.log),
		arena.WithK(e.cfg.EloK),
		arena.WithAnswerWords(e.cfg.AnswerWords),
	)
}

// withEnv loads the config, connects and migrates the database, then runs fn.
func withEnv(ctx context.Context, v *viper.Viper, serving bool, fn func(context.Context, *env) error) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if serving {
		if err := cfg.ValidateServe(); err != nil {
			return err
		}
	}
	level, _ := cfg.Level()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := internal.MustDB(cfg.DatabaseURL)
	defer db.Close()

	if err := internal.Migrate(ctx, db); err != nil {
		return err
	}
	log.Info("schema ready")

	return fn(ctx, &env{cfg: cfg, db: db, log: log})
}

func serve(ctx context.Context, e *env) error {
	cfg := e.cfg
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	gen := gateway.NewClient(cfg.GatewayAPIKey,
		gateway.WithBaseURL(cfg.GatewayURL),
		gateway.WithModel(cfg.GatewayModel),
		gateway.WithRetries(cfg.GatewayRetries),
	)

	var verifier payments.Verifier
	if cfg.StripeSecretKey != "" {
		verifier = payments.NewStripe(cfg.StripeSecretKey)
	} else {
		e.log.Warn("STRIPE_SECRET_KEY not set, payment verification disabled")
	}

	r := internal.NewRouter(internal.Deps{
		DB:            e.db,
		Arena:         e.arena(gen),
		Credits:       internal.NewPGLedger(e.db),
		Payments:      verifier,
		Log:           e.log,
		Secret:        cfg.JWTSecret,
		SecureCookie:  cfg.CookieSecure,
		SignupCredits: cfg.SignupCredits,
		RateLimit:     cfg.RateLimit,
		RateBurst:     cfg.RateBurst,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		e.log.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	e.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
