package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/bbs-client/pkg/aggregate"
	"github.com/Sternrassler/bbs-client/pkg/board"
	"github.com/Sternrassler/bbs-client/pkg/client"
	"github.com/Sternrassler/bbs-client/pkg/credentials"
	"github.com/Sternrassler/bbs-client/pkg/logging"
	"github.com/Sternrassler/bbs-client/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	defaultBaseURL = "http://localhost:8080"
	redisPrefix    = "bbs:session"
)

// settings is the resolved configuration of one invocation.
type settings struct {
	BaseURL     string
	TokenFile   string
	RedisAddr   string
	LogLevel    string
	LogPretty   bool
	RPS         float64
	MetricsAddr string
	Timeout     time.Duration
	Korean      bool
}

func loadSettings(v *viper.Viper) (settings, error) {
	s := settings{
		BaseURL:     v.GetString("base-url"),
		TokenFile:   v.GetString("token-file"),
		RedisAddr:   v.GetString("redis-addr"),
		LogLevel:    v.GetString("log-level"),
		LogPretty:   v.GetBool("log-pretty"),
		RPS:         v.GetFloat64("rps"),
		MetricsAddr: v.GetString("metrics-addr"),
		Timeout:     v.GetDuration("timeout"),
		Korean:      v.GetBool("korean"),
	}
	if s.BaseURL == "" {
		return s, errors.New("base url is required")
	}
	if s.RPS < 0 {
		return s, fmt.Errorf("rps must not be negative, got %v", s.RPS)
	}
	if s.TokenFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return s, fmt.Errorf("resolve config directory: %w", err)
		}
		s.TokenFile = filepath.Join(dir, "bbs", "session.json")
	}
	return s, nil
}

// app holds what the commands of one invocation share.
type app struct {
	settings settings
	store    credentials.Store
	board    *board.Client

	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func wireApp(ctx context.Context, s settings) (*app, error) {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(s.LogLevel),
		Pretty: s.LogPretty,
		Output: os.Stderr,
	})

	a := &app{settings: s}

	if s.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		if err := rc.Ping(ctx).Err(); err != nil {
			rc.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", s.RedisAddr, err)
		}
		a.closers = append(a.closers, rc.Close)
		a.store = credentials.NewRedisStore(rc, redisPrefix, 0)
	} else {
		a.store = credentials.NewFileStore(s.TokenFile)
	}

	cfg := client.DefaultConfig(s.BaseURL, a.store)
	if s.Timeout > 0 {
		cfg.Timeout = s.Timeout
	}
	cfg.RequestsPerSecond = s.RPS
	cfg.ProactiveRefresh = true
	if s.Korean {
		cfg.Messages = client.KoreanMessages
	}
	api, err := client.New(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.board = board.New(api, aggregate.DefaultConfig())

	if s.MetricsAddr != "" {
		srv := metrics.NewServer(s.MetricsAddr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger := logging.NewLogger("cli")
				logger.Error().Err(err).Str("addr", s.MetricsAddr).Msg("Metrics server failed")
			}
		}()
		a.closers = append(a.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return a, nil
}

// newRootCmd builds the command tree. closeApp releases what the executed
// command wired (Redis client, metrics server); call it after Execute
// whether or not the command failed.
func newRootCmd() (rootCmd *cobra.Command, closeApp func() error) {
	v := viper.New()
	v.SetEnvPrefix("BBS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var current *app
	closeApp = func() error {
		if current == nil {
			return nil
		}
		a := current
		current = nil
		return a.Close()
	}

	rootCmd = &cobra.Command{
		Use:           "bbs",
		Short:         "Bulletin board client",
		Long:          "bbs talks to the bulletin board backend: log in, browse boards and threads, upload files. The session is kept in a token file or in Redis and refreshed transparently.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			current, err = wireApp(cmd.Context(), s)
			return err
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("base-url", defaultBaseURL, "backend base URL (BBS_BASE_URL)")
	flags.String("token-file", "", "session file, default <user config dir>/bbs/session.json (BBS_TOKEN_FILE)")
	flags.String("redis-addr", "", "keep the session in Redis at this address instead of a file (BBS_REDIS_ADDR)")
	flags.String("log-level", string(logging.LevelWarn), "debug, info, warn, error or off (BBS_LOG_LEVEL)")
	flags.Bool("log-pretty", false, "human readable logs (BBS_LOG_PRETTY)")
	flags.Float64("rps", 0, "client side request rate limit, 0 for none (BBS_RPS)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while running (BBS_METRICS_ADDR)")
	flags.Duration("timeout", 0, "per attempt timeout (BBS_TIMEOUT)")
	flags.Bool("korean", false, "Korean error messages (BBS_KOREAN)")
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}

	appFn := func() *app { return current }
	rootCmd.AddCommand(
		newLoginCmd(appFn),
		newLogoutCmd(appFn),
		newSignupCmd(appFn),
		newWhoamiCmd(appFn),
		newBoardsCmd(appFn),
		newBoardCmd(appFn),
		newThreadCmd(appFn),
		newUploadCmd(appFn),
	)
	return rootCmd, closeApp
}
