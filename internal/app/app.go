package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/watchsync/server/internal/controller"
	connInmemory "github.com/watchsync/server/internal/repository/connection/inmemory"
	playbackRedis "github.com/watchsync/server/internal/repository/playback/redis"
	roomRedis "github.com/watchsync/server/internal/repository/room/redis"
	"github.com/watchsync/server/internal/service/room"
	transportRedis "github.com/watchsync/server/internal/transport/redis"
	"github.com/watchsync/server/pkg/ctxlogger"
	"github.com/watchsync/server/pkg/redisclient"
)

type AppConfig struct {
	Secret        string        `json:"-"`
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	LogLevel      string        `json:"log_level"`
	MembersLimit  int           `json:"members_limit"`
	QueueLimit    int           `json:"queue_limit"`
	RoomExpire    time.Duration `json:"room_expire"`
	RedisHost     string        `json:"redis_host"`
	RedisPort     int           `json:"redis_port"`
	RedisPassword string        `json:"-"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.MembersLimit < 1 {
		return fmt.Errorf("members limit must be greater than 0")
	}
	if cfg.QueueLimit < 1 {
		return fmt.Errorf("queue limit must be greater than 0")
	}
	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		}),
	}
	logger := slog.New(&h)

	rc, err := redisclient.New(&redisclient.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	roomRepo := roomRedis.NewRepo(rc, cfg.RoomExpire)
	playbackStore := playbackRedis.NewStore(rc, cfg.RoomExpire)
	connRepo := connInmemory.NewRepo()
	transport := transportRedis.NewTransport(rc, logger)

	roomService := room.NewService(&room.NewServiceParams{
		RoomRepo:      roomRepo,
		PlaybackStore: playbackStore,
		ConnRepo:      connRepo,
		Transport:     transport,
		Logger:        logger,
	}, &room.Config{
		Secret:       cfg.Secret,
		MembersLimit: cfg.MembersLimit,
		QueueLimit:   cfg.QueueLimit,
	})

	ctrl := controller.NewController(roomService, logger)
	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: ctrl.GetMux()}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, cancel := context.WithTimeout(serverCtx, 30*time.Second)
		defer cancel()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
