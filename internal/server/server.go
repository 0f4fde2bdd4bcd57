package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/familytrip/internal/answer"
	"github.com/victornm/familytrip/internal/api"
	"github.com/victornm/familytrip/internal/backfill"
	"github.com/victornm/familytrip/internal/catalog"
	"github.com/victornm/familytrip/internal/diary"
	"github.com/victornm/familytrip/internal/event"
	"github.com/victornm/familytrip/internal/notify"
	"github.com/victornm/familytrip/internal/quiz"
	"github.com/victornm/familytrip/internal/realtime"
	"github.com/victornm/familytrip/internal/telemetry"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Storage struct {
		// Driver is postgres or memory.
		Driver string
	}

	// Redis carries answer change signals between processes. Without
	// addresses changes only reach devices connected to this process.
	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
		// SSLMode defaults to disable.
		SSLMode string `mapstructure:"ssl_mode"`
	}

	Catalog struct {
		// Path of the roster and questions file. Empty uses the built-in catalog.
		Path string
	}

	Telegram struct {
		Token  string
		ChatID string `mapstructure:"chat_id"`
		APIURL string `mapstructure:"api_url"`
	}

	Admin struct {
		PINHash string `mapstructure:"pin_hash"`
	}

	CORS struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	}
}

// DefaultConfig is the configuration of a single-process deployment.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090
	c.Storage.Driver = DriverMemory
	c.Redis.Prefix = "familytrip"
	c.Postgres.SSLMode = "disable"
	return c
}

// PostgresDSN is the connection string of the configured database.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		c.Postgres.User, c.Postgres.Pass, c.Postgres.Addr, c.Postgres.Name, c.Postgres.SSLMode)
}

type Server struct {
	c Config

	eb *event.Bus

	catalog *catalog.Catalog

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	service struct {
		answers  *answer.Store
		engine   *quiz.Engine
		channel  *realtime.Channel
		diary    *diary.Service
		backfill *backfill.Job
		telegram *notify.Telegram
	}

	stopNotify func()

	health *health.Server
	http   *http.Server
	grpc   *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	var err error
	s.catalog, err = catalog.Load(c.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("server: load catalog: %w", err)
	}

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if len(s.c.Redis.Addrs) > 0 {
		if err := s.initRedis(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	switch s.c.Storage.Driver {
	case DriverPostgres:
		if err := s.initPostgres(); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	case DriverMemory, "":
		slog.Warn("server: using in-memory storage, data is lost on restart")
	default:
		return fmt.Errorf("unknown storage driver %q", s.c.Storage.Driver)
	}

	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(s.c.PostgresDSN())
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() error {
	var (
		answers answer.Repository
		posts   diary.Repository
	)
	if s.infra.postgres != nil {
		answers = answer.NewPostgresRepository(s.infra.postgres)
		posts = diary.NewPostgresRepository(s.infra.postgres)
	} else {
		answers = answer.NewMemoryRepository()
		posts = diary.NewMemoryRepository()
	}

	var notifier answer.Notifier = answer.NewBusNotifier(s.eb)
	if s.infra.redis != nil {
		notifier = answer.NewRedisNotifier(s.infra.redis, s.c.Redis.Prefix)
	}

	s.service.answers = answer.NewStore(answer.Config{
		Repository: answers,
		Notifier:   notifier,
	})

	s.service.engine = quiz.NewEngine(quiz.Config{
		Catalog: s.catalog,
		Store:   s.service.answers,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.service.engine.Load(ctx); err != nil {
		return fmt.Errorf("load answers: %w", err)
	}

	s.service.channel = realtime.NewChannel(realtime.Config{
		Store:  s.service.answers,
		Engine: s.service.engine,
	})

	s.service.diary = diary.NewService(diary.Config{
		Repository: posts,
		Roster:     s.catalog.Roster(),
		EventBus:   s.eb,
	})

	s.service.backfill = backfill.NewJob(backfill.Config{
		Diary:   posts,
		Answers: s.service.answers,
		Catalog: s.catalog,
	})

	s.service.telegram = notify.NewTelegram(notify.Config{
		Token:  s.c.Telegram.Token,
		ChatID: s.c.Telegram.ChatID,
		APIURL: s.c.Telegram.APIURL,
	})

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.GET("/healthz", s.healthz)
	e.Use(gin.Recovery())

	api.New(api.Config{
		Roster:         s.catalog.Roster(),
		Engine:         s.service.engine,
		Channel:        s.service.channel,
		Diary:          s.service.diary,
		Backfill:       s.service.backfill,
		AdminPINHash:   s.c.Admin.PINHash,
		AllowedOrigins: s.c.CORS.AllowedOrigins,
	}).Register(e)

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptors()...)
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	handler := http.Handler(e)
	if len(s.c.CORS.AllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: s.c.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type"},
		}).Handler(e)
	}

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.infra.postgres != nil {
		if err := s.infra.postgres.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "postgres unavailable"})
			return
		}
	}
	if s.infra.redis != nil {
		if err := s.infra.redis.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start() {
	ctx := context.TODO()

	if s.service.telegram.Enabled() {
		s.stopNotify = s.service.telegram.Subscribe(s.eb)
	} else {
		slog.InfoContext(ctx, "server: telegram notifications disabled")
	}

	if err := s.service.channel.Start(ctx); err != nil {
		slog.ErrorContext(ctx, "server: start sync channel failed", "error", err)
		panic(err)
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

// Backfill runs the legacy backfill job once on behalf of operator.
func (s *Server) Backfill(ctx context.Context, operator int) (*backfill.Report, error) {
	return s.service.backfill.Run(ctx, backfill.RunRequest{Operator: operator})
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.service.channel.Stop()
	if s.stopNotify != nil {
		s.stopNotify()
	}
	s.eb.Stop()

	s.Close()

	slog.InfoContext(ctx, "server: shutdown completed")
}

// Close releases database and Redis connections.
func (s *Server) Close() {
	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}
	if s.infra.redis != nil {
		if err := s.infra.redis.Close(); err != nil {
			slog.Error("server: close redis failed", "error", err)
		}
	}
}
