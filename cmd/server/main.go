package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/publishflow/configs"
	"github.com/maheshrc27/publishflow/internal/api/handlers"
	"github.com/maheshrc27/publishflow/internal/api/middleware"
	"github.com/maheshrc27/publishflow/internal/events"
	job "github.com/maheshrc27/publishflow/internal/jobs"
	"github.com/maheshrc27/publishflow/internal/models"
	"github.com/maheshrc27/publishflow/internal/platform"
	"github.com/maheshrc27/publishflow/internal/publisher"
	"github.com/maheshrc27/publishflow/internal/queue"
	"github.com/maheshrc27/publishflow/internal/repository"
	"github.com/maheshrc27/publishflow/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
)

const tokenRefreshInterval = 10 * time.Minute

type eventSink interface {
	publisher.Notifier
	Close() error
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	if err := initLogger(cfg.LogLevel); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	ctx := context.Background()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	if err := repository.Migrate(db); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
	defer rdb.Close()

	// repositories
	txRunner := repository.NewTxRunner(db)
	userRepo := repository.NewUserRepository(db)
	apiKeyRepo := repository.NewApiKeyRepository(db)
	postRepo := repository.NewPostRepository(db)
	postDeliveryRepo := repository.NewPostDeliveryRepository(db)
	postMediaRepo := repository.NewPostMediaRepository(db)
	threadRepo := repository.NewThreadRepository(db)
	segmentRepo := repository.NewThreadSegmentRepository(db)
	segmentDeliveryRepo := repository.NewSegmentDeliveryRepository(db)
	segmentMediaRepo := repository.NewSegmentMediaRepository(db)
	threadAccountRepo := repository.NewThreadAccountRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	accountUserRepo := repository.NewAccountUserRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)
	publishLogRepo := repository.NewPublishLogRepository(db)

	// platform adapters
	instagram := platform.NewInstagram(cfg.SecretKey, cfg.Platforms.InstagramURL)
	youtube := platform.NewYouTube(cfg.SecretKey, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.Platforms.YouTubeEndpoint)
	registry, err := platform.NewRegistry(platform.Adapters{
		Facebook:  platform.NewFacebook(cfg.SecretKey, cfg.Platforms.FacebookURL),
		Instagram: instagram,
		Threads:   platform.NewThreads(cfg.SecretKey, cfg.Platforms.ThreadsURL),
		Twitter:   platform.NewTwitter(cfg.SecretKey, cfg.Platforms.TwitterURL),
		Telegram:  platform.NewTelegram(cfg.SecretKey, cfg.Platforms.TelegramURL),
		YouTube:   youtube,
	})
	if err != nil {
		log.Fatalf("Failed to register platforms: %v", err)
	}

	r2Service, err := service.NewR2Service(ctx, *cfg)
	if err != nil {
		log.Fatalf("Failed to set up object storage: %v", err)
	}

	var sink eventSink = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		sink = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}
	defer sink.Close()

	scheduler := queue.NewScheduler(client)

	pub := publisher.New(publisher.Deps{
		Tx:                txRunner,
		Posts:             postRepo,
		PostDeliveries:    postDeliveryRepo,
		PostMedia:         postMediaRepo,
		Threads:           threadRepo,
		Segments:          segmentRepo,
		SegmentDeliveries: segmentDeliveryRepo,
		SegmentMedia:      segmentMediaRepo,
		ThreadAccounts:    threadAccountRepo,
		Accounts:          socialAccountRepo,
		Links:             accountUserRepo,
		Logs:              publishLogRepo,
		Adapters:          registry,
		Media:             r2Service,
		Content:           service.NewContentService(),
		Events:            sink,
		Steps:             scheduler,
		SegmentDelay:      cfg.ThreadSegmentDelay,
	})

	userService := service.NewUserService(userRepo)
	apiKeyService := service.NewApiKeyService(apiKeyRepo)
	postService := service.NewPostService(txRunner, postRepo, postDeliveryRepo, postMediaRepo, mediaAssetRepo, socialAccountRepo, accountUserRepo, publishLogRepo)
	threadService := service.NewThreadService(txRunner, threadRepo, segmentRepo, segmentDeliveryRepo, segmentMediaRepo, threadAccountRepo, mediaAssetRepo, socialAccountRepo, accountUserRepo, publishLogRepo)
	mediaService := service.NewMediaService(mediaAssetRepo, r2Service)
	platformService := service.NewPlatformService(socialAccountRepo, accountUserRepo)

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			slog.Error("request failed", "path", c.Path(), "error", err)
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	authMiddleware := middleware.NewAuthMiddleware(*cfg, apiKeyService, userService)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	handlers.Routes{
		Posts:      handlers.NewPostHandler(postService, pub),
		Deliveries: handlers.NewDeliveryHandler(postService, pub),
		Threads:    handlers.NewThreadHandler(threadService, pub),
		Media:      handlers.NewMediaHandler(mediaService),
		Platforms:  handlers.NewPlatformHandler(platformService),
		Users:      handlers.NewUserHandler(userService),
	}.Register(api)

	// cron jobs
	schedulerJob := job.NewSchedulerJob(postRepo, threadRepo, scheduler, job.NewRedisLock(rdb), cfg.SchedulerBatchSize, cfg.SchedulerInterval)
	staleJob := job.NewStaleJob(pub, postRepo, threadRepo, cfg.StalePublishingAfter)
	refreshTokenJob := job.NewTokenRefreshJob(socialAccountRepo, cfg.SecretKey, map[models.Platform]platform.TokenRefresher{
		models.PlatformInstagram: instagram,
		models.PlatformYouTube:   youtube,
	})

	c := cron.New()
	job.Every(c, cfg.SchedulerInterval, "scheduler", schedulerJob.Tick)
	job.Every(c, cfg.StaleSweepInterval, "stale", staleJob.Sweep)
	job.Every(c, tokenRefreshInterval, "token_refresh", refreshTokenJob.RefreshTokens)
	c.Start()

	// queue
	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Logger:      asynqLogger{},
	})
	mux := asynq.NewServeMux()
	queue.NewQueue(pub).Register(mux)

	slog.Info("Starting the Asynq server...")
	if err := server.Start(mux); err != nil {
		log.Fatalf("Could not start Asynq server: %v", err)
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	slog.Info("Server is running", "port", cfg.Port)

	gracefulShutdown(app, server, c)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, server *asynq.Server, c *cron.Cron) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("Shutting down server...")

	c.Stop()
	server.Shutdown()

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	slog.Info("Server shutdown complete.")
}
