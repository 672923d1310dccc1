package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/noah-isme/lms-api/api/swagger"
	"github.com/noah-isme/lms-api/internal/handler"
	"github.com/noah-isme/lms-api/internal/repository"
	"github.com/noah-isme/lms-api/internal/service"
	"github.com/noah-isme/lms-api/pkg/cache"
	"github.com/noah-isme/lms-api/pkg/config"
	"github.com/noah-isme/lms-api/pkg/database"
	"github.com/noah-isme/lms-api/pkg/jobs"
	"github.com/noah-isme/lms-api/pkg/logger"
	"github.com/noah-isme/lms-api/pkg/mailer"
	"github.com/noah-isme/lms-api/pkg/scheduler"
	"github.com/noah-isme/lms-api/pkg/storage"
)

// @title LMS API
// @version 1.0.0
// @description Course catalog, lesson progress, badges and gradebook exports.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const refreshTokenRetention = 7 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, db, logr)
	if err != nil {
		logr.Fatal("application wiring failed", zap.Error(err))
	}
	defer app.shutdown()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, app, logr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// application holds every handler the router mounts plus the background workers to stop on exit.
type application struct {
	auth        *handler.AuthHandler
	users       *handler.UserHandler
	courses     *handler.CourseHandler
	lessons     *handler.LessonHandler
	enrollments *handler.EnrollmentHandler
	progress    *handler.ProgressHandler
	assignments *handler.AssignmentHandler
	dashboard   *handler.DashboardHandler
	exports     *handler.ExportHandler
	metrics     *handler.MetricsHandler

	tokens       *service.AuthService
	auditWriter  *repository.UserRepository
	metricsSvc   *service.MetricsService
	stopHandlers []func()
}

func (a *application) shutdown() {
	for i := len(a.stopHandlers) - 1; i >= 0; i-- {
		a.stopHandlers[i]()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, db *sqlx.DB, logr *zap.Logger) (*application, error) {
	app := &application{}
	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	app.metricsSvc = metricsSvc

	checks := map[string]handler.Pinger{"database": db}

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			cacheRepo = repository.NewCacheRepository(client, logr)
			checks["redis"] = cache.Pinger{Client: client}
			app.stopHandlers = append(app.stopHandlers, func() { _ = client.Close() })
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.DashboardTTL, logr, cacheRepo != nil)

	mail := mailer.NewDispatcher(mailer.New(cfg.Mail, logr), 3, logr)
	mail.Start(ctx)
	app.stopHandlers = append(app.stopHandlers, mail.Stop)

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	dashboardRepo := repository.NewDashboardRepository(db)
	exportRepo := repository.NewExportRepository(db)
	app.auditWriter = userRepo

	authSvc := service.NewAuthService(userRepo, mail, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	app.tokens = authSvc

	uploads, err := storage.NewLocalStorage(cfg.Uploads.Dir)
	if err != nil {
		return nil, fmt.Errorf("uploads storage: %w", err)
	}
	uploadSigner := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	progressSvc := service.NewProgressService(lessonRepo, enrollmentRepo, progressRepo, badgeRepo, metricsSvc, logr)
	courseSvc := service.NewCourseService(courseRepo, lessonRepo, userRepo, cacheSvc, mail, metricsSvc, validate, logr)
	lessonSvc := service.NewLessonService(lessonRepo, courseRepo, enrollmentRepo, progressRepo, uploads, uploadSigner, validate, logr, service.LessonServiceConfig{
		MaxFileSize:  cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Uploads.AllowedMIMEs,
		APIPrefix:    cfg.APIPrefix,
	})
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, progressSvc, cacheSvc, metricsSvc, validate, logr)
	badgeSvc := service.NewBadgeService(badgeRepo, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, submissionRepo, courseRepo, enrollmentRepo, cacheSvc, validate, logr)
	dashboardSvc := service.NewDashboardService(dashboardRepo, cacheSvc, metricsSvc, logr, service.DashboardServiceConfig{
		CacheTTL:      cfg.Cache.DashboardTTL,
		TopCoursesMax: 5,
	})
	userSvc := service.NewUserService(userRepo, cacheSvc, validate, logr)

	sched := scheduler.New(logr)
	if err := sched.Every(24*time.Hour, "refresh_token_purge", func(ctx context.Context) error {
		now := time.Now().UTC()
		removed, err := userRepo.PurgeRefreshTokens(ctx, now, now.Add(-refreshTokenRetention))
		if err == nil && removed > 0 {
			logr.Info("purged refresh tokens", zap.Int64("count", removed))
		}
		return err
	}); err != nil {
		return nil, err
	}

	app.exports = handler.NewExportHandler(nil)
	if cfg.Exports.Enabled {
		exportSvc, exportFiles, err := buildExports(ctx, cfg, app, exportRepo, courseRepo, lessonRepo, assignmentRepo, validate, metricsSvc, logr)
		if err != nil {
			return nil, err
		}
		if err := sched.Every(cfg.Exports.CleanupInterval, "export_cleanup", exportSvc.Cleanup); err != nil {
			return nil, err
		}
		if err := sched.Every(cfg.Exports.CleanupInterval, "export_orphan_sweep", func(context.Context) error {
			removed, err := exportFiles.CleanupOlderThan(2 * cfg.Exports.SignedURLTTL)
			if len(removed) > 0 {
				logr.Info("removed orphaned export files", zap.Int("count", len(removed)))
			}
			return err
		}); err != nil {
			return nil, err
		}
		app.exports = handler.NewExportHandler(exportSvc)
	}

	sched.Start()
	app.stopHandlers = append(app.stopHandlers, sched.Stop)

	app.auth = handler.NewAuthHandler(authSvc)
	app.users = handler.NewUserHandler(userSvc)
	app.courses = handler.NewCourseHandler(courseSvc)
	app.lessons = handler.NewLessonHandler(lessonSvc)
	app.enrollments = handler.NewEnrollmentHandler(enrollmentSvc)
	app.progress = handler.NewProgressHandler(progressSvc, badgeSvc)
	app.assignments = handler.NewAssignmentHandler(assignmentSvc)
	app.dashboard = handler.NewDashboardHandler(dashboardSvc)
	app.metrics = handler.NewMetricsHandler(metricsSvc, checks)
	return app, nil
}

func buildExports(
	ctx context.Context,
	cfg *config.Config,
	app *application,
	exportRepo *repository.ExportRepository,
	courseRepo *repository.CourseRepository,
	lessonRepo *repository.LessonRepository,
	assignmentRepo *repository.AssignmentRepository,
	validate *validator.Validate,
	metricsSvc *service.MetricsService,
	logr *zap.Logger,
) (*service.ExportService, *storage.LocalStorage, error) {
	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, nil, fmt.Errorf("exports storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	renderers := service.DefaultRenderers()

	worker := service.NewExportWorker(exportRepo, exportRepo, courseRepo, lessonRepo, assignmentRepo, files, renderers, metricsSvc, logr)
	queue := jobs.NewQueue("gradebook_exports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		OnFailure:  worker.Fail,
		Logger:     logr,
	})
	queue.Start(ctx)
	app.stopHandlers = append(app.stopHandlers, queue.Stop)

	exportSvc := service.NewExportService(exportRepo, courseRepo, queue, files, signer, renderers, validate, logr, service.ExportServiceConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: signer.TTL(),
	})
	if n := exportSvc.RecoverPending(ctx); n > 0 {
		logr.Info("re-queued pending exports", zap.Int("count", n))
	}
	return exportSvc, files, nil
}
