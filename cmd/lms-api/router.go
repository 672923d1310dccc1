package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/middleware"
	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/pkg/config"
	"github.com/noah-isme/lms-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lms-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, app *application, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.metricsSvc, "/metrics", "/health", "/ready"))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", app.metrics.Health)
	r.GET("/ready", app.metrics.Ready)
	r.GET("/metrics", app.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	authRequired := middleware.JWT(app.tokens)
	authOptional := middleware.OptionalJWT(app.tokens)
	admin := middleware.RequireRoles(models.RoleAdmin)
	instructor := middleware.RequireRoles(models.RoleInstructor)
	student := middleware.RequireRoles(models.RoleStudent)
	audit := func(action, resource, idParam string) gin.HandlerFunc {
		return middleware.Audit(app.auditWriter, logr, action, resource, idParam)
	}

	auth := api.Group("/auth")
	auth.POST("/register", app.auth.Register)
	auth.POST("/login", app.auth.Login)
	auth.POST("/refresh", app.auth.Refresh)
	auth.POST("/logout", authRequired, app.auth.Logout)
	auth.GET("/me", authRequired, app.auth.Me)
	auth.POST("/change-password", authRequired, app.auth.ChangePassword)

	api.GET("/courses", authOptional, app.courses.Catalog)
	api.GET("/courses/:id", authOptional, app.courses.Get)
	api.GET("/courses/:id/lessons", authOptional, app.lessons.List)
	api.GET("/files/:token", app.lessons.Download)
	api.GET("/exports/download/:token", app.exports.Download)

	secured := api.Group("", authRequired)

	secured.POST("/courses", instructor, app.courses.Create)
	secured.PUT("/courses/:id", instructor, app.courses.Update)
	secured.DELETE("/courses/:id", middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin), app.courses.Delete)
	secured.POST("/courses/:id/submit", instructor, app.courses.Submit)
	secured.GET("/instructor/courses", instructor, app.courses.Mine)
	secured.GET("/instructor/dashboard", instructor, app.dashboard.Instructor)

	secured.GET("/lessons/:id", app.lessons.Get)
	secured.POST("/courses/:id/lessons", instructor, app.lessons.Create)
	secured.PUT("/lessons/:id", instructor, app.lessons.Update)
	secured.DELETE("/lessons/:id", instructor, app.lessons.Delete)
	secured.POST("/lessons/:id/attachment", instructor, app.lessons.UploadAttachment)

	secured.POST("/courses/:id/enroll", student, app.enrollments.Enroll)
	secured.POST("/courses/:id/drop", student, app.enrollments.Drop)
	secured.POST("/courses/:id/rating", student, app.enrollments.Rate)
	secured.GET("/courses/:id/students", middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin), app.enrollments.Roster)
	secured.GET("/me/enrollments", student, app.enrollments.Mine)

	secured.POST("/lessons/:id/complete", student, app.progress.Complete)
	secured.GET("/courses/:id/progress", student, app.progress.CourseProgress)
	secured.GET("/me/badges", app.progress.MyBadges)
	secured.GET("/leaderboard", app.progress.Leaderboard)

	secured.POST("/courses/:id/assignments", instructor, app.assignments.Create)
	secured.GET("/courses/:id/assignments", app.assignments.List)
	secured.POST("/assignments/:id/submissions", student, app.assignments.Submit)
	secured.GET("/assignments/:id/submissions", middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin), app.assignments.Submissions)
	secured.PUT("/submissions/:id/grade", instructor, app.assignments.Grade)
	secured.GET("/me/submissions", student, app.assignments.Mine)

	secured.POST("/courses/:id/gradebook/exports", middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin), app.exports.Create)
	secured.GET("/exports/:id", app.exports.Status)

	adminGroup := secured.Group("/admin", admin)
	adminGroup.GET("/stats", app.dashboard.Admin)
	adminGroup.GET("/users", app.users.List)
	adminGroup.GET("/users/:id", app.users.Get)
	adminGroup.PATCH("/users/:id/role", audit("user.role_changed", "user", "id"), app.users.UpdateRole)
	adminGroup.PATCH("/users/:id/status", audit("user.status_changed", "user", "id"), app.users.SetStatus)
	adminGroup.GET("/courses/pending", app.courses.Pending)
	adminGroup.POST("/courses/:id/approve", audit("course.approved", "course", "id"), app.courses.Approve)
	adminGroup.POST("/courses/:id/reject", audit("course.rejected", "course", "id"), app.courses.Reject)
	adminGroup.POST("/courses/:id/students/:studentId/ban", audit("enrollment.banned", "course", "id"), app.enrollments.Ban)

	return r
}
