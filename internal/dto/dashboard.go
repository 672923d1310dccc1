package dto

import (
	"time"

	"github.com/noah-isme/lms-api/internal/gamification"
	"github.com/noah-isme/lms-api/internal/models"
)

// InstructorDashboardResponse summarises an instructor's teaching activity.
type InstructorDashboardResponse struct {
	InstructorID    string                      `json:"instructorId"`
	TotalCourses    int                         `json:"totalCourses"`
	CoursesByStatus map[models.CourseStatus]int `json:"coursesByStatus"`
	TotalStudents   int                         `json:"totalStudents"`
	PendingGrading  int                         `json:"pendingGrading"`
	AverageRating   *float64                    `json:"averageRating"`
	TopCourses      []CourseHighlight           `json:"topCourses"`
}

// CourseHighlight ranks a course by enrolled students.
type CourseHighlight struct {
	CourseID      string   `json:"courseId" db:"course_id"`
	Title         string   `json:"title" db:"title"`
	StudentCount  int      `json:"studentCount" db:"student_count"`
	AverageRating *float64 `json:"averageRating" db:"average_rating"`
}

// AdminStatsResponse captures platform-wide counters for administrators.
type AdminStatsResponse struct {
	UsersByRole         map[models.UserRole]int         `json:"usersByRole"`
	CoursesByStatus     map[models.CourseStatus]int     `json:"coursesByStatus"`
	EnrollmentsByStatus map[models.EnrollmentStatus]int `json:"enrollmentsByStatus"`
	TotalEnrollments    int                             `json:"totalEnrollments"`
	BadgesByTier        map[gamification.Tier]int       `json:"badgesByTier"`
	BadgesAwarded       int                             `json:"badgesAwarded"`
	LessonsCompleted    int                             `json:"lessonsCompleted"`
	Runtime             *RuntimeMetrics                 `json:"runtime,omitempty"`
}

// RuntimeMetrics is a process-level snapshot of request, cache and progression counters.
type RuntimeMetrics struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	LessonsCompleted         uint64    `json:"lessonsCompleted"`
	BadgesAwarded            uint64    `json:"badgesAwarded"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}

// CountRow is a generic GROUP BY result.
type CountRow struct {
	Key   string `db:"key"`
	Count int    `db:"count"`
}
