package models

import (
	"time"

	"github.com/noah-isme/lms-api/internal/gamification"
)

// Badge is a tier awarded to a student for a course. Unique per (student, course, type).
type Badge struct {
	ID        string            `db:"id" json:"id"`
	StudentID string            `db:"student_id" json:"studentId"`
	CourseID  string            `db:"course_id" json:"courseId"`
	Type      gamification.Tier `db:"type" json:"type"`
	AwardedAt time.Time         `db:"awarded_at" json:"awardedAt"`
}

// BadgeDetail adds the course title for display.
type BadgeDetail struct {
	Badge
	CourseTitle string `db:"course_title" json:"courseTitle"`
}

// StudentBadgeRow is one row of the students LEFT JOIN badges scan; Type is nil for students without badges.
type StudentBadgeRow struct {
	StudentID string  `db:"student_id"`
	FullName  string  `db:"full_name"`
	Type      *string `db:"type"`
}

// LeaderboardEntry is a ranked student on the leaderboard.
type LeaderboardEntry struct {
	ID             string                    `json:"id"`
	Name           string                    `json:"name"`
	BadgeCount     int                       `json:"badgeCount"`
	TotalPoints    int                       `json:"totalPoints"`
	BadgeBreakdown map[gamification.Tier]int `json:"badgeBreakdown"`
}
