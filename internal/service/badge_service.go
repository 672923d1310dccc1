package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/gamification"
	"github.com/noah-isme/lms-api/internal/models"
)

type badgeRepository interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.BadgeDetail, error)
	ListStudentBadges(ctx context.Context) ([]models.StudentBadgeRow, error)
}

// BadgeService exposes earned badges and the global leaderboard.
type BadgeService struct {
	repo   badgeRepository
	points gamification.PointTable
	size   int
	logger *zap.Logger
}

// NewBadgeService constructs BadgeService with the standard point table.
func NewBadgeService(repo badgeRepository, logger *zap.Logger) *BadgeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BadgeService{repo: repo, points: gamification.StandardPoints(), size: gamification.LeaderboardSize, logger: logger}
}

// ListMine returns the student's badges with their course titles.
func (s *BadgeService) ListMine(ctx context.Context, studentID string) ([]models.BadgeDetail, error) {
	badges, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, internalError(err, "failed to list badges")
	}
	if badges == nil {
		badges = []models.BadgeDetail{}
	}
	return badges, nil
}

// Leaderboard ranks every student by badge points. It is computed from current data on each call.
func (s *BadgeService) Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	rows, err := s.repo.ListStudentBadges(ctx)
	if err != nil {
		return nil, internalError(err, "failed to load leaderboard")
	}

	order := make([]string, 0)
	byStudent := make(map[string]*gamification.StudentBadges)
	for _, row := range rows {
		student, ok := byStudent[row.StudentID]
		if !ok {
			student = &gamification.StudentBadges{StudentID: row.StudentID, Name: row.FullName}
			byStudent[row.StudentID] = student
			order = append(order, row.StudentID)
		}
		if row.Type == nil {
			continue
		}
		tier := gamification.Tier(*row.Type)
		if !tier.Valid() {
			s.logger.Warn("ignoring unknown badge tier", zap.String("student_id", row.StudentID), zap.String("type", *row.Type))
			continue
		}
		student.Badges = append(student.Badges, tier)
	}

	students := make([]gamification.StudentBadges, 0, len(order))
	for _, id := range order {
		students = append(students, *byStudent[id])
	}

	standings := gamification.Rank(students, s.points, s.size)
	entries := make([]models.LeaderboardEntry, 0, len(standings))
	for _, st := range standings {
		entries = append(entries, models.LeaderboardEntry{
			ID:             st.StudentID,
			Name:           st.Name,
			BadgeCount:     st.BadgeCount,
			TotalPoints:    st.TotalPoints,
			BadgeBreakdown: st.BadgeBreakdown,
		})
	}
	return entries, nil
}
