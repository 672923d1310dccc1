package gamification

import "sort"

// LeaderboardSize is the number of ranked students returned.
const LeaderboardSize = 20

// StudentBadges is one student's full badge collection across courses.
type StudentBadges struct {
	StudentID string
	Name      string
	Badges    []Tier
}

// Standing is a scored leaderboard row.
type Standing struct {
	StudentID      string
	Name           string
	BadgeCount     int
	TotalPoints    int
	BadgeBreakdown map[Tier]int
}

// Rank scores every student with table and returns the top limit standings ordered by
// points desc, badge count desc, then student ID asc. Students without badges still rank.
func Rank(students []StudentBadges, table PointTable, limit int) []Standing {
	standings := make([]Standing, 0, len(students))
	for _, s := range students {
		st := Standing{
			StudentID:      s.StudentID,
			Name:           s.Name,
			BadgeBreakdown: make(map[Tier]int),
		}
		for _, tier := range s.Badges {
			st.TotalPoints += table.Points(tier)
			st.BadgeCount++
			st.BadgeBreakdown[tier]++
		}
		standings = append(standings, st)
	}

	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.TotalPoints != b.TotalPoints {
			return a.TotalPoints > b.TotalPoints
		}
		if a.BadgeCount != b.BadgeCount {
			return a.BadgeCount > b.BadgeCount
		}
		return a.StudentID < b.StudentID
	})

	if limit > 0 && len(standings) > limit {
		standings = standings[:limit]
	}
	return standings
}
