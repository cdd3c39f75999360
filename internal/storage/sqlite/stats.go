package sqlite

import (
	"context"
	"math"

	"github.com/trellis-tracker/trellis/internal/types"
)

// GetStatistics summarises the live (non-archived) issues. ArchivedIssues
// counts the rest.
func (s *SQLiteStorage) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+issueSelectColumns+` FROM issues`)
	if err != nil {
		return nil, wrapDBError("load issues for stats", err)
	}
	issues, err := s.scanIssues(rows)
	if err != nil {
		return nil, err
	}
	g, err := s.loadGraph(ctx, s.db)
	if err != nil {
		return nil, err
	}

	stats := &types.Statistics{
		ByType:   make(map[string]int),
		ByStatus: make(map[string]int),
	}
	var leadHours float64
	var leadCount int
	for _, is := range issues {
		if is.IsArchived() {
			stats.ArchivedIssues++
			continue
		}
		stats.TotalIssues++
		stats.ByType[is.Type]++
		stats.ByStatus[is.Status]++
		switch is.StatusCategory {
		case types.CategoryDone:
			stats.ClosedIssues++
			if is.ClosedAt != nil {
				leadHours += is.ClosedAt.Sub(is.CreatedAt).Hours()
				leadCount++
			}
		case types.CategoryWIP:
			stats.InProgressIssues++
		default:
			stats.OpenIssues++
		}
		if is.Assignee != "" && is.StatusCategory != types.CategoryDone {
			stats.ClaimedIssues++
		}
		if g.IsReady(is.ID) {
			stats.ReadyIssues++
		}
	}
	stats.BlockedIssues = len(g.Blocked())
	if leadCount > 0 {
		stats.AverageLeadTime = math.Round(leadHours/float64(leadCount)*10) / 10
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dependencies`).Scan(&stats.Dependencies); err != nil {
		return nil, wrapDBError("count dependencies", err)
	}
	return stats, nil
}
