package pipeline

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/patrickwarner/adsync/internal/graph"
	"github.com/patrickwarner/adsync/internal/kpi"
	"github.com/patrickwarner/adsync/internal/models"
)

// syncHourly writes the hour-of-day rows of the business in one batch.
func (o *Orchestrator) syncHourly(ctx context.Context, r *run) (PhaseResult, error) {
	var res PhaseResult
	q := r.query(graph.LevelAccount)
	q.Breakdowns = []string{graph.BreakdownHourly}
	insights, err := o.platform.Insights(ctx, q)
	if err != nil {
		return res, err
	}

	byHour := make(map[int]*models.HourlyStat)
	for _, in := range insights {
		hour, ok := parseHour(in.HourlyInterval)
		if !ok {
			res.Skipped++
			continue
		}
		s, found := byHour[hour]
		if !found {
			s = &models.HourlyStat{BusinessID: r.business.ID, Date: r.date, Hour: hour}
			byHour[hour] = s
		}
		m := kpi.Parse(in)
		s.Spend += m.Spend
		s.Impressions += m.Impressions
		s.Clicks += m.Clicks
		s.MessagingConversations += int64(kpi.ActionCount(in.Actions, kpi.MessagingWelcomeAction))
	}
	if len(byHour) == 0 {
		return res, nil
	}

	stats := make([]models.HourlyStat, 0, len(byHour))
	for _, s := range byHour {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Hour < stats[j].Hour })

	if err := o.analytics.UpsertHourlyStats(ctx, stats); err != nil {
		return res, err
	}
	res.Rows = len(stats)
	o.metrics.AddRowsUpserted(string(models.GrainHour), len(stats))
	return res, nil
}

// parseHour reads the starting hour of an interval label such as
// "14:00:00 - 14:59:59".
func parseHour(interval string) (int, bool) {
	start, _, _ := strings.Cut(strings.TrimSpace(interval), " - ")
	hh, _, found := strings.Cut(start, ":")
	if !found {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}
