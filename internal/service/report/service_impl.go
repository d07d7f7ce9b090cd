package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/membership"
	"github.com/taskhive/taskhive/internal/notify"
	"github.com/taskhive/taskhive/internal/platform/clock"
	"github.com/taskhive/taskhive/internal/platform/logger"
	"github.com/taskhive/taskhive/internal/store"
)

// Verify interface compliance at compile time
var _ Service = (*serviceImpl)(nil)

// serviceImpl implements the Service interface.
type serviceImpl struct {
	tasks     store.TaskStore
	groups    store.GroupStore
	directory membership.Directory
	deduper   *notify.Deduper
	clock     clock.Clock
	logger    *slog.Logger

	mu     sync.RWMutex
	boards map[uuid.UUID]*Leaderboard
}

// NewService creates a report Service.
func NewService(
	tasks store.TaskStore,
	groups store.GroupStore,
	directory membership.Directory,
	deduper *notify.Deduper,
	clk clock.Clock,
	log *slog.Logger,
) Service {
	if tasks == nil {
		panic("tasks store cannot be nil")
	}
	if groups == nil {
		panic("groups store cannot be nil")
	}
	if directory == nil {
		panic("membership directory cannot be nil")
	}
	if deduper == nil {
		panic("deduper cannot be nil")
	}
	if clk == nil {
		panic("clock cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &serviceImpl{
		tasks:     tasks,
		groups:    groups,
		directory: directory,
		deduper:   deduper,
		clock:     clk,
		logger:    log.With(slog.String("component", "report_service")),
		boards:    make(map[uuid.UUID]*Leaderboard),
	}
}

// forEachGroup applies fn to every group, logging and skipping failures.
func (s *serviceImpl) forEachGroup(ctx context.Context, operation string, fn func(ctx context.Context, group *domain.Group) error) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	groups, err := s.groups.List(ctx)
	if err != nil {
		return newServiceError(operation, "could not list groups", err)
	}
	for _, group := range groups {
		if err := fn(ctx, group); err != nil {
			log.Error("group aggregation failed",
				slog.String("operation", operation),
				slog.String("group_id", group.ID.String()),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// DailyOverdueSummary implements Service.DailyOverdueSummary.
func (s *serviceImpl) DailyOverdueSummary(ctx context.Context) (int, error) {
	notified := 0
	err := s.forEachGroup(ctx, "daily_overdue_summary", func(ctx context.Context, group *domain.Group) error {
		overdue, err := s.tasks.GetOverdue(ctx, group.ID)
		if err != nil {
			return err
		}
		if len(overdue) == 0 {
			return nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%d overdue task(s) need attention:\n", len(overdue))
		for _, task := range overdue {
			fmt.Fprintf(&b, "- %s (was due %s)\n", task.Title, task.DueTime.Format("2006-01-02 15:04"))
		}

		if s.deduper.SendToGroupOnce(ctx, notify.SummaryKey(group.ID, "daily_overdue"), notify.TTLGroupSummary,
			group.ID, strings.TrimRight(b.String(), "\n")) {
			notified++
		}
		return nil
	})
	return notified, err
}

// DailyIncompleteSummary implements Service.DailyIncompleteSummary.
func (s *serviceImpl) DailyIncompleteSummary(ctx context.Context) (int, error) {
	notified := 0
	err := s.forEachGroup(ctx, "daily_incomplete_summary", func(ctx context.Context, group *domain.Group) error {
		open, err := s.tasks.GetOpen(ctx, group.ID)
		if err != nil {
			return err
		}
		if len(open) == 0 {
			return nil
		}
		names, err := s.rosterNames(ctx, group.ID)
		if err != nil {
			return err
		}

		perAssignee := make(map[uuid.UUID]int)
		for _, task := range open {
			for _, userID := range task.Assignees {
				perAssignee[userID]++
			}
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%d open task(s) in this group:\n", len(open))
		for _, line := range sortedCountLines(perAssignee, names) {
			b.WriteString(line)
			b.WriteByte('\n')
		}

		if s.deduper.SendToGroupOnce(ctx, notify.SummaryKey(group.ID, "daily_incomplete"), notify.TTLGroupSummary,
			group.ID, strings.TrimRight(b.String(), "\n")) {
			notified++
		}
		return nil
	})
	return notified, err
}

// WeeklyReport implements Service.WeeklyReport.
func (s *serviceImpl) WeeklyReport(ctx context.Context) (int, error) {
	notified := 0
	err := s.forEachGroup(ctx, "weekly_report", func(ctx context.Context, group *domain.Group) error {
		board, err := s.computeScores(ctx, group.ID, WeeklyWindow)
		if err != nil {
			return err
		}
		if len(board.Scores) == 0 {
			return nil
		}

		var b strings.Builder
		b.WriteString("Weekly standings:\n")
		for i, score := range board.Scores {
			fmt.Fprintf(&b, "%d. %s: %d point(s) (%d on time, %d late, %d overdue)\n",
				i+1, score.DisplayName, score.Points, score.OnTime, score.Late, score.Overdue)
		}

		if s.deduper.SendToGroupOnce(ctx, notify.SummaryKey(group.ID, "weekly_report"), notify.TTLGroupSummary,
			group.ID, strings.TrimRight(b.String(), "\n")) {
			notified++
		}
		return nil
	})
	return notified, err
}

// SupervisorWeeklySummary implements Service.SupervisorWeeklySummary.
func (s *serviceImpl) SupervisorWeeklySummary(ctx context.Context) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	now := s.clock.Now()

	groups, err := s.groups.List(ctx)
	if err != nil {
		return 0, newServiceError("supervisor_weekly_summary", "could not list groups", err)
	}

	// Collect one line per group, then fan the lines out to that group's
	// admins so each admin receives a single roll-up message.
	lines := make(map[uuid.UUID][]string)
	for _, group := range groups {
		open, err := s.tasks.GetOpen(ctx, group.ID)
		if err != nil {
			log.Error("group aggregation failed",
				slog.String("operation", "supervisor_weekly_summary"),
				slog.String("group_id", group.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		overdue, err := s.tasks.GetOverdue(ctx, group.ID)
		if err != nil {
			log.Error("group aggregation failed",
				slog.String("operation", "supervisor_weekly_summary"),
				slog.String("group_id", group.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		completed, err := s.tasks.GetCompletedSince(ctx, group.ID, now.Add(-WeeklyWindow))
		if err != nil {
			log.Error("group aggregation failed",
				slog.String("operation", "supervisor_weekly_summary"),
				slog.String("group_id", group.ID.String()),
				slog.String("error", err.Error()))
			continue
		}

		line := fmt.Sprintf("- %s: %d open, %d overdue, %d completed this week",
			group.Name, len(open), len(overdue), len(completed))

		members, err := s.directory.GetMembers(ctx, group.ID)
		if err != nil {
			log.Error("roster lookup failed",
				slog.String("group_id", group.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		for _, member := range members {
			if member.Role == domain.RoleAdmin {
				lines[member.UserID] = append(lines[member.UserID], line)
			}
		}
	}

	notified := 0
	for adminID, groupLines := range lines {
		message := "Weekly overview of your groups:\n" + strings.Join(groupLines, "\n")
		if s.deduper.SendToUserOnce(ctx, notify.SummaryKey(adminID, "supervisor_weekly"), notify.TTLGroupSummary,
			adminID, message) {
			notified++
		}
	}
	return notified, nil
}

// RecomputeKPI implements Service.RecomputeKPI.
func (s *serviceImpl) RecomputeKPI(ctx context.Context) (int, error) {
	recomputed := 0
	err := s.forEachGroup(ctx, "kpi_recompute", func(ctx context.Context, group *domain.Group) error {
		board, err := s.computeScores(ctx, group.ID, KPIWindow)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.boards[group.ID] = board
		s.mu.Unlock()
		recomputed++
		return nil
	})
	return recomputed, err
}

// Standings implements Service.Standings.
func (s *serviceImpl) Standings(groupID uuid.UUID) (*Leaderboard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	board, ok := s.boards[groupID]
	return board, ok
}

// computeScores builds the group's leaderboard over the trailing window.
// Every assignee of a scored task receives the task's points.
func (s *serviceImpl) computeScores(ctx context.Context, groupID uuid.UUID, window time.Duration) (*Leaderboard, error) {
	now := s.clock.Now()

	completed, err := s.tasks.GetCompletedSince(ctx, groupID, now.Add(-window))
	if err != nil {
		return nil, err
	}
	overdue, err := s.tasks.GetOverdue(ctx, groupID)
	if err != nil {
		return nil, err
	}
	names, err := s.rosterNames(ctx, groupID)
	if err != nil {
		return nil, err
	}

	perUser := make(map[uuid.UUID]*Score)
	record := func(userID uuid.UUID) *Score {
		score, ok := perUser[userID]
		if !ok {
			name := names[userID]
			if name == "" {
				name = userID.String()
			}
			score = &Score{UserID: userID, DisplayName: name}
			perUser[userID] = score
		}
		return score
	}

	for _, task := range completed {
		onTime := task.CompletedAt != nil && !task.CompletedAt.After(task.DueTime)
		for _, userID := range task.Assignees {
			score := record(userID)
			if onTime {
				score.OnTime++
				score.Points += 2
			} else {
				score.Late++
				score.Points++
			}
		}
	}
	for _, task := range overdue {
		for _, userID := range task.Assignees {
			record(userID).Overdue++
		}
	}

	scores := make([]Score, 0, len(perUser))
	for _, score := range perUser {
		scores = append(scores, *score)
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Points != scores[j].Points {
			return scores[i].Points > scores[j].Points
		}
		return scores[i].DisplayName < scores[j].DisplayName
	})

	return &Leaderboard{GroupID: groupID, GeneratedAt: now, Scores: scores}, nil
}

// rosterNames maps user IDs to display names for the group.
func (s *serviceImpl) rosterNames(ctx context.Context, groupID uuid.UUID) (map[uuid.UUID]string, error) {
	members, err := s.directory.GetMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(members))
	for _, member := range members {
		names[member.UserID] = member.DisplayName
	}
	return names, nil
}

// sortedCountLines renders per-assignee open counts, highest first.
func sortedCountLines(counts map[uuid.UUID]int, names map[uuid.UUID]string) []string {
	type entry struct {
		name  string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for userID, count := range counts {
		name := names[userID]
		if name == "" {
			name = userID.String()
		}
		entries = append(entries, entry{name: name, count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("- %s: %d open", e.name, e.count))
	}
	return lines
}
