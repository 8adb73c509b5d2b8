package reviewconsole

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/domain/reviewable"
	"modqueue/internal/usecase/review"
)

const maxShownHistory = 5
const maxAuditLines = 8
const maxSummaryRunes = 60

// QueueService is the part of the review workflow the console drives.
type QueueService interface {
	List(ctx context.Context, input review.ListInput) ([]review.ListEntry, error)
	Describe(ctx context.Context, actor reviewable.Actor, reviewableID uint64) (review.ListEntry, error)
	History(ctx context.Context, reviewableID uint64) ([]reviewable.HistoryEntry, error)
	PerformReviewable(ctx context.Context, input review.PerformInput) (*reviewable.PerformResult, error)
	PendingCount(ctx context.Context, actor *reviewable.Actor) (int64, error)
}

type Options struct {
	Actor           reviewable.Actor
	Kind            string
	Status          reviewable.Status
	RefreshInterval time.Duration
}

type reviewModel struct {
	ctx             context.Context
	service         QueueService
	actor           reviewable.Actor
	kindFilter      string
	statusFilter    reviewable.Status
	refreshInterval time.Duration

	entries       []review.ListEntry
	pending       int64
	selectedIndex int
	detail        review.ListEntry
	history       []reviewable.HistoryEntry
	hasDetail     bool
	status        string
	auditLogs     []string
}

type queueLoadedMsg struct {
	entries []review.ListEntry
	pending int64
	err     error
}

type detailLoadedMsg struct {
	reviewableID uint64
	entry        review.ListEntry
	history      []reviewable.HistoryEntry
	err          error
}

type tickMsg struct{}

type actionDoneMsg struct {
	action       string
	reviewableID uint64
	result       *reviewable.PerformResult
	err          error
}

func NewReviewModel(ctx context.Context, service QueueService, options Options) tea.Model {
	interval := options.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &reviewModel{
		ctx:             ctx,
		service:         service,
		actor:           options.Actor,
		kindFilter:      strings.TrimSpace(options.Kind),
		statusFilter:    options.Status,
		refreshInterval: interval,
		status:          "loading",
	}
}

func (m *reviewModel) Init() tea.Cmd {
	return tea.Batch(m.loadQueueCmd(), m.tickCmd())
}

func (m *reviewModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case tickMsg:
		return m, tea.Batch(m.loadQueueCmd(), m.tickCmd())
	case queueLoadedMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.entries = msg.entries
		m.pending = msg.pending
		if len(m.entries) == 0 {
			m.selectedIndex = 0
			m.hasDetail = false
			m.history = nil
			m.status = "queue is empty"
			return m, nil
		}
		if m.selectedIndex < 0 {
			m.selectedIndex = 0
		}
		if m.selectedIndex >= len(m.entries) {
			m.selectedIndex = len(m.entries) - 1
		}
		m.status = fmt.Sprintf("refreshed, %d items", len(m.entries))
		return m, m.loadSelectedDetailCmd()
	case detailLoadedMsg:
		if !m.isCurrentSelection(msg.reviewableID) {
			return m, nil
		}
		if msg.err != nil {
			m.hasDetail = false
			m.history = nil
			m.status = "detail failed: " + msg.err.Error()
			return m, nil
		}
		m.detail = msg.entry
		m.history = msg.history
		m.hasDetail = true
		return m, nil
	case actionDoneMsg:
		switch {
		case errors.Is(msg.err, reviewable.ErrUpdateConflict):
			m.status = fmt.Sprintf("%s skipped: #%d changed elsewhere, reloading", msg.action, msg.reviewableID)
			m.appendAuditLog(msg.action, msg.reviewableID, "conflict", nil)
		case msg.err != nil:
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			m.appendAuditLog(msg.action, msg.reviewableID, "", msg.err)
		default:
			outcome := describeResult(msg.result)
			m.status = fmt.Sprintf("%s done: %s", msg.action, outcome)
			m.appendAuditLog(msg.action, msg.reviewableID, outcome, nil)
		}
		return m, m.loadQueueCmd()
	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "g":
			m.status = "refreshing"
			return m, m.loadQueueCmd()
		case "up", "k":
			if m.selectedIndex > 0 {
				m.selectedIndex--
				return m, m.loadSelectedDetailCmd()
			}
			return m, nil
		case "down", "j":
			if m.selectedIndex < len(m.entries)-1 {
				m.selectedIndex++
				return m, m.loadSelectedDetailCmd()
			}
			return m, nil
		case "a":
			return m, m.performCmd("approve")
		case "x":
			return m, m.performCmd("reject")
		case "d":
			return m, m.performCmd("delete_user")
		}
		if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
			return m, m.performIndexCmd(int(key[0] - '1'))
		}
	}
	return m, nil
}

func (m *reviewModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62"))

	var builder strings.Builder
	builder.WriteString(titleStyle.Render("Review Queue"))
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render(fmt.Sprintf(
		"actor=%s status=%s kind=%s pending=%d refresh=%s",
		firstNonEmpty(m.actor.Username, fmt.Sprintf("#%d", m.actor.ID)),
		m.statusFilter,
		firstNonEmpty(m.kindFilter, "all"),
		m.pending,
		m.refreshInterval,
	)))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Queue"))
	builder.WriteString("\n")
	if len(m.entries) == 0 {
		builder.WriteString(dimStyle.Render("- no reviewables"))
		builder.WriteString("\n\n")
	} else {
		for index, entry := range m.entries {
			item := entry.Item
			line := fmt.Sprintf(
				"#%d [%s] score=%.1f v=%d by=%d %s",
				item.ID,
				item.Kind,
				item.Score,
				item.Version,
				item.CreatedByID,
				summarize(entry),
			)
			if index == m.selectedIndex {
				builder.WriteString(selectedStyle.Render("> " + line))
			} else {
				builder.WriteString("  " + line)
			}
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Detail"))
	builder.WriteString("\n")
	if !m.hasDetail {
		builder.WriteString(dimStyle.Render("- no detail"))
		builder.WriteString("\n\n")
	} else {
		item := m.detail.Item
		builder.WriteString(fmt.Sprintf("Reviewable: #%d %s\n", item.ID, item.Kind))
		builder.WriteString(fmt.Sprintf("Status: %s  Version: %d  Score: %.1f\n", item.Status, item.Version, item.Score))
		if item.Target != nil {
			builder.WriteString(fmt.Sprintf("Target: %s\n", item.Target))
		} else {
			builder.WriteString("Target: none\n")
		}
		builder.WriteString(fmt.Sprintf("Summary: %s\n", summarize(m.detail)))

		builder.WriteString("\nActions:\n")
		if len(m.detail.Actions) == 0 {
			builder.WriteString("- none\n")
		} else {
			for index, action := range m.detail.Actions {
				line := fmt.Sprintf("%d %s", index+1, action.ID)
				if action.ConfirmMessage != "" {
					line += " (confirm)"
				}
				builder.WriteString("- " + line + "\n")
			}
		}

		builder.WriteString("\nHistory:\n")
		if len(m.history) == 0 {
			builder.WriteString("- none\n")
		} else {
			start := len(m.history) - maxShownHistory
			if start < 0 {
				start = 0
			}
			for _, entry := range m.history[start:] {
				builder.WriteString(fmt.Sprintf("- %s %s by=%d\n", entry.Type, entry.Status, entry.CreatedByID))
			}
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Status"))
	builder.WriteString("\n")
	builder.WriteString("- " + firstNonEmpty(m.status, "ready"))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Audit Log"))
	builder.WriteString("\n")
	if len(m.auditLogs) == 0 {
		builder.WriteString(dimStyle.Render("- no actions"))
		builder.WriteString("\n\n")
	} else {
		for _, line := range m.auditLogs {
			builder.WriteString("- " + line)
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(dimStyle.Render("Keys: up/k down/j move  g refresh  a approve  x reject  d delete user  1-9 action  q quit"))
	return builder.String()
}

func (m *reviewModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *reviewModel) loadQueueCmd() tea.Cmd {
	return func() tea.Msg {
		status := m.statusFilter
		entries, err := m.service.List(m.ctx, review.ListInput{
			Actor:  &m.actor,
			Status: &status,
			Kind:   m.kindFilter,
		})
		if err != nil {
			return queueLoadedMsg{err: err}
		}
		pending, err := m.service.PendingCount(m.ctx, &m.actor)
		if err != nil {
			return queueLoadedMsg{err: err}
		}
		return queueLoadedMsg{entries: entries, pending: pending}
	}
}

func (m *reviewModel) loadSelectedDetailCmd() tea.Cmd {
	selected, ok := m.selectedEntry()
	if !ok {
		return nil
	}
	id := selected.Item.ID

	return func() tea.Msg {
		entry, err := m.service.Describe(m.ctx, m.actor, id)
		if err != nil {
			return detailLoadedMsg{reviewableID: id, err: err}
		}
		history, err := m.service.History(m.ctx, id)
		if err != nil {
			return detailLoadedMsg{reviewableID: id, err: err}
		}
		return detailLoadedMsg{reviewableID: id, entry: entry, history: history}
	}
}

func (m *reviewModel) performIndexCmd(index int) tea.Cmd {
	selected, ok := m.selectedEntry()
	if !ok {
		m.status = "nothing selected"
		return nil
	}
	actions := selected.Actions
	if m.hasDetail && m.detail.Item.ID == selected.Item.ID {
		actions = m.detail.Actions
	}
	if index < 0 || index >= len(actions) {
		m.status = fmt.Sprintf("no action %d", index+1)
		return nil
	}
	return m.performCmd(actions[index].ID)
}

// performCmd sends the version the console last saw, so an item changed by
// someone else is reported as a conflict instead of being overwritten.
func (m *reviewModel) performCmd(actionID string) tea.Cmd {
	selected, ok := m.selectedEntry()
	if !ok {
		m.status = "nothing selected"
		return nil
	}
	item := selected.Item
	if m.hasDetail && m.detail.Item.ID == item.ID {
		item = m.detail.Item
	}
	if !offers(m.actionsFor(selected), actionID) {
		m.status = fmt.Sprintf("%s is not available on #%d", actionID, item.ID)
		return nil
	}

	m.status = fmt.Sprintf("running %s on #%d", actionID, item.ID)
	version := item.Version
	return func() tea.Msg {
		result, err := m.service.PerformReviewable(m.ctx, review.PerformInput{
			ReviewableID: item.ID,
			PerformedBy:  m.actor,
			ActionID:     actionID,
			Version:      &version,
		})
		return actionDoneMsg{action: actionID, reviewableID: item.ID, result: result, err: err}
	}
}

func (m *reviewModel) actionsFor(selected review.ListEntry) []reviewable.Action {
	if m.hasDetail && m.detail.Item.ID == selected.Item.ID {
		return m.detail.Actions
	}
	return selected.Actions
}

func (m *reviewModel) selectedEntry() (review.ListEntry, bool) {
	if len(m.entries) == 0 {
		return review.ListEntry{}, false
	}
	if m.selectedIndex < 0 || m.selectedIndex >= len(m.entries) {
		return review.ListEntry{}, false
	}
	return m.entries[m.selectedIndex], true
}

func (m *reviewModel) isCurrentSelection(reviewableID uint64) bool {
	selected, ok := m.selectedEntry()
	return ok && selected.Item.ID == reviewableID
}

func (m *reviewModel) appendAuditLog(action string, reviewableID uint64, result string, opErr error) {
	outcome := strings.TrimSpace(result)
	if opErr != nil {
		outcome = "error: " + opErr.Error()
	}
	if outcome == "" {
		outcome = "ok"
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	line := fmt.Sprintf("%s actor=%d reviewable=%d action=%s result=%s", timestamp, m.actor.ID, reviewableID, action, outcome)
	m.auditLogs = append([]string{line}, m.auditLogs...)
	if len(m.auditLogs) > maxAuditLines {
		m.auditLogs = m.auditLogs[:maxAuditLines]
	}

	logging.Info(logging.WithReviewable(m.ctx, reviewableID, ""), "review console action",
		slog.Uint64("actor_id", m.actor.ID),
		slog.String("action", action),
		slog.String("result", outcome),
	)
}

func offers(actions []reviewable.Action, actionID string) bool {
	for _, action := range actions {
		if action.ID == actionID {
			return true
		}
	}
	return false
}

func describeResult(result *reviewable.PerformResult) string {
	if result == nil {
		return "ok"
	}
	if !result.Success {
		return "failed " + strings.Join(result.Errors, "; ")
	}
	out := fmt.Sprintf("v%d", result.Version)
	if result.CreatedPostID != nil {
		out += fmt.Sprintf(" post=%d", *result.CreatedPostID)
	}
	if len(result.RemoveReviewableIDs) > 0 {
		out += fmt.Sprintf(" removed=%d", len(result.RemoveReviewableIDs))
	}
	return out
}

// summarize picks the most telling field of the serialized item.
func summarize(entry review.ListEntry) string {
	for _, key := range []string{"title", "raw", "username"} {
		if value, ok := entry.Serialized[key].(string); ok && strings.TrimSpace(value) != "" {
			return truncate(firstLine(value), maxSummaryRunes)
		}
	}
	if target := entry.Item.Target; target != nil {
		return target.String()
	}
	return "-"
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

func firstLine(body string) string {
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line != "" {
			return line
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		normalized := strings.TrimSpace(value)
		if normalized != "" {
			return normalized
		}
	}
	return ""
}
