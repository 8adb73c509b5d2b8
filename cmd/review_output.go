package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"modqueue/internal/domain/reviewable"
	"modqueue/internal/errs"
	"modqueue/internal/usecase/review"
)

type reviewableView struct {
	ID             uint64         `yaml:"id" json:"id"`
	Type           string         `yaml:"type" json:"type"`
	Status         string         `yaml:"status" json:"status"`
	Version        int64          `yaml:"version" json:"version"`
	Score          float64        `yaml:"score" json:"score"`
	Target         string         `yaml:"target,omitempty" json:"target,omitempty"`
	CreatedByID    uint64         `yaml:"created_by_id" json:"created_by_id"`
	CreatedAt      string         `yaml:"created_at" json:"created_at"`
	Payload        map[string]any `yaml:"payload,omitempty" json:"payload,omitempty"`
	Actions        []string       `yaml:"actions,omitempty" json:"actions,omitempty"`
	EditableFields []string       `yaml:"editable_fields,omitempty" json:"editable_fields,omitempty"`
	Scores         []scoreView    `yaml:"scores,omitempty" json:"scores,omitempty"`
	History        []historyView  `yaml:"history,omitempty" json:"history,omitempty"`
}

type scoreView struct {
	ReviewerID uint64  `yaml:"reviewer_id" json:"reviewer_id"`
	ScoreType  string  `yaml:"score_type" json:"score_type"`
	Status     string  `yaml:"status" json:"status"`
	Weight     float64 `yaml:"weight" json:"weight"`
}

type historyView struct {
	Type        string   `yaml:"type" json:"type"`
	Status      string   `yaml:"status" json:"status"`
	CreatedByID uint64   `yaml:"created_by_id" json:"created_by_id"`
	CreatedAt   string   `yaml:"created_at" json:"created_at"`
	Edited      []string `yaml:"edited,omitempty" json:"edited,omitempty"`
}

func newReviewableView(entry review.ListEntry) reviewableView {
	item := entry.Item
	view := reviewableView{
		ID:          item.ID,
		Type:        item.Kind,
		Status:      item.Status.String(),
		Version:     item.Version,
		Score:       item.Score,
		CreatedByID: item.CreatedByID,
		CreatedAt:   formatTime(item.CreatedAt),
		Payload:     map[string]any(item.Payload),
	}
	if item.Target != nil {
		view.Target = item.Target.String()
	}
	for _, action := range entry.Actions {
		view.Actions = append(view.Actions, action.ID)
	}
	for _, field := range entry.EditableFields {
		view.EditableFields = append(view.EditableFields, field.Path)
	}
	return view
}

func newScoreViews(scores []reviewable.Score) []scoreView {
	out := make([]scoreView, 0, len(scores))
	for _, score := range scores {
		out = append(out, scoreView{
			ReviewerID: score.ReviewerID,
			ScoreType:  score.ScoreType,
			Status:     score.Status.String(),
			Weight:     score.Weight,
		})
	}
	return out
}

func newHistoryViews(entries []reviewable.HistoryEntry) []historyView {
	out := make([]historyView, 0, len(entries))
	for _, entry := range entries {
		view := historyView{
			Type:        entry.Type.String(),
			Status:      entry.Status.String(),
			CreatedByID: entry.CreatedByID,
			CreatedAt:   formatTime(entry.CreatedAt),
		}
		paths := make([]string, 0, len(entry.Edited))
		for path := range entry.Edited {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		view.Edited = paths
		out = append(out, view)
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// writeOutput renders value as yaml or json, or calls text for the default format.
func writeOutput(w io.Writer, format string, value any, text func(io.Writer) error) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return text(w)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(value); err != nil {
			return errs.Wrap(err, "encode yaml")
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(value); err != nil {
			return errs.Wrap(err, "encode json")
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (text|yaml|json)", format)
	}
}

func writeReviewableLine(w io.Writer, view reviewableView) error {
	target := view.Target
	if target == "" {
		target = "-"
	}
	_, err := fmt.Fprintf(w, "#%d %s status=%s score=%.1f version=%d target=%s actions=%s\n",
		view.ID, view.Type, view.Status, view.Score, view.Version, target, strings.Join(view.Actions, ","))
	return err
}

// parseAssignments turns key=value pairs into request params. Dotted keys
// ("payload.raw") nest one level; values that parse as JSON keep that type.
func parseAssignments(pairs []string) (map[string]any, error) {
	params := map[string]any{}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q (want key=value)", pair)
		}
		value := parseValue(raw)

		parent, child, nested := strings.Cut(key, ".")
		if !nested {
			params[key] = value
			continue
		}
		if parent == "" || child == "" {
			return nil, fmt.Errorf("invalid assignment %q", pair)
		}
		inner, _ := params[parent].(map[string]any)
		if inner == nil {
			inner = map[string]any{}
			params[parent] = inner
		}
		inner[child] = value
	}
	return params, nil
}

func parseValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if n, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
		return n
	}
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") || trimmed == "true" || trimmed == "false" {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}
	return raw
}
