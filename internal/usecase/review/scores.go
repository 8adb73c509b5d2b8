package review

import (
	"context"
	"strings"

	"modqueue/internal/domain/reviewable"
	"modqueue/internal/ports"
)

type AddScoreInput struct {
	ReviewableID uint64
	ReviewerID   uint64
	ScoreType    string
	// Weight defaults to the score type's profile weight, then 1.0.
	Weight float64
}

// AddScore records a pending score. It does not touch the item's status or
// aggregate; call RecalculateScore for that.
func (s *Service) AddScore(ctx context.Context, input AddScoreInput) (reviewable.Score, error) {
	if err := s.ready(ctx); err != nil {
		return reviewable.Score{}, err
	}

	scoreType := strings.TrimSpace(input.ScoreType)
	invalid := reviewable.FieldErrors{}
	if scoreType == "" {
		invalid.Add("score_type", "can't be blank")
	}
	if input.ReviewerID == 0 {
		invalid.Add("user_id", "can't be blank")
	}
	if input.Weight < 0 {
		invalid.Add("score", "must be greater than or equal to 0")
	}
	if !invalid.Empty() {
		return reviewable.Score{}, &reviewable.ValidationError{Fields: invalid}
	}

	if _, err := s.repo.GetReviewable(ctx, input.ReviewableID); err != nil {
		return reviewable.Score{}, err
	}

	weight := input.Weight
	if weight == 0 {
		weight = 1.0
		if configured, ok := s.profile.Weight(scoreType); ok {
			weight = configured
		}
	}

	return s.repo.AddScore(ctx, ports.ScoreCreate{
		ReviewableID: input.ReviewableID,
		ReviewerID:   input.ReviewerID,
		ScoreType:    scoreType,
		Weight:       weight,
	})
}

// RecalculateScore stores the sum of the item's score weights.
func (s *Service) RecalculateScore(ctx context.Context, reviewableID uint64) (float64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	return s.repo.RecalculateScore(ctx, reviewableID)
}

func (s *Service) Scores(ctx context.Context, reviewableID uint64) ([]reviewable.Score, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListScores(ctx, reviewableID)
}

func (s *Service) History(ctx context.Context, reviewableID uint64) ([]reviewable.HistoryEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, reviewableID)
}
