package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"modqueue/internal/domain/reviewable"
	"modqueue/internal/errs"
	"modqueue/internal/usecase/review"
)

const testSecret = "test-secret"

type fakeReviews struct {
	actors map[uint64]reviewable.Actor

	listInput    review.ListInput
	entries      []review.ListEntry
	pending      int64
	describeErr  error
	updateInput  review.UpdateInput
	updateResult review.UpdateResult
	updateErr    error
	performInput review.PerformInput
	performRes   *reviewable.PerformResult
	performErr   error
}

func (f *fakeReviews) ResolveActor(_ context.Context, id uint64) (reviewable.Actor, error) {
	actor, ok := f.actors[id]
	if !ok {
		return reviewable.Actor{}, errs.Wrapf(reviewable.ErrActorNotFound, "actor %d", id)
	}
	return actor, nil
}

func (f *fakeReviews) List(_ context.Context, input review.ListInput) ([]review.ListEntry, error) {
	f.listInput = input
	return f.entries, nil
}

func (f *fakeReviews) Describe(_ context.Context, _ reviewable.Actor, id uint64) (review.ListEntry, error) {
	if f.describeErr != nil {
		return review.ListEntry{}, f.describeErr
	}
	return review.ListEntry{Item: reviewable.Item{ID: id}, Serialized: map[string]any{"id": id}}, nil
}

func (f *fakeReviews) PendingCount(context.Context, *reviewable.Actor) (int64, error) {
	return f.pending, nil
}

func (f *fakeReviews) UpdateReviewable(_ context.Context, input review.UpdateInput) (review.UpdateResult, error) {
	f.updateInput = input
	if input.Version == nil {
		return review.UpdateResult{}, reviewable.ErrVersionRequired
	}
	return f.updateResult, f.updateErr
}

func (f *fakeReviews) PerformReviewable(_ context.Context, input review.PerformInput) (*reviewable.PerformResult, error) {
	f.performInput = input
	if input.Version == nil {
		return nil, reviewable.ErrVersionRequired
	}
	return f.performRes, f.performErr
}

type testServer struct {
	reviews *fakeReviews
	tokens  *Tokens
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	tokens, err := NewTokens(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokens() error = %v", err)
	}
	reviews := &fakeReviews{actors: map[uint64]reviewable.Actor{
		2: {ID: 2, Username: "mod", Moderator: true},
	}}
	registry := prometheus.NewRegistry()
	return &testServer{
		reviews: reviews,
		tokens:  tokens,
		handler: NewRouter(Deps{Reviews: reviews, Tokens: tokens, Gatherer: registry}),
	}
}

func (s *testServer) do(t *testing.T, method string, target string, body string, actorID uint64) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if actorID != 0 {
		token, err := s.tokens.Sign(actorID)
		if err != nil {
			t.Fatalf("Sign() error = %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeErrors(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var body struct {
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode errors body %q: %v", rec.Body.String(), err)
	}
	return body.Errors
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/health", "", 0)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("GET /health = %d %q", rec.Code, rec.Body.String())
	}
	rec = srv.do(t, http.MethodGet, "/metrics", "", 0)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
}

func TestReviewRoutesRequireActor(t *testing.T) {
	srv := newTestServer(t)
	other, err := NewTokens("other-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokens() error = %v", err)
	}
	forged, err := other.Sign(2)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	tests := []struct {
		name   string
		header string
		actor  uint64
		want   int
	}{
		{name: "missing token", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "forged token", header: "Bearer " + forged, want: http.StatusUnauthorized},
		{name: "unknown actor", actor: 99, want: http.StatusForbidden},
		{name: "known actor", actor: 2, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/review/count", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.actor != 0 {
				token, err := srv.tokens.Sign(tt.actor)
				if err != nil {
					t.Fatalf("Sign() error = %v", err)
				}
				req.Header.Set("Authorization", "Bearer "+token)
			}
			rec := httptest.NewRecorder()
			srv.handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("GET /review/count = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestListPassesFiltersAndRendersEntries(t *testing.T) {
	srv := newTestServer(t)
	srv.reviews.pending = 3
	srv.reviews.entries = []review.ListEntry{{
		Item:       reviewable.Item{ID: 5},
		Serialized: map[string]any{"id": 5, "type": "flagged_post"},
		Actions:    []reviewable.Action{{ID: "approve"}},
	}}

	rec := srv.do(t, http.MethodGet, "/review?status=approved&type=flagged_post&limit=10", "", 2)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /review = %d %s", rec.Code, rec.Body.String())
	}
	input := srv.reviews.listInput
	if input.Actor == nil || input.Actor.ID != 2 {
		t.Fatalf("List() actor = %+v", input.Actor)
	}
	if input.Status == nil || *input.Status != reviewable.StatusApproved || input.Kind != "flagged_post" || input.Limit != 10 {
		t.Fatalf("List() input = %+v", input)
	}

	var body struct {
		Reviewables []struct {
			ID             uint64              `json:"id"`
			Actions        []reviewable.Action `json:"actions"`
			EditableFields []any               `json:"editable_fields"`
		} `json:"reviewables"`
		Meta struct {
			PendingCount int64 `json:"pending_count"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(body.Reviewables) != 1 || body.Reviewables[0].ID != 5 || len(body.Reviewables[0].Actions) != 1 {
		t.Fatalf("reviewables = %+v", body.Reviewables)
	}
	if body.Reviewables[0].EditableFields == nil {
		t.Fatalf("editable_fields should render as an empty list")
	}
	if body.Meta.PendingCount != 3 {
		t.Fatalf("pending_count = %d, want 3", body.Meta.PendingCount)
	}
}

func TestListRejectsBadQuery(t *testing.T) {
	srv := newTestServer(t)
	for _, target := range []string{"/review?status=bogus", "/review?limit=-1", "/review?limit=x"} {
		if rec := srv.do(t, http.MethodGet, target, "", 2); rec.Code != http.StatusBadRequest {
			t.Fatalf("GET %s = %d, want 400", target, rec.Code)
		}
	}
}

func TestShowMapsNotFound(t *testing.T) {
	srv := newTestServer(t)
	srv.reviews.describeErr = errs.Wrap(reviewable.ErrNotFound, "load reviewable")

	if rec := srv.do(t, http.MethodGet, "/review/7", "", 2); rec.Code != http.StatusNotFound {
		t.Fatalf("GET /review/7 = %d, want 404", rec.Code)
	}
	if rec := srv.do(t, http.MethodGet, "/review/abc", "", 2); rec.Code != http.StatusBadRequest {
		t.Fatalf("GET /review/abc = %d, want 400", rec.Code)
	}
}

func TestUpdateStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		body       string
		result     review.UpdateResult
		err        error
		wantStatus int
		wantErrors []string
	}{
		{
			name:       "missing version",
			target:     "/review/4",
			body:       `{"reviewable":{"payload":{"raw":"new body text"}}}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantErrors: []string{reviewable.ErrVersionRequired.Error()},
		},
		{
			name:       "field not editable",
			target:     "/review/4?version=1",
			body:       `{"reviewable":{"topic_id":9}}`,
			err:        errs.Wrapf(reviewable.ErrForbidden, "field %q is not editable", "topic_id"),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "conflict",
			target:     "/review/4?version=1",
			body:       `{"reviewable":{"payload":{"raw":"new body text"}}}`,
			err:        reviewable.ErrUpdateConflict,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "validation",
			target:     "/review/4?version=1",
			body:       `{"reviewable":{"payload":{"raw":""}}}`,
			result:     review.UpdateResult{Saved: false, Errors: reviewable.FieldErrors{"raw": {"can't be blank"}}},
			wantStatus: http.StatusUnprocessableEntity,
			wantErrors: []string{"raw can't be blank"},
		},
		{
			name:       "bad version",
			target:     "/review/4?version=abc",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad json",
			target:     "/review/4?version=1",
			body:       `{"reviewable":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "saved",
			target:     "/review/4?version=1",
			body:       `{"reviewable":{"payload":{"raw":"new body text"}}}`,
			result:     review.UpdateResult{Saved: true, Item: reviewable.Item{ID: 4, Version: 2}},
			wantStatus: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			srv.reviews.updateResult = tt.result
			srv.reviews.updateErr = tt.err

			rec := srv.do(t, http.MethodPut, tt.target, tt.body, 2)
			if rec.Code != tt.wantStatus {
				t.Fatalf("PUT %s = %d, want %d (%s)", tt.target, rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantErrors != nil {
				got := decodeErrors(t, rec)
				if strings.Join(got, "|") != strings.Join(tt.wantErrors, "|") {
					t.Fatalf("errors = %v, want %v", got, tt.wantErrors)
				}
			}
		})
	}
}

func TestUpdateForwardsParams(t *testing.T) {
	srv := newTestServer(t)
	srv.reviews.updateResult = review.UpdateResult{Saved: true, Item: reviewable.Item{ID: 4, Version: 3}}

	rec := srv.do(t, http.MethodPut, "/review/4?version=2", `{"reviewable":{"category_id":12}}`, 2)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT = %d %s", rec.Code, rec.Body.String())
	}
	input := srv.reviews.updateInput
	if input.ReviewableID != 4 || input.Version == nil || *input.Version != 2 || input.Actor.ID != 2 {
		t.Fatalf("UpdateReviewable() input = %+v", input)
	}
	if input.Params["category_id"] != float64(12) {
		t.Fatalf("params = %+v", input.Params)
	}
	if !strings.Contains(rec.Body.String(), `"version":3`) {
		t.Fatalf("body = %s, want version 3", rec.Body.String())
	}
}

func TestPerformStatusMapping(t *testing.T) {
	created := uint64(40)
	tests := []struct {
		name       string
		target     string
		result     *reviewable.PerformResult
		err        error
		wantStatus int
	}{
		{name: "missing version", target: "/review/4/perform/approve", wantStatus: http.StatusUnprocessableEntity},
		{
			name:       "invalid action",
			target:     "/review/4/perform/bogus?version=1",
			err:        &reviewable.InvalidActionError{ActionID: "bogus", Kind: "flagged_post"},
			wantStatus: http.StatusForbidden,
		},
		{name: "not visible", target: "/review/4/perform/approve?version=1", err: reviewable.ErrNotFound, wantStatus: http.StatusNotFound},
		{name: "conflict", target: "/review/4/perform/approve?version=1", err: reviewable.ErrUpdateConflict, wantStatus: http.StatusConflict},
		{
			name:       "handler failed",
			target:     "/review/4/perform/approve?version=1",
			result:     &reviewable.PerformResult{Success: false, Errors: []string{"title can't be blank"}},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{name: "unexpected", target: "/review/4/perform/approve?version=1", err: errors.New("disk gone"), wantStatus: http.StatusInternalServerError},
		{
			name:       "success",
			target:     "/review/4/perform/approve?version=1",
			result:     &reviewable.PerformResult{ReviewableID: 4, ActionID: "approve", Success: true, Version: 2, CreatedPostID: &created},
			wantStatus: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			srv.reviews.performRes = tt.result
			srv.reviews.performErr = tt.err

			rec := srv.do(t, http.MethodPut, tt.target, "", 2)
			if rec.Code != tt.wantStatus {
				t.Fatalf("PUT %s = %d, want %d (%s)", tt.target, rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestPerformForwardsArgsAndRendersResult(t *testing.T) {
	srv := newTestServer(t)
	srv.reviews.performRes = &reviewable.PerformResult{
		ReviewableID:        4,
		ActionID:            "delete_user",
		Success:             true,
		Version:             2,
		RemoveReviewableIDs: []uint64{6},
	}

	rec := srv.do(t, http.MethodPut, "/review/4/perform/delete_user?version=1", `{"delete_as_spammer":true}`, 2)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT = %d %s", rec.Code, rec.Body.String())
	}
	input := srv.reviews.performInput
	if input.ActionID != "delete_user" || !input.Args.Bool("delete_as_spammer") || input.PerformedBy.ID != 2 {
		t.Fatalf("PerformReviewable() input = %+v", input)
	}

	var body struct {
		Result reviewable.PerformResult `json:"reviewable_perform_result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode perform: %v", err)
	}
	if body.Result.Version != 2 || len(body.Result.RemoveReviewableIDs) != 1 || body.Result.RemoveReviewableIDs[0] != 6 {
		t.Fatalf("result = %+v", body.Result)
	}
}
