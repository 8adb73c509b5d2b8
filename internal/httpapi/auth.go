package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/domain/reviewable"
	"modqueue/internal/errs"
)

const defaultTokenTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid token")

// Tokens signs and verifies HS256 bearer tokens whose subject is an actor id.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (t *Tokens) Sign(actorID uint64) (string, error) {
	if actorID == 0 {
		return "", errors.New("actor id is required")
	}
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(actorID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", errs.Wrap(err, "sign token")
	}
	return signed, nil
}

func (t *Tokens) Verify(raw string) (uint64, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

type ctxKey int

const actorKey ctxKey = iota

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (reviewable.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(reviewable.Actor)
	return actor, ok
}

func withActor(ctx context.Context, actor reviewable.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

type ActorResolver interface {
	ResolveActor(ctx context.Context, id uint64) (reviewable.Actor, error)
}

// RequireActor authenticates the bearer token and loads its actor. Missing or
// bad tokens get 401; a token for a deleted actor gets 403. Browsers cannot set
// headers on a websocket handshake, so the access_token query parameter is
// accepted when the header is absent.
func RequireActor(tokens *Tokens, actors ActorResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeErrors(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			id, err := tokens.Verify(raw)
			if err != nil {
				writeErrors(w, http.StatusUnauthorized, err.Error())
				return
			}

			actor, err := actors.ResolveActor(r.Context(), id)
			if err != nil {
				if errors.Is(err, reviewable.ErrActorNotFound) {
					writeErrors(w, http.StatusForbidden, "forbidden")
					return
				}
				writeServerError(r.Context(), w, err)
				return
			}

			ctx := logging.WithAttrs(r.Context(), actorAttr(actor.ID))
			next.ServeHTTP(w, r.WithContext(withActor(ctx, actor)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return ""
		}
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
