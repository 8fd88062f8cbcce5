package server

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/bidstage/internal/platform/errors"
)

// ViewerClaims are the validated claims of a viewer token.
type ViewerClaims struct {
	ViewerID     string
	SubmissionID string
	ExpiresAt    time.Time
}

// viewerClaims is the internal claims type used for JWT parsing.
type viewerClaims struct {
	jwt.RegisteredClaims
	SubmissionID string `json:"submission_id,omitempty"`
}

// TokenVerifier checks HS256 viewer tokens.
type TokenVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewTokenVerifier returns a verifier for secret.
func NewTokenVerifier(secret string, now func() time.Time) (*TokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if now == nil {
		now = time.Now
	}
	return &TokenVerifier{secret: []byte(secret), now: now}, nil
}

// Issue signs a token for viewerID. An empty submissionID allows any
// session.
func (v *TokenVerifier) Issue(viewerID, submissionID string, ttl time.Duration) (string, error) {
	now := v.now().UTC()
	claims := viewerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strings.TrimSpace(viewerID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		SubmissionID: strings.TrimSpace(submissionID),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify validates token and, when the token is scoped to a submission,
// that it matches submissionID.
func (v *TokenVerifier) Verify(token, submissionID string) (ViewerClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ViewerClaims{}, apperrors.New(apperrors.CodeViewerTokenMissing, "viewer token is required")
	}

	var parsed viewerClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return ViewerClaims{}, mapJWTError(err)
	}

	viewerID := strings.TrimSpace(parsed.Subject)
	if viewerID == "" {
		return ViewerClaims{}, apperrors.New(apperrors.CodeViewerTokenInvalid, "viewer token sub is required")
	}
	if parsed.ExpiresAt == nil {
		return ViewerClaims{}, apperrors.New(apperrors.CodeViewerTokenInvalid, "viewer token exp is required")
	}
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(v.now().UTC()) {
		return ViewerClaims{}, apperrors.New(apperrors.CodeViewerTokenExpired, "viewer token is expired")
	}
	scoped := strings.TrimSpace(parsed.SubmissionID)
	if scoped != "" && scoped != strings.TrimSpace(submissionID) {
		return ViewerClaims{}, apperrors.WithMetadata(
			apperrors.CodeViewerTokenInvalid,
			"viewer token submission mismatch",
			map[string]string{"Field": "submission_id"},
		)
	}
	return ViewerClaims{ViewerID: viewerID, SubmissionID: scoped, ExpiresAt: exp}, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.New(apperrors.CodeViewerTokenInvalid, "viewer token signature is invalid")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return apperrors.New(apperrors.CodeViewerTokenInvalid, "viewer token alg is invalid")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return apperrors.New(apperrors.CodeViewerTokenInvalid, "viewer token is malformed")
	default:
		return apperrors.Wrap(apperrors.CodeViewerTokenInvalid, "viewer token is invalid", err)
	}
}
