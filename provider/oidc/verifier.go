// Package oidc verifies provider-issued ID tokens and produces the trusted
// external identity tuple the gateway consumes. The OAuth redirect and token
// exchange stay with the host application; by the time a token reaches this
// verifier, the provider has already authenticated the subject.
package oidc

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-authgate"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeTokenExpired   = "ID_TOKEN_EXPIRED"
	TextCodeTokenMalformed = "ID_TOKEN_MALFORMED"
)

// ErrTokenExpired is returned for ID tokens past their expiry.
var ErrTokenExpired = goerrors.New("id token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenMalformed covers every other verification failure.
var ErrTokenMalformed = goerrors.New("id token is malformed or invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed)

// Config holds provider verification options.
type Config struct {
	// Provider names the federated provider, e.g. "google".
	Provider string
	// JWKSURL is the provider's signing-key endpoint.
	JWKSURL string
	// Issuer is the expected iss claim.
	Issuer string
	// Audience is the expected aud claim (the client id).
	Audience string
	// RefreshInterval controls JWKS cache refresh. Zero defaults to an hour.
	RefreshInterval time.Duration
}

// Verifier validates RS256 ID tokens against the provider's JWKS.
type Verifier struct {
	config Config
	jwks   *keyfunc.JWKS
}

// NewVerifier fetches the provider JWKS and returns a Verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("oidc: provider name is required")
	}
	if cfg.JWKSURL == "" {
		return nil, fmt.Errorf("oidc: JWKS URL is required")
	}

	refresh := cfg.RefreshInterval
	if refresh == 0 {
		refresh = time.Hour
	}

	jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
		RefreshInterval:   refresh,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("oidc: failed to load JWKS: %w", err)
	}

	return &Verifier{config: cfg, jwks: jwks}, nil
}

// Close stops the background JWKS refresh.
func (v *Verifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Name              string `json:"name,omitempty"`
	Email             string `json:"email,omitempty"`
	EmailVerified     bool   `json:"email_verified,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
}

// Verify validates the raw ID token and maps it into the identity tuple the
// gateway trusts.
func (v *Verifier) Verify(rawIDToken string) (authgate.ExternalIdentity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	claims := &idTokenClaims{}
	token, err := jwt.ParseWithClaims(rawIDToken, claims, v.jwks.Keyfunc, opts...)
	if err != nil {
		return authgate.ExternalIdentity{}, normalizeValidationError(v.config.Provider, err)
	}

	if !token.Valid || claims.Subject == "" {
		return authgate.ExternalIdentity{}, normalizeValidationError(v.config.Provider, jwt.ErrTokenMalformed)
	}

	identity := authgate.ExternalIdentity{
		Provider:       v.config.Provider,
		ProviderUserID: claims.Subject,
		Name:           claims.Name,
		Email:          claims.Email,
		Claims: map[string]any{
			"email_verified": claims.EmailVerified,
		},
	}

	if claims.PreferredUsername != "" {
		identity.Claims["preferred_username"] = claims.PreferredUsername
	}
	if identity.Name == "" {
		identity.Name = claims.PreferredUsername
	}

	return identity, nil
}

func normalizeValidationError(provider string, err error) error {
	clone := ErrTokenMalformed.Clone()
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		clone = ErrTokenExpired.Clone()
	}

	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"provider": provider,
		"cause":    err.Error(),
	})
}
