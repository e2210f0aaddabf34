package guardian

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var errEmptySubject = errors.New("subject id must not be empty")

// TokenCodec signs and verifies Claims with a server held HMAC secret
type TokenCodec struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
	logger     Logger
}

// TokenCodecOption customizes a TokenCodec
type TokenCodecOption func(*TokenCodec)

// WithTokenClock injects the clock used for issuance and expiry checks
func WithTokenClock(clock func() time.Time) TokenCodecOption {
	return func(c *TokenCodec) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithTokenLogger overrides the codec logger
func WithTokenLogger(logger Logger) TokenCodecOption {
	return func(c *TokenCodec) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewTokenCodec builds a codec from the signing key, issuer and TTL in cfg
func NewTokenCodec(cfg Config, opts ...TokenCodecOption) *TokenCodec {
	c := &TokenCodec{
		signingKey: []byte(cfg.GetSigningKey()),
		issuer:     cfg.GetTokenIssuer(),
		ttl:        time.Duration(cfg.GetTokenExpiration()) * time.Hour,
		now:        time.Now,
		logger:     newDefLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// TTL returns the configured token lifetime
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue builds and signs claims for identity. The expiry is always the
// issued-at time plus the configured TTL.
func (c *TokenCodec) Issue(identity Identity) (string, *Claims, error) {
	if identity == nil || identity.ID() == "" {
		return "", nil, NewEncodingError(errEmptySubject)
	}

	issuedAt := c.clock()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   identity.ID(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(c.ttl)),
			ID:        uuid.NewString(),
		},
		Email:    identity.Email(),
		Username: identity.Username(),
		Mobile:   identity.Mobile(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		c.logger.Error("token codec failed to sign claims", "subject", claims.Subject, "error", err)
		return "", nil, NewEncodingError(err)
	}

	return signed, claims, nil
}

// Verify decodes token, checks its signature, issuer and expiry. Expired and
// invalid tokens fail the same way; only the logs tell them apart.
func (c *TokenCodec) Verify(tokenString string) (*Claims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock),
	}
	if c.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			c.logger.Debug("token codec rejected expired token", "error", err)
		} else {
			c.logger.Warn("token codec rejected invalid token", "error", err)
		}
		return nil, NewDecodingError(err)
	}

	if !token.Valid || claims.Subject == "" {
		c.logger.Warn("token codec rejected token without subject")
		return nil, NewDecodingError(errEmptySubject)
	}

	return claims, nil
}

// clock returns the current time in UTC at second resolution
func (c *TokenCodec) clock() time.Time {
	return c.now().UTC().Truncate(time.Second)
}
