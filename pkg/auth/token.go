package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/platinummonkey/gatehouse/pkg/access"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

const (
	// MinSecretLength is the minimum HS256 signing key size in bytes
	MinSecretLength = 32
	// DefaultAccessTTL is the lifetime of ordinary access credentials
	DefaultAccessTTL = 15 * time.Minute
	// MaxEscalationTTL bounds assumed-tenant credentials
	MaxEscalationTTL = 30 * time.Minute
)

// Revocations reports revoked escalations
type Revocations interface {
	IsRevoked(ctx context.Context, escalationID string) (bool, error)
}

// TokenConfig configures credential signing and verification
type TokenConfig struct {
	Secret    []byte
	Issuer    string
	AccessTTL time.Duration
	// MaxEscalationTTL is the longest escalation lifetime accepted. It cannot
	// exceed the package MaxEscalationTTL.
	MaxEscalationTTL time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// TokenManager issues and resolves HS256 access credentials
type TokenManager struct {
	secret           []byte
	issuer           string
	accessTTL        time.Duration
	maxEscalationTTL time.Duration
	now              func() time.Time
	revocations      Revocations
}

// NewTokenManager creates a token manager. revocations may be nil.
func NewTokenManager(cfg TokenConfig, revocations Revocations) (*TokenManager, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.MaxEscalationTTL <= 0 || cfg.MaxEscalationTTL > MaxEscalationTTL {
		cfg.MaxEscalationTTL = MaxEscalationTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &TokenManager{
		secret:           cfg.Secret,
		issuer:           cfg.Issuer,
		accessTTL:        cfg.AccessTTL,
		maxEscalationTTL: cfg.MaxEscalationTTL,
		now:              cfg.Now,
		revocations:      revocations,
	}, nil
}

// MaxEscalationTTL returns the configured escalation ceiling
func (tm *TokenManager) MaxEscalationTTL() time.Duration {
	return tm.maxEscalationTTL
}

// Issue signs an access credential for subject
func (tm *TokenManager) Issue(subject Subject) (string, *Identity, error) {
	if subject.UserID == "" {
		return "", nil, errors.New("subject user id is required")
	}
	ttl := subject.TTL
	if ttl <= 0 {
		ttl = tm.accessTTL
	}
	claims := Claims{
		Role:       string(subject.Role),
		TenantID:   subject.TenantID,
		SuperAdmin: subject.SuperAdmin || subject.Role == rbac.RoleSuperAdmin,
	}
	return tm.sign(subject.UserID, claims, ttl)
}

// issueEscalation signs an assumed-tenant credential for esc
func (tm *TokenManager) issueEscalation(esc *Escalation) (string, *Identity, error) {
	claims := Claims{
		Role:            string(rbac.RoleSuperAdmin),
		SuperAdmin:      true,
		AssumedTenantID: esc.TenantID,
		EscalationID:    esc.ID,
	}
	claims.IssuedAt = jwt.NewNumericDate(esc.IssuedAt)
	claims.ExpiresAt = jwt.NewNumericDate(esc.ExpiresAt)
	return tm.signClaims(esc.AdminUserID, claims)
}

func (tm *TokenManager) sign(userID string, claims Claims, ttl time.Duration) (string, *Identity, error) {
	now := tm.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return tm.signClaims(userID, claims)
}

func (tm *TokenManager) signClaims(userID string, claims Claims) (string, *Identity, error) {
	claims.Subject = userID
	claims.Issuer = tm.issuer
	claims.ID = uuid.NewString()
	claims.NotBefore = claims.IssuedAt

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	identity, err := tm.identityFromClaims(&claims)
	if err != nil {
		return "", nil, err
	}
	return signed, identity, nil
}

// Resolve verifies raw and returns the caller identity. Expired credentials
// fail with ErrExpiredCredential; every other defect is ErrInvalidCredential.
func (tm *TokenManager) Resolve(ctx context.Context, raw string) (*Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, access.MissingCredential()
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(token *jwt.Token) (interface{}, error) { return tm.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithTimeFunc(tm.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, access.ExpiredCredential()
		}
		return nil, access.InvalidCredential(err)
	}

	identity, err := tm.identityFromClaims(claims)
	if err != nil {
		return nil, access.InvalidCredential(err)
	}

	if identity.IsEscalated() && tm.revocations != nil {
		revoked, err := tm.revocations.IsRevoked(ctx, identity.EscalationID)
		if err != nil {
			return nil, access.Internal("failed to check escalation revocation", err)
		}
		if revoked {
			return nil, access.InvalidCredential(fmt.Errorf("escalation %s was revoked", identity.EscalationID))
		}
	}
	return identity, nil
}

func (tm *TokenManager) identityFromClaims(claims *Claims) (*Identity, error) {
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	identity := &Identity{
		UserID:       claims.Subject,
		TenantClaim:  claims.TenantID,
		IsSuperAdmin: claims.SuperAdmin,
		TokenID:      claims.ID,
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}

	if claims.Role != "" {
		role, ok := rbac.ParseRole(claims.Role)
		if !ok {
			return nil, fmt.Errorf("unknown role %q", claims.Role)
		}
		identity.Role = role
		if role == rbac.RoleSuperAdmin {
			identity.IsSuperAdmin = true
		}
	}
	if identity.IsSuperAdmin {
		identity.Role = rbac.RoleSuperAdmin
	}

	if claims.AssumedTenantID != "" {
		if !identity.IsSuperAdmin {
			return nil, errors.New("assumed tenant on a non super admin token")
		}
		if claims.EscalationID == "" {
			return nil, errors.New("assumed tenant without escalation id")
		}
		if claims.IssuedAt == nil || claims.ExpiresAt == nil {
			return nil, errors.New("escalation must carry iat and exp")
		}
		if lifetime := identity.ExpiresAt.Sub(identity.IssuedAt); lifetime > tm.maxEscalationTTL {
			return nil, fmt.Errorf("escalation lifetime %s exceeds %s", lifetime, tm.maxEscalationTTL)
		}
		identity.AssumedTenantID = claims.AssumedTenantID
		identity.EscalationID = claims.EscalationID
	}
	return identity, nil
}

// BearerToken extracts the credential from an Authorization header value.
// It returns "" when the header is absent or not a bearer credential.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
