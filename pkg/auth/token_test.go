package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/access"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T, c *clock, revocations Revocations) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager(TokenConfig{
		Secret: testSecret,
		Issuer: "gatehouse-test",
		Now:    c.Now,
	}, revocations)
	require.NoError(t, err)
	return tm
}

func signRaw(t *testing.T, method jwt.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestNewTokenManager_Validation(t *testing.T) {
	_, err := NewTokenManager(TokenConfig{Secret: []byte("short"), Issuer: "x"}, nil)
	assert.Error(t, err)

	_, err = NewTokenManager(TokenConfig{Secret: testSecret}, nil)
	assert.Error(t, err)

	tm, err := NewTokenManager(TokenConfig{Secret: testSecret, Issuer: "x", MaxEscalationTTL: 4 * time.Hour}, nil)
	require.NoError(t, err)
	assert.Equal(t, MaxEscalationTTL, tm.MaxEscalationTTL())
}

func TestTokenManager_IssueAndResolve(t *testing.T) {
	c := newClock()
	tm := newTestManager(t, c, nil)

	raw, issued, err := tm.Issue(Subject{UserID: "u1", Role: rbac.RoleManager, TenantID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "u1", issued.UserID)

	identity, err := tm.Resolve(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.UserID)
	assert.Equal(t, rbac.RoleManager, identity.Role)
	assert.Equal(t, "t1", identity.TenantClaim)
	assert.False(t, identity.IsSuperAdmin)
	assert.False(t, identity.IsEscalated())
	assert.NotEmpty(t, identity.TokenID)
	assert.True(t, c.Now().Add(DefaultAccessTTL).Equal(identity.ExpiresAt))
}

func TestTokenManager_SuperAdmin(t *testing.T) {
	tm := newTestManager(t, newClock(), nil)

	raw, _, err := tm.Issue(Subject{UserID: "admin", SuperAdmin: true})
	require.NoError(t, err)

	identity, err := tm.Resolve(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, identity.IsSuperAdmin)
	assert.Equal(t, rbac.RoleSuperAdmin, identity.Role)
}

func TestTokenManager_Expiry(t *testing.T) {
	c := newClock()
	tm := newTestManager(t, c, nil)

	raw, _, err := tm.Issue(Subject{UserID: "u1", TTL: 10 * time.Minute})
	require.NoError(t, err)

	c.Advance(11 * time.Minute)
	_, err = tm.Resolve(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, access.ErrExpiredCredential))
	assert.False(t, errors.Is(err, access.ErrInvalidCredential))

	accessErr, _ := access.As(err)
	assert.Equal(t, access.CodeTokenExpired, accessErr.Code)
}

func TestTokenManager_InvalidCredentials(t *testing.T) {
	c := newClock()
	tm := newTestManager(t, c, nil)
	now := c.Now()

	valid := func() Claims {
		return Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "gatehouse-test",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		}}
	}

	noExp := valid()
	noExp.ExpiresAt = nil
	wrongIssuer := valid()
	wrongIssuer.Issuer = "someone-else"
	noSubject := valid()
	noSubject.Subject = ""
	badRole := valid()
	badRole.Role = "root"
	assumedWithoutAdmin := valid()
	assumedWithoutAdmin.AssumedTenantID = "t1"
	assumedWithoutAdmin.EscalationID = "e1"
	assumedWithoutEscalation := valid()
	assumedWithoutEscalation.SuperAdmin = true
	assumedWithoutEscalation.AssumedTenantID = "t1"
	overlong := valid()
	overlong.SuperAdmin = true
	overlong.AssumedTenantID = "t1"
	overlong.EscalationID = "e1"
	overlong.ExpiresAt = jwt.NewNumericDate(now.Add(2 * time.Hour))

	tests := []struct {
		name string
		raw  string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong key", signRaw(t, jwt.SigningMethodHS256, []byte("ffffffffffffffffffffffffffffffff"), valid())},
		{"wrong alg", signRaw(t, jwt.SigningMethodHS512, testSecret, valid())},
		{"alg none", signRaw(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid())},
		{"missing exp", signRaw(t, jwt.SigningMethodHS256, testSecret, noExp)},
		{"wrong issuer", signRaw(t, jwt.SigningMethodHS256, testSecret, wrongIssuer)},
		{"missing subject", signRaw(t, jwt.SigningMethodHS256, testSecret, noSubject)},
		{"unknown role", signRaw(t, jwt.SigningMethodHS256, testSecret, badRole)},
		{"assumed tenant without super admin", signRaw(t, jwt.SigningMethodHS256, testSecret, assumedWithoutAdmin)},
		{"assumed tenant without escalation id", signRaw(t, jwt.SigningMethodHS256, testSecret, assumedWithoutEscalation)},
		{"escalation longer than max", signRaw(t, jwt.SigningMethodHS256, testSecret, overlong)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tm.Resolve(context.Background(), tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, access.ErrInvalidCredential), "got %v", err)
		})
	}
}

func TestTokenManager_MissingCredential(t *testing.T) {
	tm := newTestManager(t, newClock(), nil)

	_, err := tm.Resolve(context.Background(), "  ")
	assert.True(t, errors.Is(err, access.ErrMissingCredential))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "", BearerToken("Basic dXNlcjpwYXNz"))
	assert.Equal(t, "", BearerToken("abc"))
	assert.Equal(t, "", BearerToken(""))
}
