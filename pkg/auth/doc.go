// Package auth turns bearer credentials into caller identities and issues
// time-boxed tenant escalations for super admins.
//
// # Credentials
//
// Access credentials are HS256 JWTs. Only HS256 is accepted; the issuer and an
// expiry are required.
//
//	tm, err := auth.NewTokenManager(auth.TokenConfig{
//		Secret: []byte(os.Getenv("GATEHOUSE_JWT_SECRET")),
//		Issuer: "gatehouse",
//	}, revocations)
//
//	identity, err := tm.Resolve(ctx, auth.BearerToken(r.Header.Get("Authorization")))
//
// An expired credential fails with access.ErrExpiredCredential so clients can
// refresh; every other defect is access.ErrInvalidCredential.
//
// # Escalations
//
// A super admin can assume a tenant for at most 30 minutes:
//
//	esc, token, err := escalator.AssumeTenant(ctx, admin, auth.AssumeRequest{
//		TenantID:      "t1",
//		Justification: "investigating ticket #4411",
//	})
//
// The escalation is written to the audit trail before the token is handed
// out. Escalated credentials cannot be used to escalate again, and a revoked
// escalation stops resolving immediately.
package auth
