// Package auth provides bearer token authentication for adjunct-gateway.
//
// # JWT Tokens
//
// API callers authenticate with HS256 JWTs signed with auth.jwt_secret.
// Tokens carry the caller in "sub", the gateway as "iss", and an expiry:
//
//	v := auth.NewJWTVerifier([]byte(secret))
//	token, err := v.Generate("mobile-app", 24*time.Hour)
//	subject, err := v.Verify(token)
//
// `adjunct-gateway token -sub NAME` mints tokens from the command line.
//
// # HTTP Middleware
//
// HTTPAuthMiddleware guards /ask-ai and /api/* when a secret is configured.
// Requests without a valid "Authorization: Bearer <token>" header get a 401
// with a JSON error body. Handlers read the caller with FromContext.
package auth
