// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the coordinator
// service.
//
// The auth middleware extracts a bearer token from the Authorization
// header, validates it with the configured AuthProvider, and stores the
// resulting AuthInfo in the Gin context for downstream handlers.
//
// With NopAuthProvider (the default when no admin token is configured),
// every request authenticates as "local-user". Deployments that set an
// admin token get StaticTokenProvider on the admin routes instead.
package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ErrUnauthorized is returned when token validation fails.
var ErrUnauthorized = errors.New("unauthorized")

// =============================================================================
// Auth Providers
// =============================================================================

// AuthInfo is the identity attached to an authenticated request.
type AuthInfo struct {
	// UserID identifies the authenticated caller. Never empty.
	UserID string

	// Roles lists the caller's role memberships.
	Roles []string
}

// HasRole reports whether the caller holds the given role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates authentication tokens and returns caller
// identity. Implementations must be safe for concurrent use.
type AuthProvider interface {
	// Validate checks the token and returns the caller's identity, or
	// ErrUnauthorized (possibly wrapped) when the token is invalid.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider accepts every request as a local single-user caller.
// Any token, including none at all, authenticates successfully. This is
// the default for local deployments with no admin token configured.
type NopAuthProvider struct{}

// Validate always returns the local user with admin privileges.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{"admin"},
	}, nil
}

// StaticTokenProvider validates requests against one configured shared
// secret. It guards the admin routes when an admin token is set.
type StaticTokenProvider struct {
	token string
}

// NewStaticTokenProvider builds a provider for the given secret. An
// empty secret is a configuration error at the call site; the provider
// rejects every request rather than silently allowing them.
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: token}
}

// Validate compares the presented token to the configured secret in
// constant time.
func (p *StaticTokenProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	if p.token == "" || token == "" {
		return nil, fmt.Errorf("missing admin token: %w", ErrUnauthorized)
	}
	if subtle.ConstantTimeCompare([]byte(p.token), []byte(token)) != 1 {
		return nil, fmt.Errorf("invalid admin token: %w", ErrUnauthorized)
	}
	return &AuthInfo{
		UserID: "admin-token",
		Roles:  []string{"admin"},
	}, nil
}

// =============================================================================
// Context Helpers
// =============================================================================

// authInfoKey is the context key for storing AuthInfo. A dedicated key
// prevents collisions with other context values.
const authInfoKey = "aleutian_recall_auth_info"

// SetAuthInfo stores the authenticated caller in the Gin context.
func SetAuthInfo(c *gin.Context, info *AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo returns the authenticated caller, or nil when the request
// did not pass through AuthMiddleware.
func GetAuthInfo(c *gin.Context) *AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware authenticates requests with the given provider.
//
// # Description
//
// Extracts the bearer token from the Authorization header, validates it,
// and stores the resulting AuthInfo for handlers. A missing or malformed
// header validates as the empty token, which NopAuthProvider accepts and
// StaticTokenProvider rejects.
func AuthMiddleware(provider AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		authInfo, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		SetAuthInfo(c, authInfo)
		c.Next()
	}
}

// extractBearerToken parses "Authorization: Bearer <token>". The scheme
// is case-insensitive per RFC 7235. Returns "" when the header is
// missing or malformed.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
