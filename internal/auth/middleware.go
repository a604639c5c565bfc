// Package auth verifies bearer tokens issued by the identity provider.
package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"classattend/internal/identity"
)

const (
	principalKey = "principal"
	identityKey  = "identity"
)

// Principal is the authenticated caller.
type Principal struct {
	UID   string
	Email string
}

// Verifier checks a bearer token and returns its subject.
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// IdentityLookup resolves the enrolled identity of a caller.
type IdentityLookup interface {
	Get(ctx context.Context, uid string) (*identity.Identity, error)
}

// Authenticate enforces bearer tokens.
func Authenticate(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized: No token provided"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		p, err := v.Verify(c.Request.Context(), tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized: Invalid token"})
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// PrincipalFrom returns the caller set by Authenticate.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// RequireRole allows only enrolled callers with the given role. The
// resolved identity is available to handlers through IdentityFrom.
func RequireRole(lookup IdentityLookup, role identity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		id, err := lookup.Get(c.Request.Context(), p.UID)
		if errors.Is(err, identity.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "User is not registered"})
			return
		}
		if err != nil {
			log.Printf("role lookup for %s failed: %v", p.UID, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
			return
		}
		if id.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// IdentityFrom returns the identity resolved by RequireRole.
func IdentityFrom(c *gin.Context) (*identity.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*identity.Identity)
	return id, ok
}
