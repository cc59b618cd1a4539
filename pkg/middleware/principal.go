package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	RemoteUserHeader  = "X-Remote-User"
	RemoteEmailHeader = "X-Remote-Email"
)

// PrincipalContextKey holds the Principal set by RemoteUser.
const PrincipalContextKey = "contaminer.principal"

// Principal is the user authenticated by the fronting proxy. An empty ID is
// an anonymous visitor.
type Principal struct {
	ID    string
	Email string
}

// RemoteUser reads the identity forwarded by the authenticating proxy.
func RemoteUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Principal{
			ID:    strings.TrimSpace(c.GetHeader(RemoteUserHeader)),
			Email: strings.TrimSpace(c.GetHeader(RemoteEmailHeader)),
		}
		c.Set(PrincipalContextKey, p)
		c.Next()
	}
}

// PrincipalFrom returns the principal of the request, anonymous if the
// middleware did not run.
func PrincipalFrom(c *gin.Context) Principal {
	if v, ok := c.Get(PrincipalContextKey); ok {
		if p, ok := v.(Principal); ok {
			return p
		}
	}
	return Principal{}
}
