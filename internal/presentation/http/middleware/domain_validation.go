package middleware

import (
	"net"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
)

// DomainValidator reports whether a domain is registered for a tenant.
type DomainValidator interface {
	ValidateDomain(tenantID, domain string) bool
}

// DomainValidationMiddleware rejects requests whose Origin, or Host when no
// Origin is sent, is not registered for the tenant. Loopback hosts always
// pass so local tooling can reach the admin API.
func DomainValidationMiddleware(validator DomainValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || isLoopbackHost(c.Request.Host) {
			c.Next()
			return
		}

		tenantCtx, ok := GetTenantContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "tenant context required"})
			return
		}

		if !validator.ValidateDomain(tenantCtx.TenantID, requestDomain(c.Request)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "domain not allowed for tenant", "tenantId": tenantCtx.TenantID})
			return
		}
		c.Next()
	}
}

// requestDomain is the Origin's hostname, falling back to the Host without port.
func requestDomain(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		u, err := url.Parse(origin)
		if err != nil {
			return ""
		}
		return u.Hostname()
	}
	return stripPort(r.Host)
}

func stripPort(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}

func isLoopbackHost(hostport string) bool {
	host := stripPort(hostport)
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
