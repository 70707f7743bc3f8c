package server

import (
	"crypto/subtle"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	obscontext "github.com/smallbiznis/comptoir/internal/observability/context"
	"go.uber.org/zap"
)

const (
	contextPrincipalKey = "principal"
	bearerPrefix        = "Bearer "
)

var errCronForbidden = domainerr.Wrap(domainerr.ErrForbidden, "invalid_cron_secret")

// PrincipalRequired authenticates the bearer token and resolves its subject
// to a principal through the identity service.
func (s *Server) PrincipalRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principalID, err := s.verifyToken(raw)
		if err != nil {
			s.log.Debug("rejected bearer token", zap.Error(err))
			AbortWithError(c, ErrUnauthorized)
			return
		}

		p, err := s.identitySvc.Resolve(c.Request.Context(), principalID)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextPrincipalKey, p)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), p.LogTenant(), p.LogActor()))
		c.Next()
	}
}

func (s *Server) verifyToken(raw string) (snowflake.ID, error) {
	secret := strings.TrimSpace(s.cfg.AuthJWTSecret)
	if secret == "" {
		return 0, errors.New("jwt secret not configured")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, err
	}

	id, err := snowflake.ParseString(strings.TrimSpace(claims.Subject))
	if err != nil || id == 0 {
		return 0, errors.New("invalid subject")
	}
	return id, nil
}

// CronSecretRequired guards system endpoints called by the platform cron.
func (s *Server) CronSecretRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		secret := strings.TrimSpace(s.cfg.CronSecret)
		if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			s.log.Warn("cron call rejected", zap.String("path", c.FullPath()))
			AbortWithError(c, errCronForbidden)
			return
		}
		c.Next()
	}
}

// RateLimit throttles each principal once authenticated. Limiter outages
// let the request through.
func (s *Server) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		result, err := s.limiter.Allow(c.Request.Context(), principal(c).ID.String())
		if err != nil {
			s.log.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{
				Error: errorPayload{Code: "rate_limited", Message: "too many requests"},
			})
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

func principal(c *gin.Context) identitydomain.Principal {
	if value, ok := c.Get(contextPrincipalKey); ok {
		if p, ok := value.(identitydomain.Principal); ok {
			return p
		}
	}
	return identitydomain.Principal{}
}
