package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sigrelay/sigrelay/internal/adapters/gateway"
	"github.com/sigrelay/sigrelay/internal/adapters/signal"
	"github.com/sigrelay/sigrelay/internal/config"
)

const (
	credentialCookie = "sr_authtoken"
	connCookie       = "sr_connid"
)

// ConnTokenMiddleware gives every client a sticky connection id cookie, so
// reconnects from the same browser are correlatable in logs.
func ConnTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(connCookie)
		if token == "" {
			token = uuid.NewString()
			c.SetCookie(connCookie, token, 3600*24*7, "/", "", false, true)
		}
		c.Set("conn_token", token)
		c.Next()
	}
}

// AdmissionMiddleware validates the caller's credential against the external
// session-validation service before the websocket upgrade. It fails closed:
// no definite positive answer, no connection.
func AdmissionMiddleware(validator *gateway.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential, _ := c.Cookie(credentialCookie)
		if credential == "" {
			credential = c.Query("token")
		}
		err := validator.Validate(c.Request.Context(), credential)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, gateway.ErrCredentialInvalid):
			log.Info().Str("module", "adapters.http").
				Str("conn", c.GetString("conn_token")).
				Msg("connection refused: invalid credential")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
		default:
			log.Error().Str("module", "adapters.http").Err(err).
				Msg("connection refused: validation service unavailable")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "validation unavailable"})
		}
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.Controller, validator *gateway.Validator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("SigrelaySessions", store))
	r.Use(ConnTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api := r.Group("/api")
	ws := api.Group("/ws")
	if validator != nil {
		ws.Use(AdmissionMiddleware(validator))
	} else {
		log.Warn().Str("module", "adapters.http").Msg("admission checks disabled, no auth endpoint configured")
	}

	ws.GET("/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").
			Str("conn", c.GetString("conn_token")).
			Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	return r
}
