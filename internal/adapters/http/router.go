package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/arcadelab/pusher/internal/config"
	"github.com/arcadelab/pusher/internal/gateway"
	"github.com/arcadelab/pusher/internal/worker"
)

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *gateway.Controller, workers []*worker.Worker) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Str("gateway_id", string(ctl.ID())).Msg("router setup")

	api := r.Group("/api")
	api.GET("/ws", func(c *gin.Context) {
		ctl.HandleWS(ctx, c)
	})

	// Read-only introspection for liveness probes; not part of the
	// coordination protocol.
	r.GET("/status", func(c *gin.Context) {
		ws := make([]worker.StatusSnapshot, 0, len(workers))
		for _, w := range workers {
			ws = append(ws, w.StatusSnapshot())
		}
		c.JSON(http.StatusOK, gin.H{
			"gateway": ctl.StatusSnapshot(),
			"workers": ws,
		})
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	return r
}
