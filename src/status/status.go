// Package status serves the agent's lifecycle state over HTTP.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stake-plus/chat-agent/src/agent"
	"go.uber.org/zap"
)

// Source provides lifecycle snapshots.
type Source interface {
	Snapshot() agent.Snapshot
}

type statusResponse struct {
	Phase      string   `json:"phase"`
	Ready      bool     `json:"ready"`
	ReadyCount int      `json:"readyCount"`
	ReadyAt    string   `json:"readyAt,omitempty"`
	Loaded     []string `json:"loaded"`
	Extensions any      `json:"extensions"`
}

// New builds the router for src.
func New(src Source, log *zap.Logger) *gin.Engine {
	g := gin.New()
	g.Use(requestLogger(log), gin.Recovery())
	attachRoutes(g, src)
	return g
}

func attachRoutes(r *gin.Engine, src Source) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		snap := src.Snapshot()
		code := http.StatusServiceUnavailable
		if snap.Phase == agent.PhaseReady {
			code = http.StatusOK
		}
		c.JSON(code, gin.H{"phase": snap.Phase.String()})
	})

	v1 := r.Group("/v1")
	{
		v1.GET("/status", func(c *gin.Context) {
			snap := src.Snapshot()
			resp := statusResponse{
				Phase:      snap.Phase.String(),
				Ready:      snap.Phase == agent.PhaseReady,
				ReadyCount: snap.ReadyCount,
				Loaded:     snap.Loaded(),
				Extensions: snap.Extensions,
			}
			if resp.Loaded == nil {
				resp.Loaded = []string{}
			}
			if !snap.ReadyAt.IsZero() {
				resp.ReadyAt = snap.ReadyAt.UTC().Format(time.RFC3339)
			}
			c.JSON(http.StatusOK, resp)
		})
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

// Serve listens on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, src Source, log *zap.Logger) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           New(src, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	log.Info("Status endpoint listening on " + addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}
