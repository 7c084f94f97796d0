package opshttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"danoo/internal/executor"
	"danoo/internal/store/candles"
	"danoo/internal/store/results"
)

// LiveStatus is the snapshot served at /api/live/status.
type LiveStatus struct {
	Stream    string              `json:"stream"`
	State     string              `json:"state"`
	LastPrice float64             `json:"last_price"`
	Buffered  int                 `json:"buffered"`
	Mode      string              `json:"mode"`
	Equity    float64             `json:"equity"`
	Positions []executor.Position `json:"positions"`
	Stats     executor.Stats      `json:"stats"`
}

// LiveView is implemented by the live service.
type LiveView interface {
	LiveStatus(ctx context.Context) (LiveStatus, error)
}

// RunReader is the read side of the backtest results store.
type RunReader interface {
	List(ctx context.Context, symbol, strategy string, limit int) ([]results.Summary, error)
	Get(ctx context.Context, id string) (results.Run, error)
}

// CandleCatalog lists what the candle cache holds.
type CandleCatalog interface {
	Series(ctx context.Context) ([]candles.Coverage, error)
}

type Router struct {
	live  LiveView
	runs  RunReader
	cache CandleCatalog
}

func NewRouter(live LiveView, runs RunReader, cache CandleCatalog) *Router {
	return &Router{live: live, runs: runs, cache: cache}
}

// Register mounts the routes whose backing service is present.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	if r.live != nil {
		group.GET("/live/status", r.handleLiveStatus)
	}
	if r.runs != nil {
		group.GET("/backtests", r.handleListRuns)
		group.GET("/backtests/:id", r.handleGetRun)
	}
	if r.cache != nil {
		group.GET("/candles", r.handleListSeries)
	}
}

func (r *Router) handleListSeries(c *gin.Context) {
	series, err := r.cache.Series(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if series == nil {
		series = []candles.Coverage{}
	}
	c.JSON(http.StatusOK, gin.H{"series": series})
}

func (r *Router) handleLiveStatus(c *gin.Context) {
	st, err := r.live.LiveStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if st.Positions == nil {
		st.Positions = []executor.Position{}
	}
	c.JSON(http.StatusOK, st)
}

func (r *Router) handleListRuns(c *gin.Context) {
	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = v
	}
	list, err := r.runs.List(c.Request.Context(), strings.TrimSpace(c.Query("symbol")), strings.TrimSpace(c.Query("strategy")), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": list})
}

func (r *Router) handleGetRun(c *gin.Context) {
	run, err := r.runs.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, results.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}
