package monitor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"econbot/internal/fetcher"
)

type ItemCounter interface {
	Count(ctx context.Context) (int64, error)
}

type Previewer interface {
	Preview(ctx context.Context) (string, error)
}

type SourceStat struct {
	Source     string `json:"source"`
	Category   string `json:"category"`
	New        int    `json:"new"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Stats keeps what the last cycles did.
type Stats struct {
	mu sync.RWMutex

	Cycles      int64
	NewItems    int64
	Failures    int64
	LastCycle   time.Time
	LastResults []SourceStat
}

func (s *Stats) Record(results []fetcher.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Cycles++
	s.LastCycle = time.Now()
	s.LastResults = lo.Map(results, func(r fetcher.Result, _ int) SourceStat {
		stat := SourceStat{
			Source:     r.Source,
			Category:   string(r.Category),
			New:        r.New,
			DurationMs: r.Duration.Milliseconds(),
		}
		if r.Err != nil {
			stat.Error = r.Err.Error()
		}

		return stat
	})
	s.NewItems += int64(lo.SumBy(results, func(r fetcher.Result) int { return r.New }))
	s.Failures += int64(lo.CountBy(results, func(r fetcher.Result) bool { return r.Err != nil }))
}

func (s *Stats) snapshot() gin.H {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lastCycle := ""
	if !s.LastCycle.IsZero() {
		lastCycle = s.LastCycle.Format(time.RFC3339)
	}

	return gin.H{
		"cycles":       s.Cycles,
		"new_items":    s.NewItems,
		"failures":     s.Failures,
		"last_cycle":   lastCycle,
		"last_results": s.LastResults,
	}
}

type Server struct {
	stats   *Stats
	items   ItemCounter
	digest  Previewer
	maxIdle time.Duration
	log     *slog.Logger
	engine  *gin.Engine
}

// New builds the router. maxIdle is how long without a finished cycle still counts as healthy.
func New(stats *Stats, items ItemCounter, digest Previewer, maxIdle time.Duration, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		stats:   stats,
		items:   items,
		digest:  digest,
		maxIdle: maxIdle,
		log:     log.With("component", "monitor"),
		engine:  gin.New(),
	}
	s.engine.Use(gin.Recovery())

	s.engine.GET("/health", s.GetHealth)
	s.engine.GET("/stats", s.GetStats)
	s.engine.GET("/digest", s.GetDigest)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) GetHealth(c *gin.Context) {
	s.stats.mu.RLock()
	last := s.stats.LastCycle
	s.stats.mu.RUnlock()

	switch {
	case last.IsZero():
		c.JSON(http.StatusOK, gin.H{"status": "starting"})
	case s.maxIdle > 0 && time.Since(last) > s.maxIdle:
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "stale", "last_cycle": last.Format(time.RFC3339)})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok", "last_cycle": last.Format(time.RFC3339)})
	}
}

func (s *Server) GetStats(c *gin.Context) {
	res := s.stats.snapshot()

	count, err := s.items.Count(c.Request.Context())
	if err != nil {
		s.log.Error("error counting items", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	res["stored_items"] = count

	c.JSON(http.StatusOK, res)
}

func (s *Server) GetDigest(c *gin.Context) {
	text, err := s.digest.Preview(c.Request.Context())
	if err != nil {
		s.log.Error("error composing digest", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"digest": text})
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
