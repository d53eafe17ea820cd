// Package httpapi exposes health, metrics and a read-only JSON view of watches and snapshots.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"coinwatch/internal/assets"
	"coinwatch/internal/errs"
	"coinwatch/internal/fetcher"
	"coinwatch/internal/news"
	"coinwatch/internal/observability"
	"coinwatch/internal/service"
	"coinwatch/internal/storage"
)

// MaxNewsLimit bounds the ?limit= of /api/v1/news.
const MaxNewsLimit = 50

// NewsSource supplies the aggregated news snapshot.
type NewsSource interface {
	CryptoNews(ctx context.Context, perFeedLimit, finalLimit int) ([]news.Item, error)
}

// Options wire the HTTP surface.
type Options struct {
	ListenAddr  string
	// APIToken guards the per-chat watch listing; empty disables that route.
	APIToken    string
	Watches     *service.Watches
	Catalog     *assets.Catalog
	Quotes      fetcher.QuoteSource
	Sentiment   fetcher.SentimentSource
	News        NewsSource
	Metrics     *observability.Metrics
	NewsPerFeed int
	NewsFinal   int
}

// Server is the gin-backed HTTP surface.
type Server struct {
	opts    Options
	engine  *gin.Engine
	started time.Time
	logger  zerolog.Logger
}

type watchView struct {
	ID             int64               `json:"id"`
	Owner          string              `json:"owner"`
	Symbol         string              `json:"symbol"`
	AssetRef       string              `json:"asset_ref"`
	Direction      storage.Direction   `json:"direction"`
	Target         decimal.Decimal     `json:"target"`
	Active         bool                `json:"active"`
	CreatedAt      time.Time           `json:"created_at"`
	TriggeredAt    *time.Time          `json:"triggered_at,omitempty"`
	TriggeredPrice decimal.NullDecimal `json:"triggered_price"`
}

type quoteView struct {
	Symbol      string          `json:"symbol"`
	AssetRef    string          `json:"asset_ref"`
	PriceUSD    decimal.Decimal `json:"price_usd"`
	PriceAlt    *string         `json:"price_alt,omitempty"`
	AltCurrency string          `json:"alt_currency,omitempty"`
	AsOf        time.Time       `json:"as_of"`
}

// New builds the router.
func New(opts Options, logger zerolog.Logger) *Server {
	if opts.NewsPerFeed <= 0 {
		opts.NewsPerFeed = news.DefaultPerFeedLimit
	}
	if opts.NewsFinal <= 0 {
		opts.NewsFinal = news.DefaultFinalLimit
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		opts:    opts,
		engine:  gin.New(),
		started: time.Now(),
		logger:  logger.With().Str("component", "http").Logger(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(s.opts.Metrics.Handler()))

	api := r.Group("/api/v1")
	{
		api.GET("/assets", s.listAssets)
		if s.opts.APIToken != "" {
			api.GET("/watches", s.requireToken(), s.listWatches)
		}
		api.GET("/quotes/:symbol", s.getQuote)
		api.GET("/sentiment", s.getSentiment)
		api.GET("/news", s.getNews)
	}
}

// Handler exposes the router (tests, embedding).
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.ListenAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.ListenAddr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "coinwatch",
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) listAssets(c *gin.Context) {
	out := make([]gin.H, 0)
	for _, sym := range s.opts.Catalog.Symbols() {
		ref, _ := s.opts.Catalog.RefFor(sym)
		out = append(out, gin.H{"symbol": sym, "asset_ref": ref})
	}
	c.JSON(http.StatusOK, gin.H{"provider": s.opts.Catalog.Provider(), "assets": out})
}

func (s *Server) listWatches(c *gin.Context) {
	watches, err := s.opts.Watches.ListForOwner(c.Request.Context(), c.Query("owner"))
	if err != nil {
		s.fail(c, err)
		return
	}

	if raw := c.Query("active"); raw != "" {
		wantActive, perr := strconv.ParseBool(raw)
		if perr != nil {
			s.fail(c, errs.Validation("active must be true or false"))
			return
		}
		filtered := watches[:0]
		for _, w := range watches {
			if w.Active == wantActive {
				filtered = append(filtered, w)
			}
		}
		watches = filtered
	}

	views := make([]watchView, 0, len(watches))
	for _, w := range watches {
		views = append(views, watchView{
			ID:             w.ID,
			Owner:          w.Owner,
			Symbol:         w.Symbol,
			AssetRef:       w.AssetRef,
			Direction:      w.Direction,
			Target:         w.Target,
			Active:         w.Active,
			CreatedAt:      w.CreatedAt,
			TriggeredAt:    w.TriggeredAt,
			TriggeredPrice: w.TriggeredPrice,
		})
	}
	c.JSON(http.StatusOK, gin.H{"watches": views, "count": len(views)})
}

func (s *Server) getQuote(c *gin.Context) {
	symbol := assets.NormalizeSymbol(c.Param("symbol"))
	ref, ok := s.opts.Catalog.RefFor(symbol)
	if !ok {
		s.fail(c, errs.NotFound("quote", "unknown asset "+symbol))
		return
	}

	quote, err := s.opts.Quotes.FetchQuote(c.Request.Context(), ref)
	if err != nil {
		s.fail(c, err)
		return
	}

	view := quoteView{Symbol: symbol, AssetRef: quote.AssetRef, PriceUSD: quote.PriceUSD, AsOf: quote.AsOf}
	if quote.HasAlt() {
		alt := quote.PriceAlt.String()
		view.PriceAlt = &alt
		view.AltCurrency = quote.AltCurrency
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) getSentiment(c *gin.Context) {
	reading, err := s.opts.Sentiment.FetchSentiment(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"value":          reading.Value,
		"classification": reading.Classification,
		"as_of":          reading.AsOf,
	})
}

func (s *Server) getNews(c *gin.Context) {
	limit := s.opts.NewsFinal
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > MaxNewsLimit {
			s.fail(c, errs.Validation(fmt.Sprintf("limit must be an integer between 1 and %d", MaxNewsLimit)))
			return
		}
		limit = n
	}

	items, err := s.opts.News.CryptoNews(c.Request.Context(), s.opts.NewsPerFeed, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if items == nil {
		items = []news.Item{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (s *Server) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn().Err(err).Str("path", c.FullPath()).Int("status", status).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrValidation:
		return http.StatusBadRequest
	case errs.ErrNotFound:
		return http.StatusNotFound
	case errs.ErrTransient:
		return http.StatusBadGateway
	case errs.ErrStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// requireToken checks "Authorization: Bearer <token>" against APIToken.
func (s *Server) requireToken() gin.HandlerFunc {
	want := []byte(s.opts.APIToken)
	return func(c *gin.Context) {
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid bearer token"})
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
