// Package api exposes the aggregation, impact, funding, and symbol mapping
// operations over a Gin HTTP server.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"quoteflow/config"
	"quoteflow/internal/aggregator"
	"quoteflow/internal/funding"
	"quoteflow/internal/impact"
	"quoteflow/internal/model"
	"quoteflow/internal/symbols"
	"quoteflow/internal/venue"
	"quoteflow/logger"
)

// Server hosts the JSON API over the market-data core.
type Server struct {
	cfg        config.APIConfig
	log        *logger.Log
	agg        *aggregator.Aggregator
	registry   *venue.Registry
	mapper     *symbols.Mapper
	httpServer *http.Server
}

// NewServer returns nil when the API is disabled in configuration.
func NewServer(cfg config.APIConfig, agg *aggregator.Aggregator, registry *venue.Registry, mapper *symbols.Mapper) *Server {
	if !cfg.Enabled {
		return nil
	}
	return &Server{
		cfg:      cfg,
		log:      logger.GetLogger(),
		agg:      agg,
		registry: registry,
		mapper:   mapper,
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.buildRouter(),
	}

	s.log.WithComponent("api").WithFields(logger.Fields{"address": s.cfg.Address}).Info("starting api server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		s.log.WithComponent("api").Info("api server stopped")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "venues": s.registry.Venues()})
	})

	api := router.Group("/api")
	api.GET("/best", s.handleBest)
	api.GET("/impact", s.handleImpact)
	api.GET("/funding", s.handleFunding)
	api.GET("/funding/annualize", s.handleAnnualize)
	api.GET("/symbols/normalize", s.handleNormalize)
	api.GET("/symbols/denormalize", s.handleDenormalize)
	api.GET("/symbols/validate", s.handleValidate)
	api.GET("/venues", s.handleVenues)

	return router
}

// statusFor maps error kinds to HTTP statuses: caller errors get 400,
// upstream venue failures 502.
func statusFor(err error) int {
	switch venue.Reason(err) {
	case "invalid_argument", "unsupported_capability":
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleBest(c *gin.Context) {
	pair := c.Query("pair")
	if pair == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pair is required"})
		return
	}

	venues := s.registry.Venues()
	if raw := c.Query("venues"); raw != "" {
		venues = strings.Split(raw, ",")
	}

	var maxAgeMs int64
	if raw := c.Query("max_age_ms"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_age_ms must be a non-negative integer"})
			return
		}
		maxAgeMs = parsed
	}

	result, err := s.agg.BestAcrossVenues(c.Request.Context(), pair, venues, maxAgeMs)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleImpact(c *gin.Context) {
	adapter, err := s.registry.Get(c.Query("venue"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pair, err := model.ParsePair(c.Query("pair"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side, err := model.ParseSide(c.Query("side"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	notional, err := strconv.ParseFloat(c.Query("notional"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "notional must be a number"})
		return
	}
	depth, _ := strconv.Atoi(c.DefaultQuery("depth", "100"))

	book, err := adapter.GetOrderBook(c.Request.Context(), pair, depth)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	result, err := impact.PriceImpact(book, side, notional)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleFunding(c *gin.Context) {
	venueID := c.Query("venue")
	adapter, err := s.registry.Get(venueID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.registry.Capabilities().Require(strings.ToLower(venueID), venue.OpFunding); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pair, err := model.ParsePair(c.Query("pair"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := adapter.GetFundingSnapshot(c.Request.Context(), pair)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	summary, err := funding.SummarizeSnapshot(snap)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleAnnualize(c *gin.Context) {
	rate, err := strconv.ParseFloat(c.Query("rate"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rate must be a number"})
		return
	}
	intervalHours, err := strconv.ParseFloat(c.Query("interval_hours"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval_hours must be a number"})
		return
	}

	apr, err := funding.APR(rate, intervalHours)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	apy, _ := funding.APY(rate, intervalHours)
	daily, _ := funding.DailyReturn(rate, intervalHours)

	c.JSON(http.StatusOK, gin.H{
		"rate":           rate,
		"interval_hours": intervalHours,
		"apr":            apr,
		"apy":            apy,
		"daily_return":   daily,
	})
}

func (s *Server) handleNormalize(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	c.JSON(http.StatusOK, s.mapper.Normalize(symbol, c.Query("venue")))
}

func (s *Server) handleDenormalize(c *gin.Context) {
	universal := c.Query("universal")
	venueID := c.Query("venue")
	if universal == "" || venueID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "universal and venue are required"})
		return
	}

	symbol, err := s.mapper.Denormalize(universal, venueID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"universal_symbol": strings.ToUpper(universal),
		"venue":            venueID,
		"exchange_symbol":  symbol,
	})
}

func (s *Server) handleValidate(c *gin.Context) {
	symbol := c.Query("symbol")
	universal := c.Query("universal")
	if symbol == "" || universal == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and universal are required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"universal": universal,
		"venue":     c.Query("venue"),
		"valid":     s.mapper.Validate(symbol, universal, c.Query("venue")),
	})
}

func (s *Server) handleVenues(c *gin.Context) {
	caps := s.registry.Capabilities()
	payload := make([]gin.H, 0)
	for _, id := range s.registry.Venues() {
		record, _ := caps.Lookup(id)
		payload = append(payload, gin.H{
			"venue":              id,
			"supports_spot":      record.SupportsSpot,
			"supports_orderbook": record.SupportsOrderBook,
			"supports_funding":   record.SupportsFunding,
		})
	}
	c.JSON(http.StatusOK, gin.H{"venues": payload})
}
