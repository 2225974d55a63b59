// Package stream keeps a cache of best bid/ask quotes warm from the
// Binance combined bookTicker websocket feed.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"quoteflow/config"
	"quoteflow/internal/model"
	"quoteflow/logger"
)

const defaultStreamURL = "wss://stream.binance.com:9443/stream"

// Cache holds the latest streamed quote per pair. Lookups only return
// quotes younger than the freshness cutoff.
type Cache struct {
	mu       sync.RWMutex
	quotes   map[string]model.Quote
	maxAgeMs int64
	now      func() time.Time
}

func NewCache(maxAgeMs int64) *Cache {
	if maxAgeMs <= 0 {
		maxAgeMs = 30000
	}
	return &Cache{
		quotes:   make(map[string]model.Quote),
		maxAgeMs: maxAgeMs,
		now:      time.Now,
	}
}

// Lookup returns the cached quote for the pair when it is still fresh.
func (c *Cache) Lookup(pair model.Pair) (model.Quote, bool) {
	c.mu.RLock()
	quote, ok := c.quotes[pair.Universal()]
	c.mu.RUnlock()
	if !ok {
		return model.Quote{}, false
	}
	if c.now().UnixMilli()-quote.TimestampMs > c.maxAgeMs {
		return model.Quote{}, false
	}
	return quote, true
}

func (c *Cache) put(quote model.Quote) {
	c.mu.Lock()
	c.quotes[quote.Pair.Universal()] = quote
	c.mu.Unlock()
}

// Len reports how many pairs currently have a cached quote.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.quotes)
}

// BookTicker subscribes to the combined bookTicker stream for the
// configured symbols and feeds the cache. The connection is re-dialed with
// backoff until the context is cancelled.
type BookTicker struct {
	cfg     config.StreamConfig
	cache   *Cache
	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewBookTicker(cfg config.StreamConfig, cache *Cache) *BookTicker {
	return &BookTicker{
		cfg:   cfg,
		cache: cache,
		log:   logger.GetLogger(),
	}
}

// Cache exposes the quote cache fed by this stream.
func (s *BookTicker) Cache() *Cache { return s.cache }

func (s *BookTicker) streamURL() string {
	base := s.cfg.URL
	if base == "" {
		base = defaultStreamURL
	}
	streams := make([]string, 0, len(s.cfg.Symbols))
	for _, sym := range s.cfg.Symbols {
		streams = append(streams, strings.ToLower(sym)+"@bookTicker")
	}
	return base + "?streams=" + strings.Join(streams, "/")
}

// Start launches the reader worker.
func (s *BookTicker) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("stream already running")
	}
	s.running = true
	s.ctx = ctx
	s.mu.Unlock()

	log := s.log.WithComponent("stream").WithFields(logger.Fields{
		"symbols": s.cfg.Symbols,
	})
	log.Info("starting book ticker stream")

	s.wg.Add(1)
	go s.readWorker()

	log.Info("book ticker stream started")
	return nil
}

// Stop waits for the reader worker to exit. The context passed to Start
// must be cancelled first.
func (s *BookTicker) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.log.WithComponent("stream").Info("stopping book ticker stream")
	s.wg.Wait()
	s.log.WithComponent("stream").Info("book ticker stream stopped")
}

func (s *BookTicker) readWorker() {
	defer s.wg.Done()

	log := s.log.WithComponent("stream").WithFields(logger.Fields{"worker": "book_ticker"})
	backoff := time.Second

	for {
		if s.ctx.Err() != nil {
			log.Info("worker stopped due to context cancellation")
			return
		}

		if err := s.readLoop(log); err != nil {
			log.WithError(err).Warn("stream connection lost, reconnecting")
		}

		select {
		case <-s.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// readLoop dials the stream and pumps messages into the cache until the
// connection drops or the context ends.
func (s *BookTicker) readLoop(log *logger.Entry) error {
	dialCtx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.streamURL(), nil)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Info("stream connected")

	// Unblock ReadMessage when the context is cancelled.
	go func() {
		<-s.ctx.Done()
		conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := s.handleMessage(payload); err != nil {
			log.WithError(err).Warn("dropping malformed stream message")
		}
	}
}

// combined stream frame: {"stream":"btcusdt@bookTicker","data":{...}}
type streamFrame struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Bid    string `json:"b"`
		BidQty string `json:"B"`
		Ask    string `json:"a"`
		AskQty string `json:"A"`
	} `json:"data"`
}

func (s *BookTicker) handleMessage(payload []byte) error {
	var frame streamFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return err
	}
	if frame.Data.Symbol == "" {
		return fmt.Errorf("frame without symbol")
	}

	pair, err := model.ParsePair(frame.Data.Symbol)
	if err != nil {
		return err
	}

	quote := model.Quote{
		Venue:       "binance",
		Pair:        pair,
		TimestampMs: time.Now().UnixMilli(),
	}
	if quote.Bid, err = strconv.ParseFloat(frame.Data.Bid, 64); err != nil {
		return err
	}
	if quote.BidQty, err = strconv.ParseFloat(frame.Data.BidQty, 64); err != nil {
		return err
	}
	if quote.Ask, err = strconv.ParseFloat(frame.Data.Ask, 64); err != nil {
		return err
	}
	if quote.AskQty, err = strconv.ParseFloat(frame.Data.AskQty, 64); err != nil {
		return err
	}
	if err := quote.Validate(); err != nil {
		return err
	}

	s.cache.put(quote)
	return nil
}
