package api

import (
	"time"

	"momentum/internal/domain/repository"
	"momentum/internal/usecase"
	xhttp "momentum/pkg/http"
	xlogger "momentum/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StreamStatus reports market stream connectivity for the health endpoint.
type StreamStatus interface {
	IsConnected() bool
}

// MarketHandler exposes snapshot, score, and health endpoints over Echo.
type MarketHandler struct {
	logger        *xlogger.Logger
	snapshot      *usecase.SnapshotUsecase
	score         *usecase.ScoreUsecase
	stream        StreamStatus
	defaultTicker string
	symbols       map[string]bool
	started       time.Time
}

func NewMarketHandler(logger *xlogger.Logger, snapshot *usecase.SnapshotUsecase, score *usecase.ScoreUsecase, stream StreamStatus, defaultTicker string, symbols []string) *MarketHandler {
	known := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		known[s] = true
	}
	return &MarketHandler{
		logger:        logger,
		snapshot:      snapshot,
		score:         score,
		stream:        stream,
		defaultTicker: defaultTicker,
		symbols:       known,
		started:       time.Now(),
	}
}

func (h *MarketHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/api")
	g.GET("/snapshot", h.Snapshot)
	g.GET("/candles", h.Candles)
	g.GET("/score", h.Score)
}

// tickerRequest is shared by snapshot and score.
type tickerRequest struct {
	Ticker string `query:"ticker" validate:"omitempty,min=1,max=24"`
}

func (h *MarketHandler) resolveTicker(req *tickerRequest) (string, bool) {
	ticker := req.Ticker
	if ticker == "" {
		ticker = h.defaultTicker
	}
	return ticker, h.symbols[ticker]
}

// Health reports stream connectivity and uptime.
func (h *MarketHandler) Health(c echo.Context) error {
	status := "ok"
	if h.stream != nil && !h.stream.IsConnected() {
		status = "degraded"
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":         status,
		"ws_connected":   h.stream != nil && h.stream.IsConnected(),
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}

// Snapshot returns the per-symbol repository and indicator view.
func (h *MarketHandler) Snapshot(c echo.Context) error {
	req := &tickerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ticker, known := h.resolveTicker(req)
	if !known {
		return xhttp.NotFoundResponse(c, "unknown ticker: "+ticker)
	}

	return xhttp.SuccessResponse(c, h.snapshot.Build(ticker))
}

// candlesRequest adds a timeframe to the ticker lookup. Limit and from stay
// raw strings so missing or malformed values fall back to defaults.
type candlesRequest struct {
	Ticker string `query:"ticker" validate:"omitempty,min=1,max=24"`
	TF     string `query:"tf" validate:"omitempty,oneof=1m 5m 15m 1h 4h 1d"`
}

// Candles returns recent closed bars for one symbol and timeframe.
func (h *MarketHandler) Candles(c echo.Context) error {
	req := &candlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ticker, known := h.resolveTicker(&tickerRequest{Ticker: req.Ticker})
	if !known {
		return xhttp.NotFoundResponse(c, "unknown ticker: "+ticker)
	}

	tf := repository.NormalizeTimeframe(req.TF)
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 100)
	from := xhttp.ParseTimeDefault(c.QueryParam("from"), time.Time{})
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"ticker":  ticker,
		"tf":      string(tf),
		"candles": h.snapshot.Candles(ticker, tf, from, limit),
	})
}

// Score returns the gated decision for one symbol.
func (h *MarketHandler) Score(c echo.Context) error {
	start := time.Now()
	req := &tickerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ticker, known := h.resolveTicker(req)
	if !known {
		return xhttp.NotFoundResponse(c, "unknown ticker: "+ticker)
	}

	res := h.score.Score(c.Request().Context(), ticker)
	h.logger.Debug("score computed",
		xlogger.String("ticker", ticker),
		xlogger.String("signal", string(res.Signal)),
		xlogger.String("state", string(res.State)),
		xlogger.Duration("took", time.Since(start)),
	)
	return xhttp.SuccessResponse(c, res)
}
