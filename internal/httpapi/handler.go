package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"price-high-alerts/internal/breakthrough"
	"price-high-alerts/internal/fetcher"
	"price-high-alerts/internal/highs"
	"price-high-alerts/internal/storage"
)

type highRequest struct {
	Symbol    string `param:"symbol" validate:"required,max=32"`
	Timeframe string `query:"timeframe" default:"1w" validate:"required,oneof=1w 1m 6m 1y all"`
}

// defaultRankingLimit applies when limit is absent; an explicit limit=0 ranks everything.
const defaultRankingLimit = 20

type rankingRequest struct {
	Timeframe string `query:"timeframe" default:"1w" validate:"required,oneof=1w 1m 6m 1y all"`
	Limit     int    `query:"limit" validate:"gte=0,lte=1000"`
	Order     string `query:"order" default:"closest" validate:"oneof=closest furthest"`
}

type timeframeRequest struct {
	Timeframe string `query:"timeframe" default:"1w" validate:"required,oneof=1w 1m 6m 1y all"`
}

type multiRequest struct {
	Timeframe string  `query:"timeframe" default:"1w" validate:"required,oneof=1w 1m 6m 1y all"`
	MinPct    float64 `query:"min_pct" validate:"gte=0"`
	Live      bool    `query:"live"`
}

type checkRequest struct {
	Symbol    string  `query:"symbol" validate:"required,max=32"`
	Timeframe string  `query:"timeframe" default:"1w" validate:"required,oneof=1w 1m 6m 1y all"`
	Price     float64 `query:"price" validate:"gt=0"`
	Last      float64 `query:"last" validate:"gte=0"`
}

type eventsRequest struct {
	Limit int `query:"limit" default:"50" validate:"gt=0,lte=500"`
}

type recollectRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=1,max=50,dive,required,max=32"`
}

// Handler serves the read-only query surface and recollection.
type Handler struct {
	highs    *highs.Service
	detector *breakthrough.Detector
	prices   fetcher.PriceBoard
	events   storage.EventStore
	logger   zerolog.Logger
}

// NewHandler wires the query surface. prices and events may be nil.
func NewHandler(svc *highs.Service, detector *breakthrough.Detector, prices fetcher.PriceBoard, events storage.EventStore, logger zerolog.Logger) *Handler {
	return &Handler{
		highs:    svc,
		detector: detector,
		prices:   prices,
		events:   events,
		logger:   logger.With().Str("component", "httpapi").Logger(),
	}
}

// RegisterRoutes mounts the API under /api.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/highs/:symbol", h.High)
	g.GET("/ranking", h.Ranking)
	g.GET("/above-high", h.AboveHigh)
	g.GET("/breakthroughs", h.Breakthroughs)
	g.GET("/breakthroughs/check", h.Check)
	g.GET("/events", h.Events)
	g.GET("/stats", h.Stats)
	g.POST("/recollect", h.Recollect)
	e.GET("/healthz", h.Health)
}

func (h *Handler) High(c echo.Context) error {
	req := &highRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	record, ok := h.highs.QueryHistoricalHigh(req.Symbol, highs.Timeframe(req.Timeframe))
	if !ok {
		return notFoundResponse(c, "no cached high for symbol")
	}
	return successResponse(c, record)
}

func (h *Handler) Ranking(c echo.Context) error {
	req := &rankingRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	if c.QueryParam("limit") == "" {
		req.Limit = defaultRankingLimit
	}
	tf := highs.Timeframe(req.Timeframe)
	var entries []highs.RankingEntry
	if req.Order == "furthest" {
		entries = h.highs.Store().RankFurthest(tf, req.Limit)
	} else {
		entries = h.highs.GetRankingByProximityToHigh(tf, req.Limit)
	}
	return successResponse(c, entries)
}

func (h *Handler) AboveHigh(c echo.Context) error {
	req := &timeframeRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	return successResponse(c, h.highs.Store().AboveHigh(highs.Timeframe(req.Timeframe)))
}

func (h *Handler) Breakthroughs(c echo.Context) error {
	req := &multiRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	var prices map[string]float64
	if req.Live && h.prices != nil {
		live, err := h.prices.LivePrices(c.Request().Context())
		if err != nil {
			h.logger.Error().Err(err).Msg("live prices unavailable")
			return dataResponse(c, http.StatusBadGateway, "live prices unavailable")
		}
		prices = live
	}
	results := h.detector.CheckMulti(highs.Timeframe(req.Timeframe), req.MinPct, prices)
	if results == nil {
		results = []breakthrough.Result{}
	}
	return successResponse(c, results)
}

func (h *Handler) Check(c echo.Context) error {
	req := &checkRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	var last *float64
	if req.Last > 0 {
		last = &req.Last
	}
	result, ok := h.detector.Evaluate(req.Symbol, req.Price, highs.Timeframe(req.Timeframe), last)
	if !ok {
		return notFoundResponse(c, "no cached high for symbol")
	}
	return successResponse(c, result)
}

func (h *Handler) Events(c echo.Context) error {
	req := &eventsRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	if h.events == nil {
		return successResponse(c, []storage.BreakthroughEvent{})
	}
	events, err := h.events.ListRecentEvents(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("list events failed")
		return dataResponse(c, http.StatusInternalServerError, "Something went wrong")
	}
	return successResponse(c, events)
}

func (h *Handler) Stats(c echo.Context) error {
	return successResponse(c, h.highs.Stats())
}

func (h *Handler) Recollect(c echo.Context) error {
	req := &recollectRequest{}
	if verr := readAndValidate(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	result, err := h.highs.RecollectSymbols(c.Request().Context(), req.Symbols)
	if err != nil {
		if errors.Is(err, highs.ErrCollectionRunning) {
			return dataResponse(c, http.StatusConflict, err.Error())
		}
		return badRequestResponse(c, []ValidationError{{Code: "ERR_RECOLLECT", Message: err.Error()}})
	}
	return successResponse(c, result)
}

func (h *Handler) Health(c echo.Context) error {
	stats := h.highs.Stats()
	status := http.StatusOK
	if !stats.IsInitialized {
		status = http.StatusServiceUnavailable
	}
	return dataResponse(c, status, map[string]any{"initialized": stats.IsInitialized, "records": stats.CacheSize})
}
