// Package api serves history records over HTTP.
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/prologic/historykv/history"
	"github.com/prologic/historykv/store"
)

// InsertRequest is the body of POST /history/:key.
type InsertRequest struct {
	Value *string `json:"value"`
}

// HistoryResponse is the body of GET /history/:key.
type HistoryResponse struct {
	Key     string   `json:"key"`
	Entries []string `json:"entries"`
}

type handler struct {
	store store.Store
}

// New returns an echo instance routing the history operations to records in s.
func New(s store.Store) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	h := &handler{store: s}
	e.GET("/history/:key", h.fetch)
	e.POST("/history/:key", h.insert)
	e.DELETE("/history/:key", h.clear)
	e.DELETE("/history/:key/:index", h.remove)

	return e
}

func (h *handler) record(c echo.Context) *history.Storage {
	return history.New(h.store, c.Param("key"))
}

func (h *handler) fetch(c echo.Context) error {
	rec := h.record(c)
	entries, err := rec.Fetch(c.Request().Context())
	if err != nil {
		return storeError(rec, err)
	}
	return c.JSON(http.StatusOK, HistoryResponse{Key: rec.Key(), Entries: entries})
}

func (h *handler) insert(c echo.Context) error {
	var req InsertRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Value == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "value is required")
	}

	rec := h.record(c)
	if err := rec.Insert(c.Request().Context(), *req.Value); err != nil {
		return storeError(rec, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) remove(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "index must be an integer")
	}

	rec := h.record(c)
	if err := rec.Remove(c.Request().Context(), index); err != nil {
		return storeError(rec, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) clear(c echo.Context) error {
	rec := h.record(c)
	if err := rec.Clear(c.Request().Context()); err != nil {
		return storeError(rec, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func storeError(rec *history.Storage, err error) error {
	log.WithError(err).WithField("key", rec.Key()).Error("history operation failed")
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
