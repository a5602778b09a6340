package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prologic/historykv/store"
)

type brokenStore struct {
	store.Store
}

func (brokenStore) GetValue(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("storage unavailable")
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func fetch(t *testing.T, h http.Handler, key string) []string {
	t.Helper()
	rec := do(t, h, http.MethodGet, "/history/"+key, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, key, res.Key)
	return res.Entries
}

func TestAPI(t *testing.T) {
	e := New(store.NewMemoryStore())

	t.Run("empty history", func(t *testing.T) {
		rec := do(t, e, http.MethodGet, "/history/searches", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"key":"searches","entries":[]}`, rec.Body.String())
	})

	t.Run("insert", func(t *testing.T) {
		for _, v := range []string{"a", "b", "c"} {
			rec := do(t, e, http.MethodPost, "/history/searches", `{"value":"`+v+`"}`)
			assert.Equal(t, http.StatusNoContent, rec.Code)
		}
		assert.Equal(t, []string{"a", "b", "c"}, fetch(t, e, "searches"))
	})

	t.Run("insert empty string", func(t *testing.T) {
		rec := do(t, e, http.MethodPost, "/history/blank", `{"value":""}`)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, []string{""}, fetch(t, e, "blank"))
	})

	t.Run("insert without value", func(t *testing.T) {
		rec := do(t, e, http.MethodPost, "/history/searches", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, e, http.MethodPost, "/history/searches", `{"value":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("remove", func(t *testing.T) {
		rec := do(t, e, http.MethodDelete, "/history/searches/1", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, []string{"a", "c"}, fetch(t, e, "searches"))
	})

	t.Run("remove out of range", func(t *testing.T) {
		for _, index := range []string{"5", "-1"} {
			rec := do(t, e, http.MethodDelete, "/history/searches/"+index, "")
			assert.Equal(t, http.StatusNoContent, rec.Code)
		}
		assert.Equal(t, []string{"a", "c"}, fetch(t, e, "searches"))
	})

	t.Run("remove with a bad index", func(t *testing.T) {
		rec := do(t, e, http.MethodDelete, "/history/searches/first", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("keys are isolated", func(t *testing.T) {
		assert.Empty(t, fetch(t, e, "commands"))
	})

	t.Run("clear", func(t *testing.T) {
		rec := do(t, e, http.MethodDelete, "/history/searches", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, fetch(t, e, "searches"))
	})
}

func TestAPI_StoreFailure(t *testing.T) {
	e := New(brokenStore{store.NewMemoryStore()})

	rec := do(t, e, http.MethodGet, "/history/searches", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "storage unavailable")

	rec = do(t, e, http.MethodPost, "/history/searches", `{"value":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
