package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/itemservice/internal/cache"
	"github.com/your-org/itemservice/internal/domain"
	"github.com/your-org/itemservice/internal/middleware"
	"github.com/your-org/itemservice/internal/processor"
	"github.com/your-org/itemservice/internal/repositories"
	"github.com/your-org/itemservice/internal/usecases"
	"github.com/your-org/itemservice/internal/validation"
)

func newTestServer(t *testing.T) (*httptest.Server, *repositories.MemoryRepository) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	repo := repositories.NewMemoryRepository(logger)
	itemCache := cache.NewShardedCache(4, 60)

	scheduler := processor.NewScheduler(4, 64, logger)
	scheduler.Start()

	batch := processor.NewBatchProcessor(repo, scheduler, 0, logger)
	usecase := usecases.NewItemUsecase(repo, itemCache, batch, validation.NewEmailValidator(), logger, 10)
	handler := NewItemHandler(usecase, logger)

	r := chi.NewRouter()
	r.Use(middleware.LoggingMiddleware(logger))
	r.Group(func(r chi.Router) {
		r.Use(middleware.TimeoutMiddleware(5 * time.Second))
		handler.Routes(r)
	})
	handler.BatchRoutes(r)

	server := httptest.NewServer(r)
	t.Cleanup(func() {
		server.Close()
		usecase.Shutdown()
		scheduler.Stop()
		_ = repo.Close()
	})

	return server, repo
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeItem(t *testing.T, resp *http.Response) domain.Item {
	t.Helper()
	var item domain.Item
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&item))
	return item
}

// TestCreateAndGetItem tests the create then read round trip
func TestCreateAndGetItem(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/items", domain.Item{Name: "Widget", Email: "w@example.com"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	created := decodeItem(t, resp)
	assert.Positive(t, created.ID)
	assert.Equal(t, domain.ItemStatusCreated, created.Status)

	resp = doJSON(t, http.MethodGet, server.URL+"/api/items/"+itoa(created.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created, decodeItem(t, resp))
}

// TestCreateItemStartsCreated tests that a client cannot create an already processed item
func TestCreateItemStartsCreated(t *testing.T) {
	server, repo := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/items",
		domain.Item{Name: "Widget", Email: "w@example.com", Status: domain.ItemStatusProcessed})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeItem(t, resp)
	assert.Equal(t, domain.ItemStatusCreated, created.Status)

	stored, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusCreated, stored.Status)
}

// TestCreateItemValidation tests that bad input answers 400
func TestCreateItemValidation(t *testing.T) {
	server, repo := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/items", domain.Item{Name: "Widget", Email: "broken"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Email invalid: broken", body["error"])

	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/items", strings.NewReader("{not json"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)

	items, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

// TestGetItemErrors tests 404 for a missing item and 400 for a malformed id
func TestGetItemErrors(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/items/999", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, server.URL+"/api/items/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, server.URL+"/api/items/0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// TestUpdateItem tests update of existing and missing items
func TestUpdateItem(t *testing.T) {
	server, repo := newTestServer(t)

	saved, err := repo.Save(context.Background(), &domain.Item{Name: "Old", Email: "o@example.com"})
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPut, server.URL+"/api/items/"+itoa(saved.ID), domain.Item{Name: "New", Email: "n@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeItem(t, resp)
	assert.Equal(t, saved.ID, updated.ID)
	assert.Equal(t, "New", updated.Name)
	assert.Equal(t, domain.ItemStatusCreated, updated.Status)

	resp = doJSON(t, http.MethodPut, server.URL+"/api/items/404", domain.Item{Name: "X", Email: "x@example.com"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodPut, server.URL+"/api/items/"+itoa(saved.ID), domain.Item{Name: "X"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// TestDeleteItem tests delete and a repeated delete
func TestDeleteItem(t *testing.T) {
	server, repo := newTestServer(t)

	saved, err := repo.Save(context.Background(), &domain.Item{Name: "Gone", Email: "g@example.com"})
	require.NoError(t, err)

	resp := doJSON(t, http.MethodDelete, server.URL+"/api/items/"+itoa(saved.ID), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, server.URL+"/api/items/"+itoa(saved.ID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, server.URL+"/api/items/"+itoa(saved.ID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestProcessItems tests that a batch run marks every item PROCESSED
func TestProcessItems(t *testing.T) {
	server, repo := newTestServer(t)

	for i := 0; i < 10; i++ {
		_, err := repo.Save(context.Background(), &domain.Item{Name: "Item", Email: "i@example.com"})
		require.NoError(t, err)
	}

	resp := doJSON(t, http.MethodGet, server.URL+"/api/items/process", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get(headerFailedItems))

	var processed []domain.Item
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&processed))
	require.Len(t, processed, 10)
	for _, item := range processed {
		assert.Equal(t, domain.ItemStatusProcessed, item.Status)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/api/items/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.ItemStatusProcessed, decodeItem(t, resp).Status)
}

// TestProcessItemsEmptyStore tests that an empty run answers an empty list, not null
func TestProcessItemsEmptyStore(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/items/process", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body bytes.Buffer
	_, err := body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, body.String())
}

// TestProcessItemsStoreDown tests that a failed listing answers 500 with an empty list
func TestProcessItemsStoreDown(t *testing.T) {
	server, repo := newTestServer(t)
	require.NoError(t, repo.Close())

	resp := doJSON(t, http.MethodGet, server.URL+"/api/items/process", nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body bytes.Buffer
	_, err := body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, body.String())
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
