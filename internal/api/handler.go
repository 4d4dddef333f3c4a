package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/tigerroll/bulkload/internal/domain/entity"
	"github.com/tigerroll/bulkload/internal/repository"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/database"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

// ItemResponse is the wire form of an item. Prices are fixed-point strings.
type ItemResponse struct {
	ID                uint   `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	Price             string `json:"price"`
	AvailableQuantity uint32 `json:"available_quantity"`
}

func toItemResponse(it entity.Item) ItemResponse {
	return ItemResponse{
		ID:                it.ID,
		Name:              it.Name,
		Description:       it.Description,
		Price:             it.Price.StringFixed(PriceDecimalPlaces),
		AvailableQuantity: it.AvailableQuantity,
	}
}

func toItemResponses(items []entity.Item) []ItemResponse {
	out := make([]ItemResponse, len(items))
	for i, it := range items {
		out[i] = toItemResponse(it)
	}
	return out
}

type errorBody struct {
	Error string `json:"error"`
}

type detailBody struct {
	Detail string `json:"detail"`
}

var notFound = detailBody{Detail: "Not found."}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("api: failed to write response: %v", err)
	}
}

// writeStoreError maps a repository failure to a response.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, database.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}
	if exception.IsKind(err, exception.KindValidation) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: exception.ExtractErrorMessage(err)})
		return
	}
	logger.Errorf("api: %v", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: exception.ExtractErrorMessage(err)})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "Request body too large"})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return nil, false
	}
	return body, true
}

// ItemHandler serves the items endpoints.
type ItemHandler struct {
	repo repository.ItemRepository
}

// NewItemHandler creates an ItemHandler.
func NewItemHandler(repo repository.ItemRepository) *ItemHandler {
	return &ItemHandler{repo: repo}
}

// List writes every item ordered by id.
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.ListAll(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponses(items))
}

// BulkCreate validates a single item or a list of items and stores them all in one
// transaction. Nothing is written unless every item is valid.
func (h *ItemHandler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	payload, err := DecodePayload(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	switch payload.Kind {
	case PayloadSingle:
		item, errs := newItem(payload.Single)
		if len(errs) > 0 {
			writeJSON(w, http.StatusBadRequest, errs)
			return
		}
		created, err := h.repo.BulkCreate(r.Context(), []entity.Item{item})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toItemResponse(created[0]))

	case PayloadMany:
		items := make([]entity.Item, len(payload.Many))
		perItem := make([]FieldErrors, len(payload.Many))
		invalid := 0
		for i, f := range payload.Many {
			items[i], perItem[i] = newItem(f)
			if len(perItem[i]) > 0 {
				invalid++
			}
		}
		if invalid > 0 {
			logger.Debugf("api: rejected bulk request, %d of %d items invalid", invalid, len(items))
			writeJSON(w, http.StatusBadRequest, perItem)
			return
		}
		created, err := h.repo.BulkCreate(r.Context(), items)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toItemResponses(created))
	}
}

// MovieHandler serves the movies endpoints.
type MovieHandler struct {
	repo repository.MovieRepository
}

// NewMovieHandler creates a MovieHandler.
func NewMovieHandler(repo repository.MovieRepository) *MovieHandler {
	return &MovieHandler{repo: repo}
}

func (h *MovieHandler) List(w http.ResponseWriter, r *http.Request) {
	movies, err := h.repo.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, movies)
}

func (h *MovieHandler) Create(w http.ResponseWriter, r *http.Request) {
	f, ok := readObject(w, r)
	if !ok {
		return
	}
	m, errs := newMovie(f, nil)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}
	if err := h.repo.Create(r.Context(), &m); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *MovieHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Update replaces a movie (PUT) or, when partial is set, changes only the submitted fields (PATCH).
func (h *MovieHandler) Update(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		existing, err := h.repo.Get(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		f, ok := readObject(w, r)
		if !ok {
			return
		}
		var base *entity.Movie
		if partial {
			base = &existing
		}
		m, errs := newMovie(f, base)
		if len(errs) > 0 {
			writeJSON(w, http.StatusBadRequest, errs)
			return
		}
		m.ID = id
		if err := h.repo.Update(r.Context(), &m); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func (h *MovieHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusNotFound, notFound)
		return 0, false
	}
	return uint(id), true
}

// readObject decodes a body that must be a single JSON object.
func readObject(w http.ResponseWriter, r *http.Request) (Fields, bool) {
	body, ok := readBody(w, r)
	if !ok {
		return nil, false
	}
	payload, err := DecodePayload(body)
	switch {
	case errors.Is(err, ErrEmptyList) || (err == nil && payload.Kind == PayloadMany):
		writeJSON(w, http.StatusBadRequest, FieldErrors{NonFieldErrors: {"Invalid data. Expected a dictionary, but got list."}})
		return nil, false
	case err != nil:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return nil, false
	}
	return payload.Single, true
}

// HealthCheck reports whether the store is reachable.
type HealthCheck func(ctx context.Context) error

func healthHandler(check HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				logger.Warnf("Health check failed: %v", err)
				writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: exception.ExtractErrorMessage(err)})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
