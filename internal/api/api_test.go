package api_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/bulkload/internal/api"
	"github.com/tigerroll/bulkload/internal/domain/entity"
	"github.com/tigerroll/bulkload/internal/repository"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/bulkload/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/bulkload/pkg/batch/core/config"
	batchtest "github.com/tigerroll/bulkload/pkg/batch/test"
	inframetrics "github.com/tigerroll/bulkload/pkg/batch/infrastructure/metrics"
)

type fixture struct {
	handler  http.Handler
	conn     database.DBConnection
	recorder *inframetrics.PrometheusRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Bulkload.AdapterConfigs["api"] = map[string]interface{}{
		"type":     "sqlite",
		"database": filepath.Join(t.TempDir(), "api.db"),
	}
	resolver := gormadapter.NewResolver(cfg, sqlite.NewProvider(cfg))
	t.Cleanup(func() { resolver.CloseAll() })

	ctx := context.Background()
	conn, err := resolver.ResolveDBConnection(ctx, "api")
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(ctx, &entity.Item{}, &entity.Movie{}))

	items := repository.NewItemRepository(resolver, "api", gormadapter.NewGormTransactionManager(resolver, "api"), 1000)
	movies := repository.NewMovieRepository(resolver, "api")
	recorder := inframetrics.NewPrometheusRecorder()

	handler := api.NewRouter(api.NewItemHandler(items), api.NewMovieHandler(movies), api.Options{
		Health:       conn.Ping,
		Recorder:     recorder,
		Gatherer:     recorder.GetRegistry(),
		MaxBodyBytes: 1 << 20,
	})
	return &fixture{handler: handler, conn: conn, recorder: recorder}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) itemCount(t *testing.T) int64 {
	t.Helper()
	n, err := f.conn.Count(context.Background(), &entity.Item{}, nil)
	require.NoError(t, err)
	return n
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

const (
	validPen = `{"name":"pen","description":"blue ink","price":"1.50","available_quantity":10}`
	validCup = `{"name":"cup","description":"ceramic","price":7.25,"available_quantity":0}`
)

func TestBulkCreate_TwoValidItems(t *testing.T) {
	f := newFixture(t)
	before := f.itemCount(t)

	rec := f.do(t, http.MethodPost, "/items/bulk/", "["+validPen+","+validCup+"]")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created []api.ItemResponse
	decode(t, rec, &created)
	require.Len(t, created, 2)
	assert.NotZero(t, created[0].ID)
	assert.Equal(t, "1.50", created[0].Price)
	assert.Equal(t, "7.25", created[1].Price)
	assert.Equal(t, before+2, f.itemCount(t))
}

func TestBulkCreate_SingleItem(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/bulkinsert/", validPen)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created api.ItemResponse
	decode(t, rec, &created)
	assert.Equal(t, "pen", created.Name)
	assert.Equal(t, uint32(10), created.AvailableQuantity)
	assert.Equal(t, int64(1), f.itemCount(t))
}

func TestBulkCreate_MixedArrayWritesNothing(t *testing.T) {
	f := newFixture(t)
	before := f.itemCount(t)

	bad := `{"name":"mug","description":"tall","price":"0","available_quantity":1}`
	rec := f.do(t, http.MethodPost, "/items/bulk/", "["+validPen+","+bad+"]")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errs []map[string][]string
	decode(t, rec, &errs)
	require.Len(t, errs, 2)
	assert.Empty(t, errs[0])
	assert.Equal(t, []string{"Price must be a positive number"}, errs[1]["price"])
	assert.Equal(t, before, f.itemCount(t))
}

func TestBulkCreate_NameEqualsDescription(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/items/bulk/", `{"name":"XY","description":"XY","price":"2.00","available_quantity":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errs map[string][]string
	decode(t, rec, &errs)
	assert.Equal(t, []string{"Name and description should not be the same"}, errs[api.NonFieldErrors])
	assert.Zero(t, f.itemCount(t))
}

func TestBulkCreate_BadShapes(t *testing.T) {
	f := newFixture(t)

	cases := map[string]struct {
		body string
		want string
	}{
		"empty list": {body: `[]`, want: "No items provided in the list"},
		"scalar":     {body: `42`, want: "Expected a list or a single item"},
		"string":     {body: `"pen"`, want: "Expected a list or a single item"},
		"empty body": {body: ``, want: "Expected a list or a single item"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/items/bulk/", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var body map[string]string
			decode(t, rec, &body)
			assert.Equal(t, tc.want, body["error"])
		})
	}

	rec := f.do(t, http.MethodPost, "/items/bulk/", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.itemCount(t))
}

func TestBulkCreate_NonObjectElement(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/items/bulk/", "["+validPen+`,[1,2]]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errs []map[string][]string
	decode(t, rec, &errs)
	require.Len(t, errs, 2)
	assert.NotEmpty(t, errs[1][api.NonFieldErrors])
}

func TestBulkCreate_StoreFailureIs500(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.conn.Exec(context.Background(), "DROP TABLE items"))

	rec := f.do(t, http.MethodPost, "/items/bulk/", validPen)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.NotEmpty(t, body["error"])
}

// mockedItemsHandler serves the item routes over a repository whose transactions are mocked.
func mockedItemsHandler(t *testing.T, tm *batchtest.MockTxManager) http.Handler {
	t.Helper()
	items := repository.NewItemRepository(batchtest.NewTestSingleConnectionResolver(nil), "api", tm, 1000)
	return api.NewRouter(api.NewItemHandler(items), api.NewMovieHandler(nil), api.Options{})
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func TestBulkCreate_CommitFailureIs500(t *testing.T) {
	mtx := new(batchtest.MockTx)
	mtx.On("ExecuteInsert", mock.Anything, mock.Anything, "items", 1000).Return(int64(2), nil)
	tm := new(batchtest.MockTxManager)
	tm.On("Begin", mock.Anything, mock.Anything).Return(mtx, nil)
	tm.On("Commit", mtx).Return(mysql.ErrInvalidConn)

	rec := post(mockedItemsHandler(t, tm), "/items/bulk/", "["+validPen+","+validCup+"]")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Contains(t, body["error"], "bulk insert rolled back")
	tm.AssertExpectations(t)
	tm.AssertNotCalled(t, "Rollback", mock.Anything)
}

func TestBulkCreate_UniqueViolationIs400(t *testing.T) {
	mtx := new(batchtest.MockTx)
	mtx.On("ExecuteInsert", mock.Anything, mock.Anything, "items", 1000).
		Return(int64(0), &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'pen' for key 'items.name'"})
	tm := new(batchtest.MockTxManager)
	tm.On("Begin", mock.Anything, mock.Anything).Return(mtx, nil)
	tm.On("Rollback", mtx).Return(nil)

	rec := post(mockedItemsHandler(t, tm), "/items/bulk/", validPen)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Duplicate entry")
	tm.AssertExpectations(t)
	tm.AssertNotCalled(t, "Commit", mock.Anything)
}

func TestListItems(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/items/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/items/bulk/", "["+validPen+","+validCup+"]").Code)

	for _, path := range []string{"/items/", "/listitems/"} {
		rec = f.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var items []api.ItemResponse
		decode(t, rec, &items)
		require.Len(t, items, 2)
		assert.Equal(t, "pen", items[0].Name)
		assert.Equal(t, "cup", items[1].Name)
	}
}

func TestMovies_CRUD(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/movies/", `{"title":"Alien","release_date":"1979-05-25","genre":"Horror","director":"Ridley Scott"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created entity.Movie
	decode(t, rec, &created)
	require.NotZero(t, created.ID)
	path := "/movies/" + strconv.FormatUint(uint64(created.ID), 10) + "/"

	rec = f.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"release_date":"1979-05-25"`)

	rec = f.do(t, http.MethodPatch, path, `{"genre":"Sci-Fi"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var patched map[string]interface{}
	decode(t, rec, &patched)
	assert.Equal(t, "Sci-Fi", patched["genre"])
	assert.Equal(t, "Alien", patched["title"])

	rec = f.do(t, http.MethodPut, path, `{"title":"Aliens"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errs map[string][]string
	decode(t, rec, &errs)
	assert.Contains(t, errs, "release_date")

	rec = f.do(t, http.MethodPut, path, `{"title":"Aliens","release_date":"1986-07-18","genre":"Action","director":"James Cameron"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail":"Not found."}`, rec.Body.String())
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, path, "").Code)
}

func TestMovies_SearchAndRules(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{
		`{"title":"Alien","release_date":"1979-05-25","genre":"Horror","director":"Ridley Scott"}`,
		`{"title":"Heat","release_date":"1995-12-15","genre":"Crime","director":"Michael Mann"}`,
	} {
		require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/movies/", body).Code)
	}

	rec := f.do(t, http.MethodGet, "/movies/?search=ridley", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var movies []entity.Movie
	decode(t, rec, &movies)
	require.Len(t, movies, 1)
	assert.Equal(t, "Alien", movies[0].Title)

	rec = f.do(t, http.MethodPost, "/movies/", `{"title":"Drama","release_date":"2001-01-01","genre":"Drama","director":"X"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errs map[string][]string
	decode(t, rec, &errs)
	assert.Equal(t, []string{"Title and genre should not be the same"}, errs[api.NonFieldErrors])

	rec = f.do(t, http.MethodPost, "/movies/", `{"title":"Up","release_date":"05/29/2009","genre":"Animation","director":"Pete Docter"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "release_date")

	rec = f.do(t, http.MethodPost, "/movies/", `[{"title":"Up"}]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), api.NonFieldErrors)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	f.do(t, http.MethodGet, "/items/", "")
	count, err := testutil.GatherAndCount(f.recorder.GetRegistry(), "bulkload_operation_duration_seconds")
	require.NoError(t, err)
	assert.Positive(t, count)

	rec = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bulkload_operation_duration_seconds")
}

func TestBodyLimit(t *testing.T) {
	f := newFixture(t)
	big := bytes.Repeat([]byte(" "), 2<<20)
	req := httptest.NewRequest(http.MethodPost, "/items/bulk/", bytes.NewReader(append(big, []byte(validPen)...)))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, f.itemCount(t))
}
