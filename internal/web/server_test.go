package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vbonduro/homeinv/internal/auth"
	"github.com/vbonduro/homeinv/internal/client"
	"github.com/vbonduro/homeinv/internal/db"
	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/filestore"
	"github.com/vbonduro/homeinv/internal/filestore/local"
	"github.com/vbonduro/homeinv/internal/optimistic"
	"github.com/vbonduro/homeinv/internal/remote"
	"github.com/vbonduro/homeinv/internal/remote/sqlstore"
	"github.com/vbonduro/homeinv/internal/repository"
	"github.com/vbonduro/homeinv/internal/service"
	"github.com/vbonduro/homeinv/internal/settings"
	"github.com/vbonduro/homeinv/internal/tree"
	"github.com/vbonduro/homeinv/internal/validate"
	"github.com/vbonduro/homeinv/internal/vision"
)

// minimalJPEG is 512 bytes with the JPEG magic bytes header followed by zeros.
var minimalJPEG = func() []byte {
	b := make([]byte, 512)
	b[0] = 0xFF
	b[1] = 0xD8
	b[2] = 0xFF
	b[3] = 0xE0
	return b
}()

type fixedVision struct {
	drafts []vision.Draft
}

func (f *fixedVision) Analyze(_ context.Context, r io.Reader, _ string) (*vision.AnalysisResult, error) {
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	return &vision.AnalysisResult{Drafts: f.drafts}, nil
}

type testServer struct {
	srv   *Server
	token string
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	store := sqlstore.New(d, logger)

	files, err := local.New(t.TempDir(), "http://localhost/files")
	require.NoError(t, err)

	svc := service.New(repository.New(store), files, &fixedVision{drafts: []vision.Draft{{Name: "Beans", Quantity: 3, Unit: "cans"}}}, logger)
	authn := auth.NewAuthenticator(store, "test-secret", time.Hour, auth.WithBcryptCost(bcrypt.MinCost))
	sessions, err := client.NewRegistry(4, func(ctx context.Context, user domain.User) (*client.Session, error) {
		return client.Open(ctx, svc, store, user, logger, client.Options{UndoDepth: 10, RefreshOnSuccess: true})
	})
	require.NoError(t, err)
	t.Cleanup(sessions.Close)
	prefs, err := settings.Open(context.Background(), settings.NewMemoryPort(nil), logger)
	require.NoError(t, err)

	ts := testServer{srv: NewServer(svc, authn, sessions, prefs, files, logger)}
	rec := ts.do(t, http.MethodPost, "/auth/signup", map[string]string{
		"email":        "sam@example.com",
		"password":     "correct horse",
		"display_name": "Sam",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	ts.token = resp.Token
	return ts
}

func (ts testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts testServer) createItem(t *testing.T, item map[string]any) domain.ItemView {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/items", map[string]any{"item": item})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.ItemView](t, rec)
}

func TestRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	anon := testServer{srv: ts.srv}
	rec := anon.do(t, http.MethodGet, "/items", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := testServer{srv: ts.srv, token: "not-a-jwt"}
	rec = bad.do(t, http.MethodGet, "/items", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/items", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestSignIn(t *testing.T) {
	ts := newTestServer(t)
	anon := testServer{srv: ts.srv}

	rec := anon.do(t, http.MethodPost, "/auth/signin", map[string]string{"email": "sam@example.com", "password": "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = anon.do(t, http.MethodPost, "/auth/signin", map[string]string{"email": "sam@example.com", "password": "correct horse"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[authResponse](t, rec).Token)

	rec = anon.do(t, http.MethodPost, "/auth/signup", map[string]string{"email": "sam@example.com", "password": "another one"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateItemValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/items", map[string]any{"item": map[string]any{"quantity": 1}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Contains(t, body.Fields, "name")

	rec = ts.do(t, http.MethodPost, "/items", map[string]any{"bogus": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuantityUndoRedo(t *testing.T) {
	ts := newTestServer(t)
	item := ts.createItem(t, map[string]any{"name": "Coffee", "quantity": 4, "min_threshold": 8})
	assert.Equal(t, domain.StatusLowStock, item.Status)

	rec := ts.do(t, http.MethodPost, "/items/"+item.ID+"/quantity", map[string]int{"delta": -1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[domain.Item](t, rec)
	assert.Equal(t, 3, got.Quantity)
	assert.Equal(t, domain.StatusLowStock, got.Status)

	state := decode[map[string]any](t, ts.do(t, http.MethodGet, "/ledger", nil))
	assert.Equal(t, true, state["can_undo"])

	rec = ts.do(t, http.MethodPost, "/ledger/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	step := decode[ledgerResponse](t, rec)
	assert.True(t, step.Applied)
	require.NotNil(t, step.Action)
	assert.Equal(t, "Adjust quantity", step.Action.Label)
	assert.Equal(t, 1, step.State.RedoDepth)

	view := decode[domain.ItemView](t, ts.do(t, http.MethodGet, "/items/"+item.ID, nil))
	assert.Equal(t, 4, view.Quantity)

	rec = ts.do(t, http.MethodPost, "/ledger/redo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decode[domain.ItemView](t, ts.do(t, http.MethodGet, "/items/"+item.ID, nil))
	assert.Equal(t, 3, view.Quantity)

	rec = ts.do(t, http.MethodPost, "/ledger/redo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[ledgerResponse](t, rec).Applied)
}

func TestAsyncWriteReturnsAccepted(t *testing.T) {
	ts := newTestServer(t)
	item := ts.createItem(t, map[string]any{"name": "Tea", "quantity": 1})

	rec := ts.do(t, http.MethodPost, "/items/"+item.ID+"/favorite?async=1", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, decode[domain.Item](t, rec).IsFavorite)

	assert.Eventually(t, func() bool {
		view := decode[domain.ItemView](t, ts.do(t, http.MethodGet, "/items/"+item.ID, nil))
		return view.IsFavorite
	}, 2*time.Second, 10*time.Millisecond)
}

func TestItemNotFound(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/items/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/items/missing/favorite", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPatch, "/items/missing", map[string]any{"name": "x"}).Code)
}

func TestArchiveAndRestore(t *testing.T) {
	ts := newTestServer(t)
	item := ts.createItem(t, map[string]any{"name": "Soap", "quantity": 2})

	rec := ts.do(t, http.MethodPost, "/items/"+item.ID+"/archive", nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	list := decode[[]domain.ItemView](t, ts.do(t, http.MethodGet, "/items", nil))
	assert.Empty(t, list)

	rec = ts.do(t, http.MethodPost, "/items/"+item.ID+"/restore", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[domain.Item](t, rec).IsArchived)

	rec = ts.do(t, http.MethodPost, "/items/"+item.ID+"/favorite", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "restored item is back in the session cache")
}

func TestCategoryTreeAndCycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/categories", map[string]any{"name": "Food"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	food := decode[domain.Category](t, rec)

	rec = ts.do(t, http.MethodPost, "/categories", map[string]any{"name": "Snacks", "parent_id": food.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	snacks := decode[domain.Category](t, rec)

	rec = ts.do(t, http.MethodGet, "/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var roots []struct {
		ID       string `json:"id"`
		Children []struct {
			ID string `json:"id"`
		} `json:"children"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &roots))
	require.Len(t, roots, 1)
	require.Len(t, roots[0].Children, 1)
	assert.Equal(t, snacks.ID, roots[0].Children[0].ID)

	rec = ts.do(t, http.MethodPatch, "/categories/"+food.ID, map[string]any{"parent_id": snacks.ID})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/categories", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &roots))
	require.Len(t, roots, 1, "the failed move is rolled back")
	assert.Equal(t, food.ID, roots[0].ID)
}

func TestLocationOptions(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/locations", map[string]any{"name": "Kitchen"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	kitchen := decode[domain.Location](t, rec)
	rec = ts.do(t, http.MethodPost, "/locations", map[string]any{"name": "Pantry", "parent_id": kitchen.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pantry := decode[domain.Location](t, rec)
	require.NotNil(t, pantry.Path)
	assert.Equal(t, "Kitchen / Pantry", *pantry.Path)

	opts := decode[[]map[string]any](t, ts.do(t, http.MethodGet, "/locations/options", nil))
	require.Len(t, opts, 2)
}

func TestTagsAndTemplates(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/tags", map[string]any{"name": "bulk", "color": "#00ff00"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tag := decode[domain.Tag](t, rec)
	tags := decode[[]domain.Tag](t, ts.do(t, http.MethodGet, "/tags", nil))
	require.Len(t, tags, 1)

	rec = ts.do(t, http.MethodPost, "/templates", map[string]any{"name": "Milk", "unit": "l", "default_quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tpl := decode[domain.ItemTemplate](t, rec)

	rec = ts.do(t, http.MethodPost, "/templates/"+tpl.ID+"/use", map[string]any{"tag_ids": []string{tag.ID}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decode[domain.ItemView](t, rec)
	assert.Equal(t, "Milk", view.Name)
	assert.Equal(t, 2, view.Quantity)
	require.Len(t, view.Tags, 1)

	templates := decode[[]domain.ItemTemplate](t, ts.do(t, http.MethodGet, "/templates", nil))
	require.Len(t, templates, 1)
	assert.Equal(t, 1, templates[0].UseCount)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/tags/"+tag.ID, nil).Code)
	assert.Empty(t, decode[[]domain.Tag](t, ts.do(t, http.MethodGet, "/tags", nil)))
}

func TestHistoryUndo(t *testing.T) {
	ts := newTestServer(t)
	item := ts.createItem(t, map[string]any{"name": "Rice", "quantity": 1})

	rec := ts.do(t, http.MethodPatch, "/items/"+item.ID, map[string]any{"name": "Brown rice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rows := decode[[]domain.ChangeHistory](t, ts.do(t, http.MethodGet, "/history?type=item&id="+item.ID, nil))
	var rename *domain.ChangeHistory
	for i := range rows {
		if rows[i].Action == domain.ActionUpdate {
			rename = &rows[i]
		}
	}
	require.NotNil(t, rename)
	require.NotNil(t, rename.FieldName)
	assert.Equal(t, "name", *rename.FieldName)

	rec = ts.do(t, http.MethodPost, "/history/"+rename.ID+"/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[domain.ChangeHistory](t, rec).IsUndone)

	view := decode[domain.ItemView](t, ts.do(t, http.MethodGet, "/items/"+item.ID, nil))
	assert.Equal(t, "Rice", view.Name)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/history/missing/undo", nil).Code)
}

func TestLowStockNotifications(t *testing.T) {
	ts := newTestServer(t)
	item := ts.createItem(t, map[string]any{"name": "Eggs", "quantity": 10, "min_threshold": 6})

	rec := ts.do(t, http.MethodPost, "/items/"+item.ID+"/quantity", map[string]int{"delta": -5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	count := decode[map[string]int](t, ts.do(t, http.MethodGet, "/notifications/unread-count", nil))
	assert.Equal(t, 1, count["unread"])

	list := decode[[]domain.Notification](t, ts.do(t, http.MethodGet, "/notifications?unread=true", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "Eggs is running low", list[0].Title)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodPost, "/notifications/"+list[0].ID+"/read", nil).Code)
	count = decode[map[string]int](t, ts.do(t, http.MethodGet, "/notifications/unread-count", nil))
	assert.Equal(t, 0, count["unread"])

	low := decode[[]domain.Item](t, ts.do(t, http.MethodGet, "/items/low-stock", nil))
	require.Len(t, low, 1)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/notifications/"+list[0].ID, nil).Code)
	assert.Empty(t, decode[[]domain.Notification](t, ts.do(t, http.MethodGet, "/notifications", nil)))
}

func TestPreferences(t *testing.T) {
	ts := newTestServer(t)

	prefs := decode[settings.Preferences](t, ts.do(t, http.MethodGet, "/preferences", nil))
	assert.Equal(t, settings.ViewGrid, prefs.ViewMode)

	rec := ts.do(t, http.MethodPut, "/preferences", map[string]any{"darkMode": true, "viewMode": "list", "umaTheme": "night"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	prefs = decode[settings.Preferences](t, rec)
	assert.True(t, prefs.DarkMode)
	assert.Equal(t, settings.ViewList, prefs.ViewMode)

	rec = ts.do(t, http.MethodPut, "/preferences", map[string]any{"viewMode": "mosaic"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func (ts testServer) upload(t *testing.T, path string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "photo.jpg")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+ts.token)
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}

func TestPhotoUploadAndServe(t *testing.T) {
	ts := newTestServer(t)
	item := ts.createItem(t, map[string]any{"name": "Olive oil", "quantity": 1})

	rec := ts.upload(t, "/items/"+item.ID+"/photo", minimalJPEG)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[domain.Item](t, rec)
	require.NotNil(t, got.ImageURL)
	require.True(t, strings.HasPrefix(*got.ImageURL, "http://localhost/files/items/olive-oil-"))

	path := strings.TrimPrefix(*got.ImageURL, "http://localhost")
	rec = testServer{srv: ts.srv}.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, minimalJPEG, rec.Body.Bytes())

	rec = ts.upload(t, "/items/"+item.ID+"/photo", []byte("%PDF-1.4 nope"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusNotFound, testServer{srv: ts.srv}.do(t, http.MethodGet, "/files/items/nothing.jpg", nil).Code)
}

func TestCapture(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.upload(t, "/capture", minimalJPEG)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string][]vision.Draft](t, rec)
	assert.Equal(t, []vision.Draft{{Name: "Beans", Quantity: 3, Unit: "cans"}}, body["drafts"])
}

func TestExportCSV(t *testing.T) {
	ts := newTestServer(t)
	ts.createItem(t, map[string]any{"name": "Flour", "quantity": 2, "unit": "kg"})
	ts.createItem(t, map[string]any{"name": "Sugar", "quantity": 1, "is_favorite": true})

	rec := ts.do(t, http.MethodGet, "/items/export.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "id,name,"))

	rec = ts.do(t, http.MethodGet, "/items/export.csv?favorites=true", nil)
	lines = strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "Sugar")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{validate.FieldError("name", "required"), http.StatusBadRequest},
		{&auth.NotAuthenticatedError{Op: "x"}, http.StatusUnauthorized},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("wrapped: %w", &repository.NotFoundError{Kind: "item", ID: "1"}), http.StatusNotFound},
		{&optimistic.NotFoundError{Type: domain.EntityItem, ID: "1"}, http.StatusNotFound},
		{filestore.ErrNotFound, http.StatusNotFound},
		{&tree.CyclicHierarchyError{IDs: []string{"a", "b"}}, http.StatusConflict},
		{auth.ErrEmailTaken, http.StatusConflict},
		{service.ErrVisionDisabled, http.StatusServiceUnavailable},
		{&remote.Error{Op: "select", Table: "items", Err: errors.New("io")}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T", tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
