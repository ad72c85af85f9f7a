package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duynhne/profile-service/config"
	"github.com/duynhne/profile-service/internal/core/domain"
	"github.com/duynhne/profile-service/internal/core/repository/memory"
	logicv1 "github.com/duynhne/profile-service/internal/logic/v1"
	"github.com/duynhne/profile-service/internal/upload"
	"github.com/duynhne/profile-service/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	repo   *memory.UserRepository
	dir    string
}

func newTestServer(t *testing.T, repo domain.UserRepository, opts ...upload.Option) *testServer {
	t.Helper()

	mem := memory.NewUserRepository()
	if repo == nil {
		repo = mem
	}

	dir := t.TempDir()
	store, err := upload.NewStore(config.UploadConfig{Dir: dir}, opts...)
	require.NoError(t, err)

	r := gin.New()
	r.Use(middleware.LoggingMiddleware(zap.NewNop()))
	RegisterRoutes(r, NewUserHandler(logicv1.NewUserService(repo), store))

	return &testServer{router: r, repo: mem, dir: dir}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createUser(t *testing.T, body string) map[string]any {
	t.Helper()
	w := s.do(jsonRequest(http.MethodPost, "/users", body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)
}

func (s *testServer) storedFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type filePart struct {
	field       string
	filename    string
	contentType string
	body        string
}

func multipartRequest(t *testing.T, path string, parts ...filePart) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
		h.Set("Content-Type", p.contentType)
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = io.WriteString(pw, p.body)
		require.NoError(t, err)
	}
	require.NoError(t, w.WriteField("note", "ignored"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestCreateAndFetchScenario(t *testing.T) {
	s := newTestServer(t, nil)

	created := s.createUser(t, `{"name":"Ana","email":"a@x.com"}`)
	id, ok := created["id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)
	assert.Equal(t, map[string]any{
		"id":      id,
		"name":    "Ana",
		"email":   "a@x.com",
		"gallery": []any{},
	}, created)

	w := s.do(httptest.NewRequest(http.MethodGet, "/users/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created, decode(t, w))

	w = s.do(httptest.NewRequest(http.MethodGet, "/users/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Body.String())

	w = s.do(httptest.NewRequest(http.MethodGet, "/users/"+domain.NewID(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestCreateUserOptionalFields(t *testing.T) {
	s := newTestServer(t, nil)

	created := s.createUser(t, `{"name":"Ana","email":"a@x.com","phone":"555-0100","address":"Rua 1"}`)
	assert.Equal(t, "555-0100", created["phone"])
	assert.Equal(t, "Rua 1", created["address"])

	other := s.createUser(t, `{"name":"Ana","email":"a@x.com"}`)
	assert.NotEqual(t, created["id"], other["id"])
}

func TestCreateUserValidation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{name: "missing email", body: `{"name":"Ana"}`, fields: []string{"email"}},
		{name: "empty name", body: `{"name":"","email":"a@x.com"}`, fields: []string{"name"}},
		{name: "empty object", body: `{}`, fields: []string{"name", "email"}},
		{name: "empty body", body: ``},
		{name: "malformed json", body: `{"name":`},
		{name: "wrong type", body: `{"name":42,"email":"a@x.com"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)

			w := s.do(jsonRequest(http.MethodPost, "/users", tt.body))
			require.Equal(t, http.StatusBadRequest, w.Code)
			body := decode(t, w)
			assert.NotEmpty(t, body["error"])

			if len(tt.fields) > 0 {
				raw, ok := body["fields"].([]any)
				require.True(t, ok)
				require.Len(t, raw, len(tt.fields))
				for i, f := range tt.fields {
					assert.Equal(t, f, raw[i].(map[string]any)["field"])
				}
			}
			assert.Equal(t, 0, s.repo.Len(), "no record created")
		})
	}
}

func TestUploadAvatar(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createUser(t, `{"name":"Ana","email":"a@x.com"}`)["id"].(string)

	w := s.do(multipartRequest(t, "/users/"+id+"/avatar",
		filePart{field: "avatar", filename: "me.png", contentType: "image/png", body: "png-bytes"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	first := decode(t, w)["avatar"].(string)
	assert.True(t, strings.HasSuffix(first, "-me.png"))
	assert.Len(t, strings.TrimSuffix(first, "-me.png"), 36)
	_, err := os.Stat(filepath.Join(s.dir, first))
	require.NoError(t, err)

	w = s.do(multipartRequest(t, "/users/"+id+"/avatar",
		filePart{field: "avatar", filename: "me.png", contentType: "image/jpeg", body: "jpeg-bytes"}))
	require.Equal(t, http.StatusOK, w.Code)
	second := decode(t, w)["avatar"].(string)
	assert.NotEqual(t, first, second, "repeat upload overwrites the avatar")

	w = s.do(httptest.NewRequest(http.MethodGet, "/users/"+id, nil))
	assert.Equal(t, second, decode(t, w)["avatar"])

	// the replaced file is not cleaned up
	assert.ElementsMatch(t, []string{first, second}, s.storedFiles(t))
}

func TestUploadAvatarRejections(t *testing.T) {
	t.Run("disallowed type", func(t *testing.T) {
		s := newTestServer(t, nil)
		id := s.createUser(t, `{"name":"Ana","email":"a@x.com"}`)["id"].(string)

		w := s.do(multipartRequest(t, "/users/"+id+"/avatar",
			filePart{field: "avatar", filename: "cv.pdf", contentType: "application/pdf", body: "%PDF"}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, s.storedFiles(t))
	})

	t.Run("missing file", func(t *testing.T) {
		s := newTestServer(t, nil)
		id := s.createUser(t, `{"name":"Ana","email":"a@x.com"}`)["id"].(string)

		w := s.do(multipartRequest(t, "/users/"+id+"/avatar"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed id writes nothing", func(t *testing.T) {
		s := newTestServer(t, nil)

		w := s.do(multipartRequest(t, "/users/does-not-exist/avatar",
			filePart{field: "avatar", filename: "me.png", contentType: "image/png", body: "png"}))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Empty(t, w.Body.String())
		assert.Empty(t, s.storedFiles(t))
	})

	t.Run("unknown id leaves the written file", func(t *testing.T) {
		s := newTestServer(t, nil)

		w := s.do(multipartRequest(t, "/users/"+domain.NewID()+"/avatar",
			filePart{field: "avatar", filename: "me.png", contentType: "image/png", body: "png"}))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Empty(t, w.Body.String())
		assert.Len(t, s.storedFiles(t), 1)
	})
}

func TestUploadGalleryReplaces(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createUser(t, `{"name":"Ana","email":"a@x.com"}`)["id"].(string)

	w := s.do(multipartRequest(t, "/users/"+id+"/gallery",
		filePart{field: "images", filename: "1.jpg", contentType: "image/jpeg", body: "one"},
		filePart{field: "images", filename: "doc.pdf", contentType: "application/pdf", body: "%PDF"},
		filePart{field: "images", filename: "2.png", contentType: "image/png", body: "two"},
		filePart{field: "images", filename: "3.png", contentType: "image/png", body: "three"},
	))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	gallery := decode(t, w)["gallery"].([]any)
	require.Len(t, gallery, 3)
	for i, suffix := range []string{"-1.jpg", "-2.png", "-3.png"} {
		assert.True(t, strings.HasSuffix(gallery[i].(string), suffix), gallery[i])
	}
	assert.Len(t, s.storedFiles(t), 3)

	w = s.do(multipartRequest(t, "/users/"+id+"/gallery",
		filePart{field: "images", filename: "4.png", contentType: "image/png", body: "four"}))
	require.Equal(t, http.StatusOK, w.Code)
	gallery = decode(t, w)["gallery"].([]any)
	require.Len(t, gallery, 1, "replaced, not appended")
	assert.True(t, strings.HasSuffix(gallery[0].(string), "-4.png"))

	// zero images empties the gallery
	w = s.do(multipartRequest(t, "/users/"+id+"/gallery"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, decode(t, w)["gallery"])

	w = s.do(httptest.NewRequest(http.MethodGet, "/users/"+id, nil))
	assert.Equal(t, []any{}, decode(t, w)["gallery"])
}

func TestUploadGalleryWithoutMultipartBody(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createUser(t, `{"name":"Ana","email":"a@x.com"}`)["id"].(string)

	w := s.do(multipartRequest(t, "/users/"+id+"/gallery",
		filePart{field: "images", filename: "1.jpg", contentType: "image/jpeg", body: "one"}))
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(httptest.NewRequest(http.MethodPost, "/users/"+id+"/gallery", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, decode(t, w)["gallery"])
}

func TestUploadGalleryUnknownUser(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(multipartRequest(t, "/users/"+domain.NewID()+"/gallery",
		filePart{field: "images", filename: "1.jpg", contentType: "image/jpeg", body: "one"}))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Body.String())
}

type failingSaveRepo struct {
	*memory.UserRepository
}

func (failingSaveRepo) Update(context.Context, *domain.User) error {
	return errors.New("connection reset")
}

func TestSaveFailureLeavesUploadedFiles(t *testing.T) {
	repo := failingSaveRepo{memory.NewUserRepository()}
	s := newTestServer(t, repo)

	user := &domain.User{ID: domain.NewID(), Name: "Ana", Email: "a@x.com", Gallery: []string{}}
	require.NoError(t, repo.Insert(context.Background(), user))

	w := s.do(multipartRequest(t, "/users/"+user.ID+"/gallery",
		filePart{field: "images", filename: "1.jpg", contentType: "image/jpeg", body: "one"},
		filePart{field: "images", filename: "2.png", contentType: "image/png", body: "two"},
	))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "connection reset")

	// no compensation: the written files stay on disk without a record pointing at them
	assert.Len(t, s.storedFiles(t), 2)

	w = s.do(multipartRequest(t, "/users/"+user.ID+"/avatar",
		filePart{field: "avatar", filename: "me.png", contentType: "image/png", body: "png"}))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, s.storedFiles(t), 3)
}

func TestUploadWriteFailure(t *testing.T) {
	s := newTestServer(t, nil, upload.WithTokenFunc(func() string { return "missing-dir/token" }))
	id := s.createUser(t, `{"name":"Ana","email":"a@x.com"}`)["id"].(string)

	w := s.do(multipartRequest(t, "/users/"+id+"/avatar",
		filePart{field: "avatar", filename: "me.png", contentType: "image/png", body: "png"}))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = s.do(httptest.NewRequest(http.MethodGet, "/users/"+id, nil))
	_, hasAvatar := decode(t, w)["avatar"]
	assert.False(t, hasAvatar, "record untouched")
}

func TestUploadGalleryWriteFailureMidway(t *testing.T) {
	tokens := []string{"old", "tok2", "missing-dir/tok3"}
	calls := 0
	s := newTestServer(t, nil, upload.WithTokenFunc(func() string {
		token := tokens[calls]
		calls++
		return token
	}))
	id := s.createUser(t, `{"name":"Ana","email":"a@x.com"}`)["id"].(string)

	w := s.do(multipartRequest(t, "/users/"+id+"/gallery",
		filePart{field: "images", filename: "0.png", contentType: "image/png", body: "zero"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(multipartRequest(t, "/users/"+id+"/gallery",
		filePart{field: "images", filename: "1.png", contentType: "image/png", body: "one"},
		filePart{field: "images", filename: "2.png", contentType: "image/png", body: "two"},
	))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to store upload", decode(t, w)["error"])

	// the file written before the failure stays on disk
	assert.ElementsMatch(t, []string{"old-0.png", "tok2-1.png"}, s.storedFiles(t))

	w = s.do(httptest.NewRequest(http.MethodGet, "/users/"+id, nil))
	assert.Equal(t, []any{"old-0.png"}, decode(t, w)["gallery"], "record untouched")
}

func TestSanitizeValidationError(t *testing.T) {
	assert.Equal(t, "", sanitizeValidationError(nil))
	assert.Equal(t, "Request body is required", sanitizeValidationError(io.EOF))
	assert.Equal(t, "Invalid request", sanitizeValidationError(errors.New("json: cannot unmarshal number into Go struct field")))
	assert.Equal(t, "Invalid request", sanitizeValidationError(errors.New(`ERROR: relation "x" does not exist (SQLSTATE 42P01)`)))
	assert.Equal(t, "connection reset", sanitizeValidationError(errors.New("connection reset")))
	assert.Equal(t, "Invalid request", sanitizeValidationError(errors.New(strings.Repeat("x", 120))))
}
