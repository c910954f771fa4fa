package videos_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/hbomb79/Marquee/internal/api/videos"
	"github.com/hbomb79/Marquee/internal/asset"
	"github.com/hbomb79/Marquee/internal/pipeline"
	"github.com/hbomb79/Marquee/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

type mockPipeline struct{ mock.Mock }

func (m *mockPipeline) Run(ctx context.Context, file pipeline.UploadedFile) *pipeline.Result {
	args := m.Called(ctx, file)
	return args.Get(0).(*pipeline.Result) //nolint:forcetypeassert
}

type mockCatalog struct{ mock.Mock }

func (m *mockCatalog) List(ctx context.Context) ([]*asset.Asset, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]*asset.Asset), args.Error(1) //nolint:forcetypeassert
	}
	return nil, args.Error(1)
}

func (m *mockCatalog) GetByTitle(ctx context.Context, title string) (*asset.Asset, error) {
	args := m.Called(ctx, title)
	if v := args.Get(0); v != nil {
		return v.(*asset.Asset), args.Error(1) //nolint:forcetypeassert
	}
	return nil, args.Error(1)
}

type fixture struct {
	ec          *echo.Echo
	pipeline    *mockPipeline
	catalog     *mockCatalog
	incomingDir string
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		ec:          echo.New(),
		pipeline:    &mockPipeline{},
		catalog:     &mockCatalog{},
		incomingDir: t.TempDir(),
	}

	controller := videos.New(f.pipeline, f.catalog, f.incomingDir, middleware.BodyLimit("1K"))
	f.ec.Pre(middleware.AddTrailingSlash())
	controller.SetRoutes(f.ec.Group("/api/marquee/v1/videos"))
	controller.SetLegacyRoutes(f.ec)

	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.ec.ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, target string, field string, filename string, content []byte) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func Test_Upload_RunsPipelineWithReceivedFile(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()

	var received pipeline.UploadedFile
	f.pipeline.On("Run", mock.Anything, mock.MatchedBy(func(file pipeline.UploadedFile) bool {
		received = file

		// The upload must be on disk by the time the pipeline runs
		content, err := os.ReadFile(file.Path)
		return err == nil && string(content) == "not really a video"
	})).Return(&pipeline.Result{
		ID:          jobID,
		Title:       "Clair de Lune - Debussy",
		ManifestURL: "/uploads/videos/" + jobID.String() + "/index.m3u8",
		ByteSize:    18,
		Stage:       pipeline.Cleaned,
	}).Once()

	rec := f.do(multipartRequest(t, "/api/marquee/v1/videos/", "file", "Clair de Lune.mp4", []byte("not really a video")))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, jobID.String(), body["jobId"])
	assert.Equal(t, "Clair de Lune - Debussy", body["title"])
	assert.Equal(t, "Cleaned", body["stage"])
	assert.NotContains(t, body, "error")

	assert.Equal(t, "Clair de Lune.mp4", received.OriginalName)
	assert.EqualValues(t, 18, received.Size)
	assert.Equal(t, f.incomingDir, filepath.Dir(received.Path))
	assert.Equal(t, ".mp4", filepath.Ext(received.Path))
	f.pipeline.AssertExpectations(t)
}

func Test_Upload_LegacyAliasWithoutTrailingSlash(t *testing.T) {
	f := newFixture(t)
	f.pipeline.On("Run", mock.Anything, mock.Anything).Return(&pipeline.Result{ID: uuid.New(), Stage: pipeline.Cleaned}).Once()

	rec := f.do(multipartRequest(t, "/uploadVideo", "file", "a.mp4", []byte("x")))

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	f.pipeline.AssertExpectations(t)
}

func Test_Upload_FailureStatuses(t *testing.T) {
	tests := []struct {
		summary        string
		kind           pipeline.Kind
		expectedStatus int
	}{
		{"transcode failure", pipeline.TranscodeFailed, http.StatusUnprocessableEntity},
		{"registration failure", pipeline.RegistrationFailed, http.StatusBadGateway},
		{"directory failure", pipeline.IOError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			f := newFixture(t)
			cause := &pipeline.StageError{Kind: tt.kind, Err: errors.New("boom")}
			f.pipeline.On("Run", mock.Anything, mock.Anything).Return(&pipeline.Result{
				ID:    uuid.New(),
				Title: "clip",
				Error: cause.Error(),
				Err:   cause,
			}).Once()

			rec := f.do(multipartRequest(t, "/api/marquee/v1/videos/", "file", "clip.mp4", []byte("x")))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, "clip", body["title"])
			assert.Equal(t, cause.Error(), body["error"])
		})
	}
}

func Test_Upload_MissingFileField(t *testing.T) {
	f := newFixture(t)

	rec := f.do(multipartRequest(t, "/api/marquee/v1/videos/", "video", "clip.mp4", []byte("x")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.pipeline.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func Test_Upload_BodyLimitEnforced(t *testing.T) {
	f := newFixture(t)

	rec := f.do(multipartRequest(t, "/api/marquee/v1/videos/", "file", "big.mp4", bytes.Repeat([]byte("x"), 4096)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	f.pipeline.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func Test_List(t *testing.T) {
	f := newFixture(t)
	assets := []*asset.Asset{
		{ID: uuid.New(), Record: asset.Record{Title: "one", ManifestURL: "/uploads/videos/1/index.m3u8", Size: 10}},
		{ID: uuid.New(), Record: asset.Record{Title: "two", ManifestURL: "/uploads/videos/2/index.m3u8", Size: 20}},
	}
	f.catalog.On("List", mock.Anything).Return(assets, nil)

	for _, target := range []string{"/api/marquee/v1/videos/", "/getVideoslist"} {
		rec := f.do(httptest.NewRequest(http.MethodGet, target, nil))

		require.Equal(t, http.StatusOK, rec.Code, target)
		var body videos.ListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Success)
		assert.Equal(t, 2, body.Count)
		assert.Equal(t, "Retrieved 2 documents", body.Message)
		require.Len(t, body.Data, 2)
		assert.Equal(t, "one", body.Data[0].Title)
	}
}

func Test_List_EmptyCatalogIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.catalog.On("List", mock.Anything).Return(nil, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/marquee/v1/videos/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 0, body["count"])
	assert.Equal(t, []any{}, body["data"])
}

func Test_List_CatalogFailure(t *testing.T) {
	f := newFixture(t)
	f.catalog.On("List", mock.Anything).Return(nil, errors.New("connection refused"))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/marquee/v1/videos/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func Test_GetByTitle(t *testing.T) {
	f := newFixture(t)
	found := &asset.Asset{ID: uuid.New(), Record: asset.Record{Title: "Clair de Lune - Debussy"}}
	f.catalog.On("GetByTitle", mock.Anything, "Clair de Lune - Debussy").Return(found, nil)
	f.catalog.On("GetByTitle", mock.Anything, "missing").Return(nil, asset.ErrAssetNotFound)
	f.catalog.On("GetByTitle", mock.Anything, "broken").Return(nil, errors.New("timeout"))

	tests := []struct {
		summary        string
		target         string
		expectedStatus int
	}{
		{"found", "/api/marquee/v1/videos/by-title/?title=Clair+de+Lune+-+Debussy", http.StatusOK},
		{"found via legacy alias", "/getVideosPathByname?title=Clair%20de%20Lune%20-%20Debussy", http.StatusOK},
		{"not found", "/api/marquee/v1/videos/by-title/?title=missing", http.StatusNotFound},
		{"catalog failure", "/api/marquee/v1/videos/by-title/?title=broken", http.StatusInternalServerError},
		{"missing title", "/api/marquee/v1/videos/by-title/", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			rec := f.do(httptest.NewRequest(http.MethodGet, tt.target, nil))
			require.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())

			if tt.expectedStatus == http.StatusOK {
				var body videos.AssetResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.True(t, body.Success)
				require.NotNil(t, body.Data)
				assert.Equal(t, found.ID, body.Data.ID)
			}
		})
	}
}
