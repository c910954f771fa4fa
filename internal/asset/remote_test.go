package asset_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Marquee/internal/asset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRecord = asset.Record{
	Title:        "Clair de Lune - Debussy",
	ManifestURL:  "/uploads/videos/9b2f/index.m3u8",
	Size:         1048576,
	ThumbnailURL: "/uploads/videos/9b2f/Clair de Lune - Debussy.jpg",
	Duration:     12.5,
	Format:       "mov,mp4,m4a,3gp,3g2,mj2",
}

func newCatalogServer(t *testing.T, handler http.HandlerFunc) *asset.RemoteRegistrar {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return asset.NewRemoteRegistrarWithClient(server.URL+"/", server.Client())
}

func Test_RemoteRegister_PostsRecord(t *testing.T) {
	var received asset.Record
	registrar := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/assets", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &received))

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"success": true, "message": "Video uploaded successfully"}`)
	})

	registration := registrar.Register(context.Background(), testRecord)
	assert.Equal(t, asset.Registration{Success: true, Message: "Video uploaded successfully"}, registration)
	assert.Equal(t, testRecord, received)
}

func Test_RemoteRegister_FailureReasonIsVerbatim(t *testing.T) {
	registrar := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"success": false, "Message": "Failed to upload video", "error": "E11000 duplicate key error"}`)
	})

	registration := registrar.Register(context.Background(), testRecord)
	assert.False(t, registration.Success)
	assert.Equal(t, "Failed to upload video", registration.Message)
	assert.Equal(t, "E11000 duplicate key error", registration.Error)
}

func Test_RemoteRegister_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-json body", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, "<html>Bad Gateway</html>")
		}},
		{"error status claiming success", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"success": true}`)
		}},
		{"unsuccessful without reason", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"success": false}`)
		}},
		{"error status with empty body", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			registration := newCatalogServer(t, test.handler).Register(context.Background(), testRecord)
			assert.False(t, registration.Success)
			assert.NotEmpty(t, registration.Error)
		})
	}
}

func Test_RemoteRegister_AcceptedWithoutEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"empty body", http.StatusCreated, "", "Created"},
		{"whitespace body", http.StatusOK, "\n", "OK"},
		{"plain text body", http.StatusOK, "stored", "OK"},
		{"no content", http.StatusNoContent, "", "No Content"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			registrar := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.status)
				fmt.Fprint(w, test.body)
			})

			registration := registrar.Register(context.Background(), testRecord)
			assert.Equal(t, asset.Registration{Success: true, Message: test.message}, registration)
		})
	}
}

func Test_RemoteRegister_UnreachableCatalog(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	registration := asset.NewRemoteRegistrar(server.URL, time.Second).Register(context.Background(), testRecord)
	assert.False(t, registration.Success)
	assert.NotEmpty(t, registration.Error)
}

func Test_RemoteList_DecodesAssets(t *testing.T) {
	id := uuid.New()
	registrar := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assets", r.URL.Path)
		fmt.Fprintf(w, `{
			"success": true,
			"Message": "Videos list fetched successfully",
			"count": 2,
			"data": [
				{"id": "%s", "title": "Clair de Lune - Debussy", "manifestUrl": "/uploads/videos/a/index.m3u8", "size": "1024", "duration": 12.5, "format": "mp4", "createdAt": "2024-05-01T10:00:00Z"},
				{"title": "raw_clip", "manifestUrl": "/uploads/videos/b/index.m3u8", "size": 2048}
			]
		}`, id)
	})

	assets, err := registrar.List(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 2)

	assert.Equal(t, id, assets[0].ID)
	assert.Equal(t, "Clair de Lune - Debussy", assets[0].Title)
	assert.EqualValues(t, 1024, assets[0].Size)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), assets[0].CreatedAt)
	assert.Equal(t, "raw_clip", assets[1].Title)
	assert.Equal(t, uuid.Nil, assets[1].ID)
}

func Test_RemoteGetByTitle(t *testing.T) {
	registrar := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("title") {
		case "raw_clip":
			fmt.Fprint(w, `{"success": true, "data": {"title": "raw_clip", "manifestUrl": "/uploads/videos/b/index.m3u8"}}`)
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"success": false, "error": "database unavailable"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"success": false, "message": "Video not found"}`)
		}
	})

	found, err := registrar.GetByTitle(context.Background(), "raw_clip")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/videos/b/index.m3u8", found.ManifestURL)

	_, err = registrar.GetByTitle(context.Background(), "missing")
	assert.ErrorIs(t, err, asset.ErrAssetNotFound)

	_, err = registrar.GetByTitle(context.Background(), "broken")
	assert.ErrorContains(t, err, "database unavailable")
}
