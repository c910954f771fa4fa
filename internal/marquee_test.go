package internal

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hbomb79/Marquee/internal/api"
	"github.com/hbomb79/Marquee/internal/asset"
	"github.com/hbomb79/Marquee/internal/ffmpeg"
	"github.com/hbomb79/Marquee/internal/http/lastfm"
	"github.com/hbomb79/Marquee/internal/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remoteConfig(t *testing.T, hostAddr string) MarqueeConfig {
	return MarqueeConfig{
		LogLevel: "debug",
		Api:      api.RestConfig{HostAddr: hostAddr, BodyLimit: "1M", AllowOrigins: []string{"*"}},
		Uploads:  UploadsConfig{Root: t.TempDir()},
		Ffmpeg:   ffmpeg.Config{FfmpegBinPath: "marquee-missing-ffmpeg", FfprobeBinPath: "marquee-missing-ffprobe"},
		Lastfm:   lastfm.Config{BaseURL: "http://127.0.0.1:1/", TimeoutSeconds: 1},
		Catalog:  asset.Config{Backend: asset.BackendRemote, RemoteURL: "http://127.0.0.1:1", TimeoutSeconds: 1},
		Ingest:   ingest.Config{ForceSyncSeconds: 60},
	}
}

func Test_New_RemoteCatalogHasNoDatabase(t *testing.T) {
	marquee, err := New(remoteConfig(t, "127.0.0.1:0"))
	require.NoError(t, err)

	assert.Nil(t, marquee.db)
	assert.IsType(t, &asset.RemoteRegistrar{}, marquee.catalog)
	assert.Nil(t, marquee.ingestService)
	assert.DirExists(t, marquee.layout.VideosDir())
	assert.DirExists(t, marquee.layout.IncomingDir())
}

func Test_New_StoreCatalogUsesDatabase(t *testing.T) {
	config := remoteConfig(t, "127.0.0.1:0")
	config.Catalog = asset.Config{Backend: asset.BackendStore}

	marquee, err := New(config)
	require.NoError(t, err)

	assert.NotNil(t, marquee.db)
	assert.IsType(t, &asset.StoreRegistrar{}, marquee.catalog)
}

func Test_New_EnablesIngest(t *testing.T) {
	config := remoteConfig(t, "127.0.0.1:0")
	config.Ingest.Path = t.TempDir()

	marquee, err := New(config)
	require.NoError(t, err)

	assert.NotNil(t, marquee.ingestService)
}

func Test_Run_StopsWhenCancelled(t *testing.T) {
	config := remoteConfig(t, "127.0.0.1:0")
	config.Ingest.Path = t.TempDir()
	marquee, err := New(config)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error)
	go func() { result <- marquee.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func Test_Run_ReturnsServiceCrash(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	marquee, err := New(remoteConfig(t, listener.Addr().String()))
	require.NoError(t, err)

	result := make(chan error)
	go func() { result <- marquee.Run(context.Background()) }()

	select {
	case err := <-result:
		assert.ErrorContains(t, err, "rest-gateway")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the gateway failed to bind")
	}
}
