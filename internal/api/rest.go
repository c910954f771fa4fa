package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hbomb79/Marquee/internal/api/ingests"
	"github.com/hbomb79/Marquee/internal/api/videos"
	"github.com/hbomb79/Marquee/internal/http/websocket"
	"github.com/hbomb79/Marquee/internal/workdir"
	"github.com/hbomb79/Marquee/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var log = logger.Get("API")

const socketCommandTimeout = 10 * time.Second

type (
	RestConfig struct {
		HostAddr     string   `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080" validate:"required,hostname_port"`
		BodyLimit    string   `yaml:"body_limit" env:"API_BODY_LIMIT" env-default:"4G" validate:"required"`
		AllowOrigins []string `yaml:"allow_origins" env:"API_ALLOW_ORIGINS" env-default:"*" env-separator:","`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// The RestGateway is a thin-wrapper around the Echo HTTP router. It's sole responsibility
	// is to create the routes Marquee exposes, and to manage ongoing web socket connections
	// and events.
	RestGateway struct {
		*broadcaster
		config           *RestConfig
		ec               *echo.Echo
		socket           *websocket.SocketHub
		catalog          videos.Catalog
		videoController  *videos.Controller
		ingestController controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all the
// routes defined by the various controllers. The ingest service is optional;
// when nil, the ingest routes are not registered.
func NewRestGateway(
	config *RestConfig,
	layout workdir.Layout,
	pipeline videos.Pipeline,
	catalog videos.Catalog,
	ingestService ingests.IngestService,
) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	socket := websocket.New()
	gateway := &RestGateway{
		broadcaster:     newBroadcaster(socket, ingestService),
		config:          config,
		ec:              ec,
		socket:          socket,
		catalog:         catalog,
		videoController: videos.New(pipeline, catalog, layout.IncomingDir(), middleware.BodyLimit(config.BodyLimit)),
	}

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: config.AllowOrigins}))
	ec.Pre(middleware.AddTrailingSlashWithConfig(middleware.TrailingSlashConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, workdir.URLPrefix+"/")
		},
	}))

	ec.GET("/", func(ec echo.Context) error {
		return ec.JSON(http.StatusOK, map[string]string{"message": "Hello, World!"})
	})

	ec.GET("/api/marquee/v1/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})
	socket.BindCommand(TITLE_ASSET_LIST, gateway.handleAssetListCommand)
	socket.BindCommand(TITLE_ASSET_GET, gateway.handleAssetGetCommand)
	socket.WithConnectionCallback(gateway.connectionState)

	videos := ec.Group("/api/marquee/v1/videos")
	gateway.videoController.SetRoutes(videos)
	gateway.videoController.SetLegacyRoutes(ec)

	if ingestService != nil {
		gateway.ingestController = ingests.New(ingestService)
		ingests := ec.Group("/api/marquee/v1/ingests")
		gateway.ingestController.SetRoutes(ingests)
	}

	ec.Static(workdir.URLPrefix, layout.Root)

	return gateway
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil && err != http.ErrServerClosed {
			ctxCancel(err)
		}
	}()

	// Start thread to listen for context cancellation
	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	// Start websocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}

func (gateway *RestGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gateway.ec.ServeHTTP(w, r)
}

// handleAssetListCommand replies to the client with the full asset catalog.
func (gateway *RestGateway) handleAssetListCommand(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), socketCommandTimeout)
	defer cancel()

	assets, err := gateway.catalog.List(ctx)
	if err != nil {
		return err
	}

	hub.Send(message.FormReply(TITLE_ASSET_LIST, map[string]interface{}{"assets": assets, "count": len(assets)}, websocket.Response))
	return nil
}

// handleAssetGetCommand replies with the asset whose title matches the
// 'title' argument of the command.
func (gateway *RestGateway) handleAssetGetCommand(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
	if err := message.ValidateArguments(map[string]websocket.ArgumentKind{"title": websocket.StringArgument}); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), socketCommandTimeout)
	defer cancel()

	//nolint:forcetypeassert
	found, err := gateway.catalog.GetByTitle(ctx, message.Body["title"].(string))
	if err != nil {
		return err
	}

	hub.Send(message.FormReply(TITLE_ASSET_GET, map[string]interface{}{"asset": found}, websocket.Response))
	return nil
}

// connectionState is sent to every client as it connects, so that
// the ingests already known are visible without waiting for an update.
func (gateway *RestGateway) connectionState() map[string]interface{} {
	state := map[string]interface{}{"ingest_enabled": gateway.ingestService != nil}
	if gateway.ingestService == nil {
		return state
	}

	items := gateway.ingestService.GetAllIngests()
	dtos := make([]*ingests.Dto, len(items))
	for k, item := range items {
		dtos[k] = ingests.NewDto(item)
	}
	state["ingests"] = dtos

	return state
}
