package videos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hbomb79/Marquee/internal/asset"
	"github.com/hbomb79/Marquee/internal/pipeline"
	"github.com/hbomb79/Marquee/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/bytes"
)

const uploadField = "file"

type (
	Pipeline interface {
		Run(ctx context.Context, file pipeline.UploadedFile) *pipeline.Result
	}

	Catalog interface {
		List(ctx context.Context) ([]*asset.Asset, error)
		GetByTitle(ctx context.Context, title string) (*asset.Asset, error)
	}

	ListResponse struct {
		Success bool           `json:"success"`
		Message string         `json:"message"`
		Count   int            `json:"count"`
		Data    []*asset.Asset `json:"data"`
	}

	AssetResponse struct {
		Success bool         `json:"success"`
		Message string       `json:"message"`
		Data    *asset.Asset `json:"data"`
	}

	// Controller exposes the upload intake and the read side of
	// the asset catalog.
	Controller struct {
		pipeline         Pipeline
		catalog          Catalog
		incomingDir      string
		uploadMiddleware []echo.MiddlewareFunc
	}
)

var controllerLogger = logger.Get("VideosController")

func New(pipeline Pipeline, catalog Catalog, incomingDir string, uploadMiddleware ...echo.MiddlewareFunc) *Controller {
	return &Controller{pipeline: pipeline, catalog: catalog, incomingDir: incomingDir, uploadMiddleware: uploadMiddleware}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/", controller.upload, controller.uploadMiddleware...)
	eg.GET("/", controller.list)
	eg.GET("/by-title/", controller.getByTitle)
}

// SetLegacyRoutes registers the un-versioned endpoints that existing
// clients still use.
func (controller *Controller) SetLegacyRoutes(ec *echo.Echo) {
	ec.POST("/uploadVideo/", controller.upload, controller.uploadMiddleware...)
	ec.GET("/getVideoslist/", controller.list)
	ec.GET("/getVideosPathByname/", controller.getByTitle)
}

// upload receives the multipart file, and runs it through the pipeline. The
// request blocks until the job is complete, at which point the job result
// is returned.
func (controller *Controller) upload(ec echo.Context) error {
	header, err := ec.FormFile(uploadField)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("multipart field '%s' is required", uploadField))
	}

	path, err := controller.receive(header)
	if err != nil {
		controllerLogger.Emit(logger.ERROR, "Failed to receive upload %q: %v\n", header.Filename, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to receive upload")
	}
	controllerLogger.Emit(logger.INFO, "Received upload %q (%s)\n", header.Filename, bytes.Format(header.Size))

	// A client disconnecting must not kill an in-progress transcode
	ctx := context.WithoutCancel(ec.Request().Context())
	result := controller.pipeline.Run(ctx, pipeline.UploadedFile{
		Path:         path,
		OriginalName: header.Filename,
		Size:         header.Size,
	})

	return ec.JSON(statusForResult(result), result)
}

func (controller *Controller) list(ec echo.Context) error {
	assets, err := controller.catalog.List(ec.Request().Context())
	if err != nil {
		controllerLogger.Emit(logger.ERROR, "Failed to list assets: %v\n", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
	}

	if assets == nil {
		assets = make([]*asset.Asset, 0)
	}

	return ec.JSON(http.StatusOK, ListResponse{
		Success: true,
		Message: fmt.Sprintf("Retrieved %d documents", len(assets)),
		Count:   len(assets),
		Data:    assets,
	})
}

func (controller *Controller) getByTitle(ec echo.Context) error {
	title := ec.QueryParam("title")
	if title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter 'title' is required")
	}

	found, err := controller.catalog.GetByTitle(ec.Request().Context(), title)
	if errors.Is(err, asset.ErrAssetNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no asset with title %q", title))
	} else if err != nil {
		controllerLogger.Emit(logger.ERROR, "Failed to get asset %q: %v\n", title, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
	}

	return ec.JSON(http.StatusOK, AssetResponse{Success: true, Message: "data retrieved", Data: found})
}

// receive writes the uploaded file to the incoming directory under a unique
// name, returning the path it was written to.
func (controller *Controller) receive(header *multipart.FileHeader) (string, error) {
	src, err := header.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst := filepath.Join(controller.incomingDir, fmt.Sprintf("%s-%s%s", uploadField, uuid.New(), filepath.Ext(header.Filename)))
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return "", err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return "", err
	}

	return dst, nil
}

// statusForResult maps the outcome of a job to the HTTP status of the
// upload response. The body is the full result in every case.
func statusForResult(result *pipeline.Result) int {
	if result.Succeeded() {
		return http.StatusOK
	}

	kind, _ := pipeline.KindOf(result.Err)
	switch kind {
	case pipeline.TranscodeFailed:
		return http.StatusUnprocessableEntity
	case pipeline.RegistrationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
