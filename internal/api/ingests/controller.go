package ingests

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/hbomb79/Marquee/internal/ingest"
	"github.com/hbomb79/Marquee/pkg/logger"
	"github.com/labstack/echo/v4"
)

var controllerLogger = logger.Get("IngestsController")

type (
	IngestService interface {
		GetAllIngests() []*ingest.Item
		GetIngest(uuid.UUID) *ingest.Item
		RemoveIngest(uuid.UUID) error
		DiscoverNewFiles()
		ResolveTroubledIngest(itemID uuid.UUID, method ingest.ResolutionType) error
	}

	ResolveTroubleRequest struct {
		Method *ResolutionTypeWrapper `json:"method"`
	}

	// Controller serves the drop-folder ingest endpoints.
	Controller struct {
		service IngestService
	}
)

func New(serv IngestService) *Controller {
	return &Controller{service: serv}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
	eg.POST("/poll/", controller.poll)
	eg.GET("/:id/", controller.get)
	eg.DELETE("/:id/", controller.remove)
	eg.POST("/:id/trouble-resolution/", controller.resolveTrouble)
}

func (controller *Controller) list(ec echo.Context) error {
	items := controller.service.GetAllIngests()
	dtos := make([]*Dto, 0, len(items))
	for _, item := range items {
		dtos = append(dtos, NewDto(item))
	}

	return ec.JSON(http.StatusOK, dtos)
}

func (controller *Controller) get(ec echo.Context) error {
	id, err := itemID(ec)
	if err != nil {
		return err
	}

	if item := controller.service.GetIngest(id); item != nil {
		return ec.JSON(http.StatusOK, NewDto(item))
	}

	return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("Ingest %s not found", id))
}

// remove forgets the ingest. Items which are mid-ingest cannot be removed.
func (controller *Controller) remove(ec echo.Context) error {
	id, err := itemID(ec)
	if err != nil {
		return err
	}

	if err := controller.service.RemoveIngest(id); err != nil {
		return serviceError(err)
	}

	controllerLogger.Emit(logger.REMOVE, "Ingest %s removed by request\n", id)
	return ec.NoContent(http.StatusOK)
}

func (controller *Controller) resolveTrouble(ec echo.Context) error {
	id, err := itemID(ec)
	if err != nil {
		return err
	}

	var request ResolveTroubleRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if request.Method == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Request body must specify a resolution 'method'")
	}

	if err := controller.service.ResolveTroubledIngest(id, request.Method.Value); err != nil {
		return serviceError(err)
	}

	return ec.NoContent(http.StatusOK)
}

func (controller *Controller) poll(ec echo.Context) error {
	controller.service.DiscoverNewFiles()
	return ec.NoContent(http.StatusOK)
}

func itemID(ec echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "Ingest ID is not a valid UUID")
	}

	return id, nil
}

func serviceError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ingest.ErrIngestNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ingest.ErrIngestBusy):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
