package ingests

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hbomb79/Marquee/internal/ingest"
	"github.com/hbomb79/Marquee/internal/pipeline"
	"github.com/hbomb79/Marquee/pkg/logger"
)

type (
	// Dto is how an ingest item is presented over HTTP and the activity stream.
	Dto struct {
		ID          uuid.UUID        `json:"id"`
		Path        string           `json:"source_path"`
		ClaimedPath string           `json:"claimed_path,omitempty"`
		State       StateDto         `json:"state"`
		Trouble     *TroubleDto      `json:"trouble"`
		Result      *pipeline.Result `json:"result"`
	}

	StateDto       string
	TroubleTypeDto string

	TroubleDto struct {
		Type                   TroubleTypeDto          `json:"type"`
		Message                string                  `json:"message"`
		Kind                   string                  `json:"pipeline_failure_kind,omitempty"`
		AllowedResolutionTypes []ResolutionTypeWrapper `json:"allowed_resolution_types"`
	}

	// ResolutionTypeWrapper (un)marshals a resolution type by name.
	ResolutionTypeWrapper struct{ Value ingest.ResolutionType }
)

const (
	IDLE        StateDto = "IDLE"
	IMPORT_HOLD StateDto = "IMPORT_HOLD"
	INGESTING   StateDto = "INGESTING"
	TROUBLED    StateDto = "TROUBLED"
	COMPLETE    StateDto = "COMPLETE"

	CLAIM_FAILURE    TroubleTypeDto = "CLAIM_FAILURE"
	PIPELINE_FAILURE TroubleTypeDto = "PIPELINE_FAILURE"
)

var (
	stateNames = map[ingest.ItemState]StateDto{
		ingest.Idle:       IDLE,
		ingest.ImportHold: IMPORT_HOLD,
		ingest.Ingesting:  INGESTING,
		ingest.Troubled:   TROUBLED,
		ingest.Complete:   COMPLETE,
	}

	troubleNames = map[ingest.TroubleType]TroubleTypeDto{
		ingest.ClaimFailure:    CLAIM_FAILURE,
		ingest.PipelineFailure: PIPELINE_FAILURE,
	}

	resolutionNames = map[ingest.ResolutionType]string{
		ingest.Abort: "abort",
		ingest.Retry: "retry",
	}
)

func NewDto(item *ingest.Item) *Dto {
	return &Dto{
		ID:          item.ID,
		Path:        item.Path,
		ClaimedPath: item.ClaimedPath,
		State:       StateModelToDto(item.State),
		Trouble:     newTroubleDto(item.Trouble),
		Result:      item.Result,
	}
}

func newTroubleDto(trouble *ingest.Trouble) *TroubleDto {
	if trouble == nil {
		return nil
	}

	dto := &TroubleDto{
		Type:                   TroubleTypeModelToDto(trouble.Type()),
		Message:                trouble.Error(),
		AllowedResolutionTypes: ExtractTroubleResolutionTypes(trouble),
	}
	if kind, ok := trouble.Kind(); ok {
		dto.Kind = kind.String()
	}

	return dto
}

func ExtractTroubleResolutionTypes(trouble *ingest.Trouble) []ResolutionTypeWrapper {
	allowed := trouble.AllowedResolutionTypes()
	wrapped := make([]ResolutionTypeWrapper, 0, len(allowed))
	for _, resType := range allowed {
		wrapped = append(wrapped, ResolutionTypeWrapper{Value: resType})
	}

	return wrapped
}

// TroubleTypeModelToDto falls back to the model's own name for unknown
// trouble types, logging the mismatch.
func TroubleTypeModelToDto(troubleType ingest.TroubleType) TroubleTypeDto {
	if name, ok := troubleNames[troubleType]; ok {
		return name
	}

	controllerLogger.Emit(logger.ERROR, "No API name for trouble type %s\n", troubleType)
	return TroubleTypeDto(troubleType.String())
}

func StateModelToDto(state ingest.ItemState) StateDto {
	if name, ok := stateNames[state]; ok {
		return name
	}

	controllerLogger.Emit(logger.ERROR, "No API name for ingest state %s\n", state)
	return StateDto(state.String())
}

func (wrapper *ResolutionTypeWrapper) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	for resType, known := range resolutionNames {
		if known == name {
			wrapper.Value = resType
			return nil
		}
	}

	return fmt.Errorf("unknown resolution method %q", name)
}

func (wrapper ResolutionTypeWrapper) MarshalJSON() ([]byte, error) {
	name, ok := resolutionNames[wrapper.Value]
	if !ok {
		return nil, fmt.Errorf("resolution method %v has no name", wrapper.Value)
	}

	return json.Marshal(name)
}
