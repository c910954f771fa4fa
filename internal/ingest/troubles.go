package ingest

import (
	"fmt"
	"slices"

	"github.com/hbomb79/Marquee/internal/pipeline"
)

type (
	TroubleType int
	Trouble     struct {
		error
		tType TroubleType

		// kind is the pipeline failure kind; only meaningful when
		// the trouble type is PipelineFailure
		kind       pipeline.Kind
		reregister bool
	}

	ResolutionType int
)

const (
	ClaimFailure TroubleType = iota
	PipelineFailure
)

const (
	Retry ResolutionType = iota
	Abort
)

func newClaimTrouble(err error) *Trouble {
	return &Trouble{error: err, tType: ClaimFailure}
}

func newPipelineTrouble(result *pipeline.Result) *Trouble {
	kind, _ := pipeline.KindOf(result.Err)
	return &Trouble{error: result.Err, tType: PipelineFailure, kind: kind, reregister: kind == pipeline.RegistrationFailed && result.Record != nil}
}

func (t *Trouble) Type() TroubleType { return t.tType }

// Kind returns the pipeline failure kind behind this trouble. The
// boolean is false for troubles which did not come from a pipeline run.
func (t *Trouble) Kind() (pipeline.Kind, bool) {
	return t.kind, t.tType == PipelineFailure
}

// AllowedResolutionTypes lists the resolutions which can succeed for this
// trouble. A failed registration has already consumed the claimed file, so
// it can only be retried when the transcoded asset can be registered again.
func (t *Trouble) AllowedResolutionTypes() []ResolutionType {
	if t.tType == PipelineFailure && t.kind == pipeline.RegistrationFailed && !t.reregister {
		return []ResolutionType{Abort}
	}

	return []ResolutionType{Abort, Retry}
}

func (t *Trouble) isResolutionTypeAllowed(resType ResolutionType) bool {
	return slices.Contains(t.AllowedResolutionTypes(), resType)
}

// retriesRegistration reports whether a retry of this trouble re-registers
// the existing asset instead of running the pipeline again.
func (t *Trouble) retriesRegistration() bool {
	return t.tType == PipelineFailure && t.reregister
}

func (t TroubleType) String() string {
	switch t {
	case ClaimFailure:
		return fmt.Sprintf("CLAIM_FAILURE[%d]", t)
	case PipelineFailure:
		return fmt.Sprintf("PIPELINE_FAILURE[%d]", t)
	default:
		return fmt.Sprintf("UNKNOWN[%d]", t)
	}
}

func (r ResolutionType) String() string {
	switch r {
	case Retry:
		return "retry"
	case Abort:
		return "abort"
	default:
		return fmt.Sprintf("UNKNOWN[%d]", r)
	}
}
