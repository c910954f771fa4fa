package ingest

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Marquee/internal/pipeline"
)

type (
	ItemState int

	// Item is a file discovered in the drop folder. Once claimed, the
	// file is moved into the uploads area and ClaimedPath points at it.
	Item struct {
		ID          uuid.UUID
		Path        string
		ClaimedPath string
		State       ItemState
		Trouble     *Trouble
		Result      *pipeline.Result
	}
)

const (
	ImportHold ItemState = iota
	Idle
	Ingesting
	Troubled
	Complete
)

var (
	ErrNoTrouble              = errors.New("ingestion has no trouble")
	ErrIngestNotFound         = errors.New("no ingest task could be found")
	ErrIngestBusy             = errors.New("ingest is currently being processed")
	ErrResolutionIncompatible = errors.New("provided resolution method is not valid for ingestion trouble")
	ErrSourceMissing          = errors.New("source file for ingest no longer exists")
	ErrServiceStopped         = errors.New("ingest service is not running")
)

// sourcePath returns the path of the file this item should be processed
// from, which is the claimed copy when one exists.
func (item *Item) sourcePath() string {
	if item.ClaimedPath != "" {
		return item.ClaimedPath
	}

	return item.Path
}

func (item *Item) modtimeDiff() (time.Duration, error) {
	itemInfo, err := os.Stat(item.Path)
	if err != nil {
		return 0, err
	}

	return time.Since(itemInfo.ModTime()), nil
}

// snapshot returns a copy of the item which is safe to hand out
// while the service continues to mutate the original.
func (item *Item) snapshot() *Item {
	cp := *item
	if item.Trouble != nil {
		trouble := *item.Trouble
		cp.Trouble = &trouble
	}

	return &cp
}

func (item *Item) String() string {
	return fmt.Sprintf("IngestItem{ID=%s state=%s}", item.ID, item.State)
}

func (s ItemState) String() string {
	switch s {
	case Idle:
		return fmt.Sprintf("IDLE[%d]", s)
	case ImportHold:
		return fmt.Sprintf("IMPORT_HOLD[%d]", s)
	case Ingesting:
		return fmt.Sprintf("INGESTING[%d]", s)
	case Troubled:
		return fmt.Sprintf("TROUBLED[%d]", s)
	case Complete:
		return fmt.Sprintf("COMPLETE[%d]", s)
	default:
		return fmt.Sprintf("UNKNOWN[%d]", s)
	}
}
