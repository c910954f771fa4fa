package api

import (
	"github.com/google/uuid"
	"github.com/hbomb79/Marquee/internal/api/ingests"
	"github.com/hbomb79/Marquee/internal/http/websocket"
	"github.com/hbomb79/Marquee/internal/pipeline"
)

const (
	TITLE_JOB_UPDATE    = "JOB_UPDATE"
	TITLE_JOB_COMPLETE  = "JOB_COMPLETE"
	TITLE_INGEST_UPDATE = "INGEST_UPDATE"
	TITLE_ASSET_LIST    = "ASSET_LIST"
	TITLE_ASSET_GET     = "ASSET_GET"
)

type (
	broadcaster struct {
		socketHub     *websocket.SocketHub
		ingestService ingests.IngestService
	}
)

func newBroadcaster(socketHub *websocket.SocketHub, ingestService ingests.IngestService) *broadcaster {
	return &broadcaster{socketHub, ingestService}
}

func (hub *broadcaster) BroadcastJobUpdate(update pipeline.JobUpdate) error {
	hub.broadcast(TITLE_JOB_UPDATE, map[string]interface{}{"job": update})
	return nil
}

func (hub *broadcaster) BroadcastJobComplete(result *pipeline.Result) error {
	hub.broadcast(TITLE_JOB_COMPLETE, map[string]interface{}{"result": result})
	return nil
}

// BroadcastIngestUpdate sends the current state of the ingest to all
// clients. A nil ingest in the update indicates it has been removed.
func (hub *broadcaster) BroadcastIngestUpdate(id uuid.UUID) error {
	var dto *ingests.Dto
	if hub.ingestService != nil {
		if item := hub.ingestService.GetIngest(id); item != nil {
			dto = ingests.NewDto(item)
		}
	}

	hub.broadcast(TITLE_INGEST_UPDATE, map[string]interface{}{"ingest_id": id, "ingest": dto})
	return nil
}

func (hub *broadcaster) broadcast(title string, body map[string]interface{}) {
	hub.socketHub.Send(&websocket.SocketMessage{
		Title: title,
		Body:  body,
		Type:  websocket.Update,
	})
}
