package streaming

import (
	"encoding/json"

	"github.com/OCAP2/racetrack/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartRace   = "start_race"
	TypeEndRace     = "end_race"
	TypeAddRacer    = "add_racer"
	TypeRemoveRacer = "remove_racer"
	TypeProgress    = "progress"
	TypeCheckpoint  = "checkpoint"
	TypeFinish      = "finish"
	TypeResults     = "results"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartRacePayload carries the race header and its course.
type StartRacePayload struct {
	Race *core.Race `json:"race"`
}

// RemoveRacerPayload names a racer that left the race.
type RemoveRacerPayload struct {
	Name string `json:"name"`
}

// EndRacePayload carries upload metadata for the finished race.
type EndRacePayload struct {
	Meta core.UploadMetadata `json:"meta"`
}
