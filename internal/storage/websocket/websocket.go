package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/OCAP2/racetrack/pkg/core"
	"github.com/OCAP2/racetrack/pkg/streaming"
	"github.com/google/uuid"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams race data over WebSocket to an observer server.
// It implements storage.Backend but not storage.Uploadable.
type Backend struct {
	conn     *connection
	cfg      Config
	clientID string

	mu   sync.Mutex
	race *core.Race
}

// New creates a new WebSocket storage backend. Each backend gets a random
// client id that the server sees on every (re)connect.
func New(cfg Config) *Backend {
	return &Backend{
		conn:     newConnection(slog.Default()),
		cfg:      cfg,
		clientID: uuid.NewString(),
	}
}

// ClientID returns the id sent with the connection.
func (b *Backend) ClientID() string {
	return b.clientID
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret, b.clientID)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope queues a race state frame without waiting for an ack.
// State frames are replayed after a reconnect.
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.sendState(data)
	return nil
}

// sendEnvelopeAndWait marshals the payload and waits for a server ack.
func (b *Backend) sendEnvelopeAndWait(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	return b.conn.sendAndWait(data, msgType, ackTimeout)
}

// StartRace sends the race header and course and waits for server ack.
func (b *Backend) StartRace(r *core.Race) error {
	data, err := marshalEnvelope(streaming.TypeStartRace, streaming.StartRacePayload{Race: r})
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.race = r
	b.mu.Unlock()

	b.conn.beginReplay()

	return b.conn.sendAndWait(data, streaming.TypeStartRace, ackTimeout)
}

// EndRace sends the results followed by end_race and waits for the ack.
func (b *Backend) EndRace(results *core.Results) error {
	if results != nil {
		if err := b.sendEnvelope(streaming.TypeResults, results); err != nil {
			return err
		}
	}

	b.mu.Lock()
	meta := uploadMetadata(b.race, results)
	b.race = nil
	b.mu.Unlock()

	err := b.sendEnvelopeAndWait(streaming.TypeEndRace, streaming.EndRacePayload{Meta: meta})

	// Nothing to replay once the race is over, acked or not.
	b.conn.clearReplay()

	return err
}

func uploadMetadata(r *core.Race, results *core.Results) core.UploadMetadata {
	var meta core.UploadMetadata
	if r != nil {
		meta.RaceID = r.RaceID
		meta.RaceName = r.RaceName
		meta.TrackName = r.TrackName
		meta.Tag = r.Tag
	}
	if results != nil {
		meta.Finishers = len(results.Entries)
		for _, e := range results.Entries {
			if e.ElapsedTime > meta.RaceDuration {
				meta.RaceDuration = e.ElapsedTime
			}
		}
	}
	return meta
}

func (b *Backend) AddRacer(r *core.Racer) error {
	return b.sendEnvelope(streaming.TypeAddRacer, r)
}

func (b *Backend) RemoveRacer(name string) error {
	return b.sendEnvelope(streaming.TypeRemoveRacer, streaming.RemoveRacerPayload{Name: name})
}

// RecordProgress sends a progress sample. Samples are not replayed and
// are dropped when the link is backed up.
func (b *Backend) RecordProgress(s *core.ProgressState) error {
	data, err := marshalEnvelope(streaming.TypeProgress, s)
	if err != nil {
		return err
	}
	b.conn.sendSample(data)
	return nil
}

func (b *Backend) RecordCheckpoint(e *core.CheckpointEvent) error {
	return b.sendEnvelope(streaming.TypeCheckpoint, e)
}

func (b *Backend) RecordFinish(e *core.FinishEvent) error {
	return b.sendEnvelope(streaming.TypeFinish, e)
}
