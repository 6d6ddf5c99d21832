package bus

import (
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// dlxRingCap bounds the in-memory ring buffer backing dead-letter
// snapshots: only the most recent messages are worth persisting across a
// restart, not the full lifetime history.
const dlxRingCap = 1000

// persistedEnvelope is the on-disk twin of Envelope: msgpack round-trips
// exported fields cleanly, but expiresAt needs to survive the trip too so a
// restored message isn't immediately treated as expired.
type persistedEnvelope struct {
	ID         string                 `msgpack:"id"`
	Timestamp  time.Time              `msgpack:"timestamp"`
	RoutingKey string                 `msgpack:"routing_key"`
	Payload    map[string]interface{} `msgpack:"payload"`
	Persistent bool                   `msgpack:"persistent"`
	ExpiresAt  time.Time              `msgpack:"expires_at"`
}

type dlxSnapshot struct {
	SavedAt  time.Time           `msgpack:"saved_at"`
	Messages []persistedEnvelope `msgpack:"messages"`
}

func (b *Bus) recordDeadLetter(env *Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dlxRing = append(b.dlxRing, env)
	if len(b.dlxRing) > dlxRingCap {
		b.dlxRing = b.dlxRing[len(b.dlxRing)-dlxRingCap:]
	}
}

// SaveSnapshot msgpack-encodes the dead-letter ring buffer to path, for
// operators to inspect (or for a future restart to reload) what the bus
// could not deliver. Grounded on the teacher's msgpack-for-compact-on-disk-
// state idiom; called from Close on the way out.
func (b *Bus) SaveSnapshot(path string) error {
	b.mu.RLock()
	snap := dlxSnapshot{SavedAt: time.Now(), Messages: make([]persistedEnvelope, len(b.dlxRing))}
	for i, env := range b.dlxRing {
		snap.Messages[i] = persistedEnvelope{
			ID: env.ID, Timestamp: env.Timestamp, RoutingKey: env.RoutingKey,
			Payload: env.Payload, Persistent: env.Persistent, ExpiresAt: env.expiresAt,
		}
	}
	b.mu.RUnlock()

	raw, err := msgpack.Marshal(snap)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// LoadSnapshot restores a previously saved dead-letter ring buffer from
// path into the dead_letters queue, so operators restarting the process
// don't lose visibility into undelivered messages. A missing file is not
// an error (nothing to restore on first boot).
func (b *Bus) LoadSnapshot(path string) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var snap dlxSnapshot
	if err := msgpack.Unmarshal(raw, &snap); err != nil {
		return err
	}
	for _, p := range snap.Messages {
		env := &Envelope{
			ID: p.ID, Timestamp: p.Timestamp, RoutingKey: p.RoutingKey,
			Payload: p.Payload, Persistent: p.Persistent, expiresAt: p.ExpiresAt,
		}
		if env.expired() {
			continue
		}
		b.enqueue(dlxQueue, env)
	}
	return nil
}

// Close flushes the dead-letter snapshot to snapshotPath (if one was
// configured) and disconnects the bus.
func (b *Bus) Close(snapshotPath string) error {
	var err error
	if snapshotPath != "" {
		err = b.SaveSnapshot(snapshotPath)
	}
	b.Disconnect()
	return err
}
