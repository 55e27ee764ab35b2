package dispatch

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Instance holds the identity and execution counters of one engine.
//
// Seq and the in-flight gauge are the only state Exec mutates, and both are
// atomic, so Exec may run concurrently for independent calls. Counters are
// never reset.
type Instance struct {
	ID        string
	CreatedAt time.Time

	seq      atomic.Uint64
	inflight atomic.Int64
}

// NewInstance returns an instance with the given id. An empty id is replaced
// by a time-ordered UUIDv7.
func NewInstance(id string) *Instance {
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}
	return &Instance{ID: id, CreatedAt: time.Now()}
}

// NextSeq increments the sequence and returns the new value. The first call
// returns 1.
func (i *Instance) NextSeq() uint64 {
	return i.seq.Add(1)
}

// Seq returns the last assigned sequence number.
func (i *Instance) Seq() uint64 {
	return i.seq.Load()
}

// IncrementInflight marks one more dispatch as running.
func (i *Instance) IncrementInflight() int64 {
	return i.inflight.Add(1)
}

// DecrementInflight marks a running dispatch as finished.
func (i *Instance) DecrementInflight() int64 {
	return i.inflight.Add(-1)
}

// Inflight returns the number of running dispatches.
func (i *Instance) Inflight() int64 {
	return i.inflight.Load()
}

// InstanceSnapshot is a point-in-time copy of an Instance, stamped into
// Call.Meta by Exec.
type InstanceSnapshot struct {
	ID        string
	CreatedAt time.Time
	Seq       uint64
	Inflight  int64
	Stats     ProcessStats
}

// Snapshot copies the current counters.
func (i *Instance) Snapshot() InstanceSnapshot {
	return InstanceSnapshot{
		ID:        i.ID,
		CreatedAt: i.CreatedAt,
		Seq:       i.seq.Load(),
		Inflight:  i.inflight.Load(),
	}
}
