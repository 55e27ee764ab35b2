package dispatch

import (
	"crypto/sha256"
	"encoding/binary"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/bjaus/dispatch/v2"

// deriveIDs computes the trace and span ids of a dispatch from the engine
// identity and the sequence number. The same pair always yields the same ids.
func deriveIDs(instanceID string, seq uint64) (trace.TraceID, trace.SpanID) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], seq)

	h := sha256.New()
	h.Write([]byte(instanceID))
	h.Write(n[:])
	sum := h.Sum(nil)

	var tid trace.TraceID
	var sid trace.SpanID
	copy(tid[:], sum[:16])
	copy(sid[:], sum[16:24])
	return tid, sid
}

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
