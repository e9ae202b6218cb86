package tracker

// Checkpoint is a confirmed position: a sequence number and the opaque state
// token that was delivered with it.
type Checkpoint struct {
	Seq   int64
	Token []byte
}

// SeqTracker consumes a stream of (seq, token) pairs that may arrive out of
// order or with holes. It is synchronous and does no I/O; the owning receiver
// or forwarder serializes calls through its own lock.
type SeqTracker struct {
	validated   Checkpoint
	maxReceived int64
	pending     map[int64][]byte
}

// New starts tracking from a known-contiguous checkpoint.
func New(start Checkpoint) *SeqTracker {
	return &SeqTracker{
		validated:   start,
		maxReceived: start.Seq,
		pending:     map[int64][]byte{},
	}
}

// Receive consumes one delivery. The return value tells the caller whether to
// relay the update onward: false only for stale deliveries (seq at or below
// the validated point) and duplicate re-receipt of a still-pending seq.
// Non-contiguous arrivals are buffered and still relayed; only the validated
// point lags until the hole fills.
func (t *SeqTracker) Receive(seq int64, token []byte) bool {
	if seq <= t.validated.Seq {
		return false
	}
	if seq > t.maxReceived {
		t.maxReceived = seq
	}
	if seq == t.validated.Seq+1 {
		t.validated = Checkpoint{Seq: seq, Token: token}
		t.drain()
		return true
	}
	if _, dup := t.pending[seq]; dup {
		return false
	}
	t.pending[seq] = token
	return true
}

// IsInvalidated reports a known hole: something newer than the validated
// point has been seen.
func (t *SeqTracker) IsInvalidated() bool {
	return t.validated.Seq < t.maxReceived
}

// Restore force-advances the validated point from an authoritative source,
// typically the durable latest pointer. Pending entries the restore makes
// stale are discarded, then contiguous pending entries drain as usual.
func (t *SeqTracker) Restore(seq int64, token []byte) {
	if seq > t.validated.Seq {
		t.validated = Checkpoint{Seq: seq, Token: token}
	}
	if seq > t.maxReceived {
		t.maxReceived = seq
	}
	for s := range t.pending {
		if s <= t.validated.Seq {
			delete(t.pending, s)
		}
	}
	t.drain()
}

// Validated returns the highest contiguous confirmed checkpoint.
func (t *SeqTracker) Validated() Checkpoint { return t.validated }

// MaxReceived returns the highest seq ever seen, holes included.
func (t *SeqTracker) MaxReceived() int64 { return t.maxReceived }

// PendingCount returns the number of buffered out-of-order deliveries.
func (t *SeqTracker) PendingCount() int { return len(t.pending) }

func (t *SeqTracker) drain() {
	for {
		token, ok := t.pending[t.validated.Seq+1]
		if !ok {
			return
		}
		delete(t.pending, t.validated.Seq+1)
		t.validated = Checkpoint{Seq: t.validated.Seq + 1, Token: token}
	}
}
