// Package tracker implements gap detection and recovery for push-delivered
// sequence numbers. SeqTracker is a pure state machine; Receiver and
// Forwarder wrap it with a bus subscription for the client and server side
// respectively. Push delivery may drop, duplicate, or reorder messages; the
// tracker tells its owner exactly when the stream is contiguous and when it
// must repair a hole from durable storage.
package tracker
