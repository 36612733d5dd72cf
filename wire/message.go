// Package wire defines the producer → consumer message envelope and its
// encoding. The codec is the single seam between the sync engine and the
// transport: everything crossing the network goes through Encode/Decode, so
// the compression scheme stays swappable without touching either side.
package wire

import (
	"errors"
	"fmt"

	"treemirror/node"
)

// Type discriminates the message envelope.
type Type string

const (
	// TypeSnapshot replaces the consumer's whole collection in one message.
	TypeSnapshot Type = "snapshot"
	// TypeBatchStart announces a batched snapshot and clears the collection.
	TypeBatchStart Type = "batchStart"
	// TypeBatch carries one chunk of a batched snapshot.
	TypeBatch Type = "batch"
	// TypeDelta carries an incremental update.
	TypeDelta Type = "delta"
	// TypeHeartbeat refreshes liveness without touching data.
	TypeHeartbeat Type = "heartbeat"
)

// Message is the transport-agnostic envelope. Seq increases by one per
// message on a connection so the consumer can spot gaps; Timestamp is unix
// milliseconds at send time.
type Message struct {
	Type      Type   `json:"type"`
	Seq       uint64 `json:"seq"`
	Timestamp int64  `json:"ts"`
	Producer  string `json:"producer,omitempty"`

	// snapshot / batch payload
	Nodes []node.Node `json:"nodes,omitempty"`

	// batch envelope metadata
	BatchIndex int  `json:"batchIndex"`
	BatchTotal int  `json:"batchTotal,omitempty"`
	IsLast     bool `json:"isLast,omitempty"`

	// batchStart metadata
	TotalNodes int `json:"totalNodes,omitempty"`
	BatchSize  int `json:"batchSize,omitempty"`

	// delta payload
	Delta *node.Delta `json:"delta,omitempty"`
}

var errUnknownType = errors.New("wire: unknown message type")

// Validate checks the envelope's schema before ingestion. A failed message is
// discarded and logged by the caller; the connection itself stays up.
func (m *Message) Validate() error {
	switch m.Type {
	case TypeSnapshot:
		// An empty snapshot is legal (producer with a bare tree).
		return nil
	case TypeBatchStart:
		if m.TotalNodes < 0 || m.BatchSize <= 0 {
			return fmt.Errorf("wire: batchStart with totalNodes=%d batchSize=%d", m.TotalNodes, m.BatchSize)
		}
		return nil
	case TypeBatch:
		if m.BatchIndex < 0 {
			return fmt.Errorf("wire: batch with negative index %d", m.BatchIndex)
		}
		if m.BatchTotal > 0 && m.BatchIndex >= m.BatchTotal {
			return fmt.Errorf("wire: batch index %d out of range (total %d)", m.BatchIndex, m.BatchTotal)
		}
		return nil
	case TypeDelta:
		if m.Delta == nil {
			return errors.New("wire: delta message without delta payload")
		}
		return nil
	case TypeHeartbeat:
		if m.Timestamp <= 0 {
			return errors.New("wire: heartbeat without timestamp")
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownType, m.Type)
	}
}
