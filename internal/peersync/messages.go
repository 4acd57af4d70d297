// Package peersync keeps ledgers converging across peers. It defines the
// gossip envelope exchanged on the shared topic and the apply logic that
// folds inbound messages into the local ledger.
package peersync

import (
	"encoding/json"
	"fmt"

	"github.com/ecl-project/ecl/internal/ledger"
	"github.com/ecl-project/ecl/internal/tasks"
)

// Envelope kinds
const (
	KindBlock            = "block"
	KindTask             = "task"
	KindValidationResult = "validation_result"
)

// Envelope is one gossip message. Exactly one payload field is set, selected
// by Kind. NodeID identifies the origin so peers can drop their own echoes.
type Envelope struct {
	NodeID string              `json:"node_id"`
	Kind   string              `json:"type"`
	Block  *ledger.Block       `json:"block,omitempty"`
	Task   *ledger.Transaction `json:"task,omitempty"`
	Result *tasks.Result       `json:"validation_result,omitempty"`
}

// NewBlockEnvelope wraps a mined block for gossip
func NewBlockEnvelope(nodeID string, b *ledger.Block) *Envelope {
	return &Envelope{NodeID: nodeID, Kind: KindBlock, Block: b}
}

// NewTaskEnvelope wraps a submitted claim for gossip
func NewTaskEnvelope(nodeID string, tx *ledger.Transaction) *Envelope {
	return &Envelope{NodeID: nodeID, Kind: KindTask, Task: tx}
}

// NewResultEnvelope wraps a validation verdict for gossip
func NewResultEnvelope(nodeID string, res tasks.Result) *Envelope {
	return &Envelope{NodeID: nodeID, Kind: KindValidationResult, Result: &res}
}

// Encode serializes an envelope for the wire
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses a wire envelope and checks that the payload matches the kind
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Kind {
	case KindBlock:
		if env.Block == nil {
			return nil, fmt.Errorf("block envelope carries no block")
		}
	case KindTask:
		if env.Task == nil {
			return nil, fmt.Errorf("task envelope carries no task")
		}
	case KindValidationResult:
		if env.Result == nil {
			return nil, fmt.Errorf("validation result envelope carries no result")
		}
	default:
		return nil, fmt.Errorf("unknown envelope kind %q", env.Kind)
	}

	return &env, nil
}
