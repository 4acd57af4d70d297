// Package sentinel ingests telemetry from industrial monitoring hardware
// over a ZeroMQ subscription. Each packet becomes a staked claim submission
// on behalf of the sentinel operator's wallet.
package sentinel

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"

	"github.com/ecl-project/ecl/pkg/log"
)

// TopicProof is the ZeroMQ subscription topic carrying sentinel packets
const TopicProof = "proof"

// Packet is one telemetry report published by a sentinel. Proof is the raw
// claim payload in the same format the submission API accepts.
type Packet struct {
	SentinelID string          `json:"sentinel_id"`
	Wallet     string          `json:"wallet"`
	TaskID     string          `json:"task_id"`
	Proof      json.RawMessage `json:"proof"`
}

// ParsePacket decodes and checks a wire packet
func ParsePacket(data []byte) (*Packet, error) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode sentinel packet: %w", err)
	}

	if p.SentinelID == "" {
		return nil, fmt.Errorf("sentinel packet is missing sentinel_id")
	}
	if p.Wallet == "" {
		return nil, fmt.Errorf("sentinel packet is missing wallet")
	}
	if p.TaskID == "" {
		return nil, fmt.Errorf("sentinel packet is missing task_id")
	}
	if len(p.Proof) == 0 {
		return nil, fmt.Errorf("sentinel packet is missing proof")
	}

	return &p, nil
}

// Handler receives parsed sentinel packets
type Handler interface {
	HandleSentinelPacket(ctx context.Context, p *Packet) error
}

// Listener subscribes to a sentinel proof endpoint
type Listener struct {
	endpoint string
	logger   *log.Logger
}

// NewListener creates a listener for a ZeroMQ publisher endpoint
func NewListener(endpoint string, logger *log.Logger) *Listener {
	return &Listener{
		endpoint: endpoint,
		logger:   logger.WithComponent("sentinel"),
	}
}

// Run consumes the proof feed until the context ends. Connection errors abort
// the loop; malformed packets and handler errors are logged and skipped.
func (l *Listener) Run(ctx context.Context, handler Handler) error {
	sub, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return fmt.Errorf("create sentinel socket: %w", err)
	}
	defer sub.Close()

	if err := sub.Connect(l.endpoint); err != nil {
		return fmt.Errorf("connect sentinel endpoint %s: %w", l.endpoint, err)
	}
	if err := sub.SetSubscribe(TopicProof); err != nil {
		return fmt.Errorf("subscribe sentinel topic: %w", err)
	}
	// Poll with a receive timeout so context cancellation is noticed
	if err := sub.SetRcvtimeo(time.Second); err != nil {
		return fmt.Errorf("set sentinel receive timeout: %w", err)
	}

	l.logger.Info("sentinel feed connected", "endpoint", l.endpoint, "topic", TopicProof)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("sentinel feed stopping")
			return ctx.Err()
		default:
		}

		parts, err := sub.RecvMessageBytes(0)
		if err != nil {
			if zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN) { // receive timed out
				continue
			}
			return fmt.Errorf("receive sentinel packet: %w", err)
		}
		if len(parts) < 2 {
			l.logger.Warn("skipping short sentinel message", "parts", len(parts))
			continue
		}

		packet, err := ParsePacket(parts[1])
		if err != nil {
			l.logger.WithError(err).Warn("skipping malformed sentinel packet")
			continue
		}

		l.logger.Debug("sentinel packet received",
			"sentinel_id", packet.SentinelID, "task_id", packet.TaskID)

		if err := handler.HandleSentinelPacket(ctx, packet); err != nil {
			l.logger.WithError(err).Warn("sentinel packet not accepted",
				"sentinel_id", packet.SentinelID, "task_id", packet.TaskID)
		}
	}
}
