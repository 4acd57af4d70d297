package messaging

// Topic constants for peer communication
const (
	// TopicGossip carries every peer envelope: submitted claims, validation
	// verdicts, and mined blocks. Each node consumes it under its own group
	// so every peer sees every message.
	TopicGossip = "ecl.gossip"
)
