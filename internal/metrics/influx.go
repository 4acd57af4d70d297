// Package metrics writes node activity to InfluxDB: claim submissions,
// validation verdicts, and mined blocks. Writing is asynchronous and
// best-effort.
package metrics

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Client wraps InfluxDB operations for time-series metrics
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	bucket   string
	org      string
}

// Config holds InfluxDB connection configuration
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewClient creates a new InfluxDB client
func NewClient(cfg *Config) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check InfluxDB health: %w", err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("InfluxDB health check failed: %s", msg)
	}

	return &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
		org:      cfg.Org,
	}, nil
}

// Close flushes buffered points and closes the connection
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}

// Health checks InfluxDB connectivity
func (c *Client) Health(ctx context.Context) error {
	health, err := c.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("health check failed: %s", msg)
	}
	return nil
}

// WriteSubmissionMetric records a claim entering the validation pool
func (c *Client) WriteSubmissionMetric(taskType string, reward, stake uint64) {
	tags := map[string]string{
		"task_type": taskType,
	}

	fields := map[string]interface{}{
		"reward": int64(reward),
		"stake":  int64(stake),
		"count":  1,
	}

	point := write.NewPoint("submissions", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteValidationMetric records a compliance verdict
func (c *Client) WriteValidationMetric(taskType, status, code string) {
	tags := map[string]string{
		"task_type": taskType,
		"status":    status,
		"code":      code,
	}

	fields := map[string]interface{}{
		"count": 1,
	}

	point := write.NewPoint("validations", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteBlockMetric records a newly appended block
func (c *Client) WriteBlockMetric(height uint64, hash string, txCount int, rewardTotal uint64, peerOrigin bool) {
	tags := map[string]string{
		"hash":        hash,
		"peer_origin": fmt.Sprintf("%t", peerOrigin),
	}

	fields := map[string]interface{}{
		"height":       int64(height),
		"tx_count":     int64(txCount),
		"reward_total": int64(rewardTotal),
	}

	point := write.NewPoint("blocks", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// Flush forces all buffered points to be written
func (c *Client) Flush() {
	c.writeAPI.Flush()
}
