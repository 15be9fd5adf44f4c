// Package influx writes the miner's hashrate and submission time series to
// InfluxDB.
package influx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Client wraps InfluxDB operations for time-series metrics
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	queryAPI api.QueryAPI
	bucket   string
	org      string
	tags     map[string]string
}

// Config holds InfluxDB connection configuration
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	// Miner and MinerID tag every point
	Miner   string
	MinerID uint32
}

// NewClient creates a new InfluxDB client
func NewClient(cfg *Config) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := checkHealth(ctx, client); err != nil {
		client.Close()
		return nil, err
	}

	return &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
		org:      cfg.Org,
		tags: map[string]string{
			"miner":    cfg.Miner,
			"miner_id": strconv.FormatUint(uint64(cfg.MinerID), 10),
		},
	}, nil
}

func checkHealth(ctx context.Context, client influxdb2.Client) error {
	health, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check InfluxDB health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("InfluxDB health check failed: %s", msg)
	}
	return nil
}

// Close flushes pending points and closes the connection
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}

// Health checks InfluxDB connectivity
func (c *Client) Health(ctx context.Context) error {
	return checkHealth(ctx, c.client)
}

// Errors exposes asynchronous write failures
func (c *Client) Errors() <-chan error {
	return c.writeAPI.Errors()
}

func (c *Client) withTags(extra map[string]string) map[string]string {
	tags := make(map[string]string, len(c.tags)+len(extra))
	for k, v := range c.tags {
		tags[k] = v
	}
	for k, v := range extra {
		tags[k] = v
	}
	return tags
}

// Mining metrics

// WriteBlockMetric writes the totals of a closed block
func (c *Client) WriteBlockMetric(block uint32, mode, source string, hashes uint64, hashrate float64, elapsed time.Duration, accepted, rejected, failed int, at time.Time) {
	tags := c.withTags(map[string]string{
		"mode":   mode,
		"source": source,
	})

	fields := map[string]interface{}{
		"block":    int64(block),
		"hashes":   int64(hashes),
		"hashrate": hashrate,
		"elapsed":  elapsed.Seconds(),
		"accepted": accepted,
		"rejected": rejected,
		"failed":   failed,
	}

	c.writeAPI.WritePoint(write.NewPoint("blocks", tags, fields, at))
}

// WriteThreadHashrate writes one worker's hashrate over a closed block
func (c *Client) WriteThreadHashrate(block, threadID uint32, hashes uint64, hashrate float64, at time.Time) {
	tags := c.withTags(map[string]string{
		"thread": strconv.FormatUint(uint64(threadID), 10),
	})

	fields := map[string]interface{}{
		"block":    int64(block),
		"hashes":   int64(hashes),
		"hashrate": hashrate,
	}

	c.writeAPI.WritePoint(write.NewPoint("hashrate", tags, fields, at))
}

// WriteSubmissionMetric writes one submit outcome
func (c *Client) WriteSubmissionMetric(block uint32, mode, status string, code int, at time.Time) {
	tags := c.withTags(map[string]string{
		"mode":   mode,
		"status": status,
	})

	fields := map[string]interface{}{
		"block": int64(block),
		"code":  code,
		"count": 1,
	}

	c.writeAPI.WritePoint(write.NewPoint("submissions", tags, fields, at))
}

// Query methods

// GetHashrateHistory retrieves the total hashrate over a period in 10 minute
// windows, one per block
func (c *Client) GetHashrateHistory(ctx context.Context, duration time.Duration) ([]HashratePoint, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
		|> range(start: -%s)
		|> filter(fn: (r) => r._measurement == "blocks")
		|> filter(fn: (r) => r.miner == "%s")
		|> filter(fn: (r) => r._field == "hashrate")
		|> aggregateWindow(every: 10m, fn: mean, createEmpty: false)
	`, c.bucket, duration.String(), c.tags["miner"])

	result, err := c.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query hashrate history: %w", err)
	}
	defer func() {
		_ = result.Close()
	}()

	var points []HashratePoint
	for result.Next() {
		record := result.Record()
		if value, ok := record.Value().(float64); ok {
			points = append(points, HashratePoint{
				Time:     record.Time(),
				Hashrate: value,
			})
		}
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("error reading query result: %w", result.Err())
	}

	return points, nil
}

// Flush forces a write of all pending points
func (c *Client) Flush() {
	c.writeAPI.Flush()
}

// HashratePoint represents a hashrate measurement at a point in time
type HashratePoint struct {
	Time     time.Time `json:"time"`
	Hashrate float64   `json:"hashrate"`
}
