package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/metrics"
)

// BacklogMonitor polls nsqd's stats endpoint and exports the deliveries
// channel depth as a gauge.
type BacklogMonitor struct {
	nsqdHTTPAddr string
	topic        string
	channel      string
	interval     time.Duration
	client       *http.Client
	logger       *logging.Logger
}

// NewBacklogMonitor derives the nsqd HTTP address from the TCP address
// (4150 -> 4151 by nsqd convention).
func NewBacklogMonitor(nsqdTCPAddr, topic, channel string) *BacklogMonitor {
	return &BacklogMonitor{
		nsqdHTTPAddr: strings.Replace(nsqdTCPAddr, ":4150", ":4151", 1),
		topic:        topic,
		channel:      channel,
		interval:     15 * time.Second,
		client:       &http.Client{Timeout: 5 * time.Second},
		logger:       logging.New("hookline-worker-monitor"),
	}
}

// Run polls until the context is cancelled.
func (b *BacklogMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if depth, err := b.fetchDepth(ctx); err != nil {
				b.logger.Plain().WithError(err).Error("failed to get nsq stats")
			} else {
				metrics.UpdateBacklog(depth)
			}
		}
	}
}

func (b *BacklogMonitor) fetchDepth(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("http://%s/stats?format=json", b.nsqdHTTPAddr), nil)
	if err != nil {
		return 0, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var stats struct {
		Topics []struct {
			Name     string `json:"topic_name"`
			Channels []struct {
				Name  string `json:"channel_name"`
				Depth int64  `json:"depth"`
			} `json:"channels"`
		} `json:"topics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return 0, err
	}
	for _, topic := range stats.Topics {
		if topic.Name != b.topic {
			continue
		}
		for _, ch := range topic.Channels {
			if ch.Name == b.channel {
				return float64(ch.Depth), nil
			}
		}
	}
	return 0, nil
}
