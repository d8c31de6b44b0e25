package camera

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// StreamStats holds stream statistics from go2rtc
type StreamStats struct {
	Producers []ProducerStats `json:"producers"`
	Consumers []ConsumerStats `json:"consumers"`
}

// ProducerStats holds producer (source) statistics
type ProducerStats struct {
	URL    string       `json:"url"`
	Recv   int64        `json:"bytes_recv"`
	Medias []string     `json:"medias"`           // go2rtc returns strings like "video, recvonly, H264"
	Tracks []TrackStats `json:"tracks,omitempty"` // detailed track info if available
}

// TrackStats holds detailed track statistics from go2rtc
type TrackStats struct {
	Codec  string  `json:"codec,omitempty"`
	Type   string  `json:"type,omitempty"` // "video" or "audio"
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
	FPS    float64 `json:"fps,omitempty"`
}

// ConsumerStats holds consumer statistics
type ConsumerStats struct {
	Send   int64    `json:"bytes_send"`
	Medias []string `json:"medias"`
}

// Health holds health information for a camera
type Health struct {
	Status     Status    `json:"status"`
	FPS        float64   `json:"fps,omitempty"`
	Resolution string    `json:"resolution,omitempty"`
	Codec      string    `json:"codec,omitempty"`
	BytesRecv  int64     `json:"bytes_recv,omitempty"`
	LastCheck  time.Time `json:"last_check"`
}

// StreamSource lists the streams known to the media server
type StreamSource interface {
	Streams(ctx context.Context) (map[string]StreamStats, error)
}

// Go2RTCStreams reads stream stats from the go2rtc API
type Go2RTCStreams struct {
	baseURL    string
	httpClient *http.Client
}

// NewGo2RTCStreams creates a stream source for the go2rtc API at baseURL
func NewGo2RTCStreams(baseURL string) *Go2RTCStreams {
	return &Go2RTCStreams{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Streams gets all stream stats from go2rtc
func (g *Go2RTCStreams) Streams(ctx context.Context) (map[string]StreamStats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/streams", nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("go2rtc returned status %d", resp.StatusCode)
	}

	var streams map[string]StreamStats
	if err := json.NewDecoder(resp.Body).Decode(&streams); err != nil {
		return nil, err
	}

	return streams, nil
}

// checkHealth derives the health of one stream. A stream is online when it
// has at least one producer.
func checkHealth(streamName string, streams map[string]StreamStats, now time.Time) Health {
	health := Health{
		Status:    StatusOffline,
		LastCheck: now,
	}

	stats, exists := streams[streamName]
	if !exists || len(stats.Producers) == 0 {
		return health
	}

	producer := stats.Producers[0]
	health.Status = StatusOnline
	health.BytesRecv = producer.Recv

	for _, track := range producer.Tracks {
		if track.Type == "video" || strings.HasPrefix(track.Codec, "H26") {
			if track.Codec != "" {
				health.Codec = track.Codec
			}
			if track.Width > 0 && track.Height > 0 {
				health.Resolution = fmt.Sprintf("%dx%d", track.Width, track.Height)
			}
			if track.FPS > 0 {
				health.FPS = track.FPS
			}
			break
		}
	}

	// Fallback: extract video codec from media strings (format: "video, recvonly, H264")
	if health.Codec == "" {
		for _, media := range producer.Medias {
			if strings.HasPrefix(media, "video") {
				parts := strings.Split(media, ", ")
				if len(parts) >= 3 {
					health.Codec = parts[2]
				}
				break
			}
		}
	}

	return health
}
