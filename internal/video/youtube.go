// Package video resolves YouTube URLs to canonical video ids and metadata,
// and derives the credit cost of a request from video duration.
package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"google.golang.org/api/option"
	youtube "google.golang.org/api/youtube/v3"
)

// ErrInvalidURL is returned for URLs that do not resolve to a YouTube video.
var ErrInvalidURL = errors.New("invalid YouTube URL")

var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(?:www\.)?youtube\.com/watch\?.*v=([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`^https?://(?:www\.)?youtube\.com/embed/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`^https?://(?:www\.)?youtube\.com/v/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`^https?://youtu\.be/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`^https?://(?:www\.)?youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
}

var videoIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// isoDurationPattern matches the ISO 8601 durations the Data API returns.
var isoDurationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// Details is everything Submit needs to know about a video.
type Details struct {
	VideoID         string  `json:"video_id"`
	Title           *string `json:"title"`
	Thumbnail       *string `json:"thumbnail"`
	Author          *string `json:"author"`
	DurationSeconds *int    `json:"duration_seconds"`
	RequestCost     int     `json:"request_cost"`
}

// Service looks up video metadata. The oEmbed endpoint supplies title and
// thumbnail without credentials; the Data API (when an API key is configured)
// supplies duration.
type Service struct {
	yt                 *youtube.Service
	httpClient         *http.Client
	maxDurationSeconds int
	logger             *slog.Logger

	oembedBase string
}

// NewService builds a metadata service. apiKey may be empty, in which case
// durations are unknown and every request costs one credit.
func NewService(ctx context.Context, apiKey string, maxDurationMinutes int, logger *slog.Logger) (*Service, error) {
	s := &Service{
		httpClient:         &http.Client{Timeout: 10 * time.Second},
		maxDurationSeconds: maxDurationMinutes * 60,
		logger:             logger,
		oembedBase:         "https://www.youtube.com/oembed",
	}
	if apiKey != "" {
		yt, err := youtube.NewService(ctx, option.WithAPIKey(apiKey))
		if err != nil {
			return nil, fmt.Errorf("youtube service: %w", err)
		}
		s.yt = yt
	}
	return s, nil
}

// ExtractVideoID pulls the canonical 11-character video id out of any of the
// supported YouTube URL shapes.
func ExtractVideoID(raw string) (string, error) {
	for _, p := range urlPatterns {
		if m := p.FindStringSubmatch(raw); m != nil {
			return m[1], nil
		}
	}
	// Fallback: a v= query parameter on an otherwise unrecognized URL.
	if u, err := url.Parse(raw); err == nil {
		if v := u.Query().Get("v"); videoIDPattern.MatchString(v) {
			return v, nil
		}
	}
	return "", ErrInvalidURL
}

// NormalizeURL rewrites any supported URL shape to the standard watch URL.
func NormalizeURL(raw string) (string, error) {
	id, err := ExtractVideoID(raw)
	if err != nil {
		return "", err
	}
	return "https://www.youtube.com/watch?v=" + id, nil
}

// Cost converts a duration to whole request credits: one credit per allowed
// duration unit, rounding up. Unknown (non-positive) durations cost one.
func (s *Service) Cost(durationSeconds int) int {
	if durationSeconds <= 0 || s.maxDurationSeconds <= 0 {
		return 1
	}
	return (durationSeconds + s.maxDurationSeconds - 1) / s.maxDurationSeconds
}

// MaxDurationMinutes reports the configured single-credit duration cap.
func (s *Service) MaxDurationMinutes() int {
	return s.maxDurationSeconds / 60
}

type oembedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// info fetches title/thumbnail via oEmbed. It degrades to the predictable
// thumbnail URL when oEmbed is unreachable.
func (s *Service) info(ctx context.Context, videoID string) (title, author *string, thumbnail string) {
	thumbnail = "https://img.youtube.com/vi/" + videoID + "/mqdefault.jpg"

	q := url.Values{}
	q.Set("url", "https://www.youtube.com/watch?v="+videoID)
	q.Set("format", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.oembedBase+"?"+q.Encode(), nil)
	if err != nil {
		return nil, nil, thumbnail
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("oEmbed lookup failed", "video_id", videoID, "error", err)
		return nil, nil, thumbnail
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("oEmbed lookup failed", "video_id", videoID, "status", resp.StatusCode)
		return nil, nil, thumbnail
	}
	var body oembedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, nil, thumbnail
	}
	if body.Title != "" {
		title = &body.Title
	}
	if body.AuthorName != "" {
		author = &body.AuthorName
	}
	if body.ThumbnailURL != "" {
		thumbnail = body.ThumbnailURL
	}
	return title, author, thumbnail
}

// duration fetches the video length from the Data API. nil when the API key
// is unset, the video is unknown, or the call fails.
func (s *Service) duration(ctx context.Context, videoID string) *int {
	if s.yt == nil {
		return nil
	}
	resp, err := s.yt.Videos.List([]string{"contentDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		s.logger.Warn("duration lookup failed", "video_id", videoID, "error", err)
		return nil
	}
	if len(resp.Items) == 0 || resp.Items[0].ContentDetails == nil {
		return nil
	}
	secs, err := parseISODuration(resp.Items[0].ContentDetails.Duration)
	if err != nil {
		s.logger.Warn("unparseable video duration", "video_id", videoID,
			"duration", resp.Items[0].ContentDetails.Duration)
		return nil
	}
	return &secs
}

// Resolve returns full details for a URL: canonical id, title, thumbnail,
// duration and the derived request cost.
func (s *Service) Resolve(ctx context.Context, rawURL string) (*Details, error) {
	id, err := ExtractVideoID(rawURL)
	if err != nil {
		return nil, err
	}
	title, author, thumbnail := s.info(ctx, id)
	dur := s.duration(ctx, id)

	cost := 1
	if dur != nil {
		cost = s.Cost(*dur)
	}
	return &Details{
		VideoID:         id,
		Title:           title,
		Author:          author,
		Thumbnail:       &thumbnail,
		DurationSeconds: dur,
		RequestCost:     cost,
	}, nil
}

func parseISODuration(iso string) (int, error) {
	m := isoDurationPattern.FindStringSubmatch(iso)
	if m == nil {
		return 0, fmt.Errorf("bad ISO 8601 duration %q", iso)
	}
	total := 0
	units := []int{86400, 3600, 60, 1}
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, err
		}
		total += n * unit
	}
	return total, nil
}
