package transcript

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/quizdeck/internal/models"
)

const (
	// DefaultTimedTextURL serves caption tracks as XML.
	DefaultTimedTextURL = "https://www.youtube.com/api/timedtext"

	// DefaultOEmbedURL serves title and channel name without an API key.
	DefaultOEmbedURL = "https://www.youtube.com/oembed"

	requestTimeout = 30 * time.Second
)

// YouTubeProvider implements Provider over YouTube's public endpoints.
type YouTubeProvider struct {
	timedTextURL string
	oembedURL    string
	lang         string
	client       *http.Client
}

// Compile-time check that YouTubeProvider implements Provider.
var _ Provider = (*YouTubeProvider)(nil)

// YouTubeOption configures a YouTubeProvider.
type YouTubeOption func(*YouTubeProvider)

// WithBaseURLs overrides the caption and oEmbed endpoints (tests, proxies).
func WithBaseURLs(timedText, oembed string) YouTubeOption {
	return func(p *YouTubeProvider) {
		p.timedTextURL = timedText
		p.oembedURL = oembed
	}
}

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(c *http.Client) YouTubeOption {
	return func(p *YouTubeProvider) {
		p.client = c
	}
}

// NewYouTubeProvider creates a provider fetching captions in lang.
func NewYouTubeProvider(lang string, opts ...YouTubeOption) *YouTubeProvider {
	if lang == "" {
		lang = "en"
	}
	p := &YouTubeProvider{
		timedTextURL: DefaultTimedTextURL,
		oembedURL:    DefaultOEmbedURL,
		lang:         lang,
		client:       &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// timedText is the XML caption track format.
type timedText struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Body  string `xml:",chardata"`
	} `xml:"text"`
}

// Fetch downloads the caption track for videoID.
func (p *YouTubeProvider) Fetch(ctx context.Context, videoID string) ([]models.Segment, error) {
	q := url.Values{}
	q.Set("v", videoID)
	q.Set("lang", p.lang)

	body, status, err := p.get(ctx, p.timedTextURL+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch captions: %w", err)
	}
	if status == http.StatusNotFound || status == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status %d for video %s", ErrNoCaptions, status, videoID)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetch captions: status %d", status)
	}
	// An empty body is how the endpoint reports disabled captions.
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, fmt.Errorf("%w: empty caption track for video %s", ErrNoCaptions, videoID)
	}

	var track timedText
	if err := xml.Unmarshal(body, &track); err != nil {
		return nil, fmt.Errorf("decode captions: %w", err)
	}
	if len(track.Texts) == 0 {
		return nil, fmt.Errorf("%w: caption track for video %s has no lines", ErrNoCaptions, videoID)
	}

	segments := make([]models.Segment, 0, len(track.Texts))
	for _, t := range track.Texts {
		start, _ := strconv.ParseFloat(t.Start, 64)
		dur, _ := strconv.ParseFloat(t.Dur, 64)
		segments = append(segments, models.Segment{
			// Caption bodies arrive double-escaped (&amp;#39;).
			Text:     strings.TrimSpace(html.UnescapeString(t.Body)),
			Start:    start,
			Duration: dur,
		})
	}
	return segments, nil
}

// oembedResponse is the subset of the oEmbed payload we keep as typed fields.
type oembedResponse struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
}

// FetchMetadata looks up title and channel name via oEmbed.
func (p *YouTubeProvider) FetchMetadata(ctx context.Context, videoURL string) (*models.SourceMetadata, error) {
	q := url.Values{}
	q.Set("url", videoURL)
	q.Set("format", "json")

	body, status, err := p.get(ctx, p.oembedURL+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetch metadata: status %d", status)
	}

	var resp oembedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	var extra map[string]any
	if err := json.Unmarshal(body, &extra); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	return &models.SourceMetadata{
		Title:  resp.Title,
		Author: resp.AuthorName,
		Extra:  extra,
	}, nil
}

func (p *YouTubeProvider) get(ctx context.Context, target string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}
