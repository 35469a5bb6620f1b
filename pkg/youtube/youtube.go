package youtube

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// Video is one search candidate. The sync engine only ever consumes the
// chosen ID; the rest is display metadata.
type Video struct {
	ID        string `json:"video_id"`
	Title     string `json:"title"`
	Channel   string `json:"channel_title"`
	Thumbnail string `json:"thumbnail"`
}

type Client struct {
	apiKey    string
	searchURL string
	http      *http.Client
}

func NewClient(apiKey, searchURL string) *Client {
	return &Client{
		apiKey:    apiKey,
		searchURL: searchURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Search queries the external video API and returns candidate tuples.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Video, error) {
	if limit <= 0 || limit > 25 {
		limit = 10
	}

	val := url.Values{}
	val.Set("part", "snippet")
	val.Set("type", "video")
	val.Set("maxResults", strconv.Itoa(limit))
	val.Set("q", query)
	val.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL+"?"+val.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video search status %d", resp.StatusCode)
	}

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	items := gjson.GetBytes(body, "items").Array()
	out := make([]Video, 0, len(items))
	for _, item := range items {
		id := item.Get("id.videoId").String()
		if id == "" {
			continue
		}
		thumb := item.Get("snippet.thumbnails.high.url").String()
		if thumb == "" {
			thumb = item.Get("snippet.thumbnails.medium.url").String()
		}
		if thumb == "" {
			thumb = item.Get("snippet.thumbnails.default.url").String()
		}
		out = append(out, Video{
			ID:        id,
			Title:     item.Get("snippet.title").String(),
			Channel:   item.Get("snippet.channelTitle").String(),
			Thumbnail: thumb,
		})
	}
	return out, nil
}
