package catalog

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	defaultListingURL = "https://api.bilibili.com/x/space/wbi/arc/search"
	defaultBundleURL  = "https://api.bilibili.com/x/polymer/web-space/seasons_archives_list"
	defaultPartsURL   = "https://api.bilibili.com/x/player/pagelist"
	defaultTagsURL    = "https://api.bilibili.com/x/web-interface/view/detail/tag"
)

// Client is C4: thin methods over the Requester for the three listing
// endpoints plus bundle expansion (spec.md §4.4). The endpoint URLs are
// fields rather than process-wide constants so tests can repoint them at a
// mock server.
type Client struct {
	req     *Requester
	headers map[string]string

	listingURL string
	bundleURL  string
	partsURL   string
	tagsURL    string
}

func NewClient(req *Requester, baselineHeaders map[string]string) *Client {
	return &Client{
		req:        req,
		headers:    baselineHeaders,
		listingURL: defaultListingURL,
		bundleURL:  defaultBundleURL,
		partsURL:   defaultPartsURL,
		tagsURL:    defaultTagsURL,
	}
}

// WithBaseURL repoints every endpoint at base, for tests against a single
// mock server (the real deployment always uses the four distinct endpoint URLs).
func (c *Client) WithBaseURL(base string) *Client {
	c.listingURL, c.bundleURL, c.partsURL, c.tagsURL = base, base, base, base
	return c
}

// ListPage is the decoded shape of one listing page fetch.
type ListPage struct {
	Page   int
	Total  int
	Videos []Video
}

// ListUploaderPage fetches one page of an uploader's listing. A null entry
// in the source list is silently skipped; a non-null entry that fails to
// parse is logged and skipped without aborting the page (spec.md §4.4).
func (c *Client) ListUploaderPage(ctx context.Context, uploaderID int64, pageNo, pageSize int) (ListPage, error) {
	params := map[string]any{"mid": uploaderID, "pn": pageNo, "ps": pageSize}

	return Do(ctx, c.req, c.listingURL, params, RequestOptions{NeedWBI: true, Headers: c.headers},
		func(body map[string]any) (ListPage, error) {
			data, _ := body["data"].(map[string]any)
			list, _ := data["list"].(map[string]any)
			rawItems, _ := list["vlist"].([]any)
			page, _ := data["page"].(map[string]any)
			total := asInt(page["count"])

			videos := make([]Video, 0, len(rawItems))
			for _, item := range rawItems {
				if item == nil {
					continue
				}
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				v, err := parseRawVideoMap(m)
				if err != nil {
					bvid, _ := m["bvid"].(string)
					slog.Warn("video parse failed, skipping", slog.String("bvid", bvid), slog.Any("err", err))
					continue
				}
				videos = append(videos, v)
			}
			return ListPage{Page: pageNo, Total: total, Videos: videos}, nil
		})
}

// ListBundle paginates the bundle ("season") endpoint itself until it has
// collected total entries, injecting uploaderID and bundleID into every
// returned video. On any error it returns the videos collected so far
// (spec.md §4.4).
func (c *Client) ListBundle(ctx context.Context, uploaderID, bundleID int64) []Video {
	const pageSize = 50
	referer := fmt.Sprintf("https://space.bilibili.com/%d/lists/%d?type=season", uploaderID, bundleID)
	headers := mergeHeaders(c.headers, map[string]string{"Referer": referer})

	var collected []Video
	for pageNum := 1; ; pageNum++ {
		params := map[string]any{
			"mid":       uploaderID,
			"season_id": bundleID,
			"page_num":  pageNum,
			"page_size": pageSize,
		}

		type bundlePage struct {
			archives []Video
			total    int
		}
		page, err := Do(ctx, c.req, c.bundleURL, params, RequestOptions{Headers: headers},
			func(body map[string]any) (bundlePage, error) {
				data, _ := body["data"].(map[string]any)
				rawArchives, _ := data["archives"].([]any)
				meta, _ := data["meta"].(map[string]any)
				total := asInt(meta["total"])

				archives := make([]Video, 0, len(rawArchives))
				for _, item := range rawArchives {
					m, ok := item.(map[string]any)
					if !ok {
						continue
					}
					m["mid"] = float64(uploaderID)
					m["season_id"] = float64(bundleID)
					v, err := parseRawVideoMap(m)
					if err != nil {
						bvid, _ := m["bvid"].(string)
						slog.Warn("bundle video parse failed, skipping",
							slog.Int64("bundle_id", bundleID), slog.String("bvid", bvid), slog.Any("err", err))
						continue
					}
					collected = append(collected, v)
					archives = append(archives, v)
				}
				return bundlePage{archives: archives, total: total}, nil
			})
		if err != nil {
			slog.Error("bundle page fetch failed, returning partial results",
				slog.Int64("bundle_id", bundleID), slog.Int("page", pageNum), slog.Any("err", err))
			return collected
		}
		if len(page.archives) == 0 {
			return collected
		}
		if len(collected) >= page.total {
			return collected
		}
	}
}

// GetParts fetches a video's segment list, order preserved.
func (c *Client) GetParts(ctx context.Context, shortID string) ([]VideoPart, error) {
	params := map[string]any{"bvid": shortID}
	return Do(ctx, c.req, c.partsURL, params, RequestOptions{Headers: c.headers},
		func(body map[string]any) ([]VideoPart, error) {
			raw, _ := body["data"].([]any)
			parts := make([]VideoPart, 0, len(raw))
			for _, item := range raw {
				m, ok := item.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("part entry is not an object")
				}
				parts = append(parts, VideoPart{
					PartID:          int64(asInt(m["cid"])),
					Ordinal:         asInt(m["page"]),
					Label:           asString(m["part"]),
					DurationSeconds: asInt(m["duration"]),
					CreatedAt:       int64(asInt(m["ctime"])),
				})
			}
			return parts, nil
		})
}

// GetTags fetches a video's tag-name list in server order.
func (c *Client) GetTags(ctx context.Context, shortID string) ([]string, error) {
	params := map[string]any{"bvid": shortID}
	return Do(ctx, c.req, c.tagsURL, params, RequestOptions{Headers: c.headers},
		func(body map[string]any) ([]string, error) {
			raw, _ := body["data"].([]any)
			tags := make([]string, 0, len(raw))
			for _, item := range raw {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				tags = append(tags, asString(m["tag_name"]))
			}
			return tags, nil
		})
}

func parseRawVideoMap(m map[string]any) (Video, error) {
	bvid, _ := m["bvid"].(string)
	if bvid == "" {
		return Video{}, fmt.Errorf("missing bvid")
	}
	aid := asInt(m["aid"])
	if aid == 0 {
		return Video{}, fmt.Errorf("missing aid")
	}

	raw := rawVideo{
		AID:         int64(aid),
		BVID:        bvid,
		MID:         int64(asInt(m["mid"])),
		Title:       asString(m["title"]),
		Description: asString(m["description"]),
		Pic:         asString(m["pic"]),
		Created:     int64(asInt(m["created"])),
		PubDate:     int64(asInt(m["pubdate"])),
	}
	if sid, ok := m["season_id"]; ok && sid != nil {
		v := int64(asInt(sid))
		raw.SeasonID = &v
	}
	return raw.toVideo(), nil
}

func asInt(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func mergeHeaders(base map[string]string, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
