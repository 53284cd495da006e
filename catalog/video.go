// Package catalog implements the acquisition pipeline: a bounded producer/consumer
// fetcher that paginates an uploader's video listing, expands bundle references,
// enriches each discovered video with its parts and tags, classifies it against a
// keyword corpus, and persists the enriched record.
package catalog

// Classification is the per-video match state against the configured keyword corpus.
// Transitions never cross a confirmed_* boundary programmatically (invariant 4).
type Classification int

const (
	Unchecked Classification = iota
	AutoMatch
	AutoNoMatch
	ConfirmedMatch
	ConfirmedNoMatch
)

// String mirrors the stored touhou_status integer encoding from the persistent schema.
func (c Classification) String() string {
	switch c {
	case Unchecked:
		return "unchecked"
	case AutoMatch:
		return "auto_match"
	case AutoNoMatch:
		return "auto_no_match"
	case ConfirmedMatch:
		return "confirmed_match"
	case ConfirmedNoMatch:
		return "confirmed_no_match"
	default:
		return "unchecked"
	}
}

// IsConfirmed reports whether c is one of the manually-set terminal states.
func (c Classification) IsConfirmed() bool {
	return c == ConfirmedMatch || c == ConfirmedNoMatch
}

// VideoPart is one segment of a multi-part video.
type VideoPart struct {
	PartID          int64
	Ordinal         int
	Label           string
	DurationSeconds int
	CreatedAt       int64
}

// Video is a uniquely identified item in an uploader's catalog.
type Video struct {
	NumericID      int64
	ShortID        string
	UploaderID     int64
	Title          string
	Description    string
	CoverURI       string
	CreatedAt      int64
	BundleID       *int64
	Tags           []string
	Parts          []VideoPart
	Classification Classification
}

// rawVideo is the wire shape returned by the listing and bundle endpoints (§6).
// The source API exposes the creation timestamp under one of two equivalent field
// names ("created" or "pubdate"); unifyTimestamp resolves that at parse time.
type rawVideo struct {
	AID         int64  `json:"aid"`
	BVID        string `json:"bvid"`
	MID         int64  `json:"mid"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Pic         string `json:"pic"`
	Created     int64  `json:"created"`
	PubDate     int64  `json:"pubdate"`
	SeasonID    *int64 `json:"season_id"`
}

func (r rawVideo) unifyTimestamp() int64 {
	if r.Created != 0 {
		return r.Created
	}
	return r.PubDate
}

func (r rawVideo) toVideo() Video {
	return Video{
		NumericID:   r.AID,
		ShortID:     r.BVID,
		UploaderID:  r.MID,
		Title:       r.Title,
		Description: r.Description,
		CoverURI:    r.Pic,
		CreatedAt:   r.unifyTimestamp(),
		BundleID:    r.SeasonID,
	}
}
