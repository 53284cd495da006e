// Package signer maintains the remote listing API's rolling request-signature
// keys and produces signed parameter maps for a given parameter set (spec.md
// §4.1, component C1). The key cache is grounded on the teacher's
// oauth/refresh.go refresh-window idiom: a mutex-guarded (keys, fetchedAt)
// pair with a TTL, refreshed lazily on first use.
package signer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// keyCacheTTL is how long discovered keys are reused before a refresh is
// attempted. Refreshes are rare in practice (once per process lifetime).
const keyCacheTTL = 24 * time.Hour

// mixinKeyEncTable is the published 64-element permutation used to derive
// the mixin key from img_key+sub_key. Must match the remote exactly.
var mixinKeyEncTable = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35, 27, 43, 5, 49,
	33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13, 37, 48, 7, 16, 24, 55, 40,
	61, 26, 17, 0, 1, 60, 51, 30, 4, 22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11,
	36, 20, 34, 44, 52,
}

// forbiddenValueChars are stripped from every stringified parameter value
// before the canonical query string is built (spec.md §4.1 step 4).
const forbiddenValueChars = "!'()*"

// DiscoveryDoer performs the single HTTP call the signer needs to discover
// fresh keys. *http.Client satisfies it directly.
type DiscoveryDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Signer produces WBI-style signed parameter maps. It is safe for concurrent
// use; a single in-flight refresh is sufficient since refreshes are rare.
type Signer struct {
	discoveryURL string
	http         DiscoveryDoer
	userAgent    string
	referer      string

	mu        sync.Mutex
	imgKey    string
	subKey    string
	fetchedAt time.Time
}

// New builds a Signer that discovers keys from discoveryURL using client.
func New(discoveryURL string, client DiscoveryDoer) *Signer {
	return &Signer{
		discoveryURL: discoveryURL,
		http:         client,
		userAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		referer:      "https://www.bilibili.com/",
	}
}

// Sign returns a new map — params is never mutated — with wts and w_rid set
// per the remote's signing algorithm (spec.md §4.1 / §6 "Signing wire format").
func (s *Signer) Sign(ctx context.Context, params map[string]any) (map[string]any, error) {
	imgKey, subKey, err := s.keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("signer: fetch keys: %w", err)
	}
	return EncodeWBI(params, imgKey, subKey, time.Now().Unix()), nil
}

func (s *Signer) keys(ctx context.Context) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.imgKey != "" && s.subKey != "" && time.Since(s.fetchedAt) < keyCacheTTL {
		return s.imgKey, s.subKey, nil
	}

	img, sub, err := s.discover(ctx)
	if err != nil {
		return "", "", err
	}
	s.imgKey, s.subKey, s.fetchedAt = img, sub, time.Now()
	return s.imgKey, s.subKey, nil
}

func (s *Signer) discover(ctx context.Context) (imgKey, subKey string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.discoveryURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Referer", s.referer)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		Data struct {
			WbiImg struct {
				ImgURL string `json:"img_url"`
				SubURL string `json:"sub_url"`
			} `json:"wbi_img"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", fmt.Errorf("decode discovery response: %w", err)
	}

	imgKey, err = basenameWithoutExt(body.Data.WbiImg.ImgURL)
	if err != nil {
		return "", "", err
	}
	subKey, err = basenameWithoutExt(body.Data.WbiImg.SubURL)
	if err != nil {
		return "", "", err
	}
	return imgKey, subKey, nil
}

func basenameWithoutExt(rawURL string) (string, error) {
	if rawURL == "" {
		return "", fmt.Errorf("empty key url")
	}
	idx := strings.LastIndex(rawURL, "/")
	base := rawURL[idx+1:]
	dot := strings.LastIndex(base, ".")
	if dot < 0 {
		return base, nil
	}
	return base[:dot], nil
}

// getMixinKey permutes img+sub by the published table and truncates to 32 chars.
func getMixinKey(imgSub string) string {
	var b strings.Builder
	b.Grow(32)
	for _, idx := range mixinKeyEncTable {
		if idx < len(imgSub) {
			b.WriteByte(imgSub[idx])
		}
	}
	out := b.String()
	if len(out) > 32 {
		out = out[:32]
	}
	return out
}

// EncodeWBI implements spec.md §4.1 steps 2-6 as a pure function of its
// inputs: for fixed imgKey, subKey, params and wts it returns byte-identical
// output every time (the signature-determinism testable property, §8). It
// does not mutate params.
func EncodeWBI(params map[string]any, imgKey, subKey string, wts int64) map[string]any {
	mixinKey := getMixinKey(imgKey + subKey)

	signed := make(map[string]any, len(params)+1)
	for k, v := range params {
		signed[k] = v
	}
	signed["wts"] = wts

	keys := make([]string, 0, len(signed))
	for k := range signed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		values.Set(k, stripForbidden(stringify(signed[k])))
	}
	query := values.Encode()

	sum := md5.Sum([]byte(query + mixinKey))
	wRid := hex.EncodeToString(sum[:])

	out := make(map[string]any, len(signed)+1)
	for _, k := range keys {
		out[k] = values.Get(k)
	}
	out["w_rid"] = wRid
	return out
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func stripForbidden(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(forbiddenValueChars, r) {
			return -1
		}
		return r
	}, s)
}
