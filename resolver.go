package tether

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Resolver maps a resource request to a built asset. Hosts consult it before
// their normal resolution and fall back to that when it reports false.
type Resolver interface {
	Resolve(request, requester string) (Asset, bool)
}

var _ Resolver = (*Consumer)(nil)

// SetPublicPath overrides the record's public path for resolved URLs.
func (c *Consumer) SetPublicPath(p string) {
	c.resolveMu.Lock()
	c.publicPath = &p
	c.resolveMu.Unlock()
}

// SetURLMapper installs fn to post-process every resolved URL. If fn fails
// the unmapped URL is used.
func (c *Consumer) SetURLMapper(fn func(string) (string, error)) {
	c.resolveMu.Lock()
	c.mapper = fn
	c.resolveMu.Unlock()
}

// Resolve looks request up in the installed mapping. requester is the file
// issuing the request and anchors relative requests.
func (c *Consumer) Resolve(request, requester string) (Asset, bool) {
	rec := c.current.Load()
	if rec == nil || rec.Assets == nil || len(rec.Assets.Marked) == 0 {
		return Asset{}, false
	}

	key := c.assetKey(request, requester)
	raw, ok := rec.Assets.Marked[key]
	if !ok {
		c.diagnoseMiss(rec, request, key)
		return Asset{}, false
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return Asset{Value: append(json.RawMessage(nil), raw...)}, true
	}
	return Asset{URL: c.assetURL(rec, value)}, true
}

// assetKey normalizes a request the same way marked keys are produced:
// loader prefix stripped, relative requests anchored at the requester, and
// the result made relative to the root with slash separators.
func (c *Consumer) assetKey(request, requester string) string {
	if i := strings.LastIndex(request, "!"); i >= 0 {
		request = request[i+1:]
	}
	request = strings.TrimSpace(strings.ReplaceAll(request, "\\", "/"))

	p := filepath.FromSlash(request)
	if isRelativeRequest(request) && requester != "" {
		p = filepath.Join(filepath.Dir(requester), p)
	}
	if filepath.IsAbs(p) {
		return relPath(c.store.Dir(), p)
	}
	return path.Clean(filepath.ToSlash(p))
}

func isRelativeRequest(r string) bool {
	return r == "." || r == ".." || strings.HasPrefix(r, "./") || strings.HasPrefix(r, "../")
}

// diagnoseMiss logs when a request that does not exist on disk looks like it
// should have been a marked asset.
func (c *Consumer) diagnoseMiss(rec *Record, request, key string) {
	_, err := os.Stat(absPath(c.store.Dir(), key))
	if err == nil {
		return
	}
	base := path.Base(key)
	for marked := range rec.Assets.Marked {
		if strings.Contains(marked, base) {
			c.logger.Warn(fmt.Sprintf("check asset %s failed", request),
				"resolved", key,
				"similar", marked,
				"error", err,
			)
			return
		}
	}
}

func (c *Consumer) assetURL(rec *Record, value string) string {
	c.resolveMu.RLock()
	prefix := rec.Output.PublicPath
	if c.publicPath != nil {
		prefix = *c.publicPath
	}
	mapper := c.mapper
	c.resolveMu.RUnlock()

	u := prefix + value
	if rec.IsDev() && rec.Dev.AddURL && rec.Dev.URL != "" {
		u = joinURL(rec.Dev.URL, u)
	}

	if mapper == nil {
		return u
	}
	mapped, err := mapper(u)
	if err != nil {
		c.logger.Error("url mapper error", "url", u, "error", err)
		return u
	}
	return mapped
}

// joinURL joins base and p with exactly one slash between them.
func joinURL(base, p string) string {
	switch {
	case strings.HasSuffix(base, "/") && strings.HasPrefix(p, "/"):
		return base + p[1:]
	case strings.HasSuffix(base, "/") || strings.HasPrefix(p, "/"):
		return base + p
	default:
		return base + "/" + p
	}
}
