package exam

import (
	"net/url"
	"strings"
)

// AssetResolver turns relative image references into absolute URLs.
type AssetResolver struct {
	base *url.URL
}

// NewAssetResolver parses the asset base URL, e.g. "https://edux.site/".
func NewAssetResolver(baseURL string) (*AssetResolver, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &AssetResolver{base: base}, nil
}

// Resolve returns ref unchanged when empty or already absolute.
func (r *AssetResolver) Resolve(ref string) string {
	if ref == "" || r == nil || r.base == nil {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if parsed.IsAbs() {
		return ref
	}
	parsed.Path = strings.TrimPrefix(parsed.Path, "/")
	return r.base.ResolveReference(parsed).String()
}
