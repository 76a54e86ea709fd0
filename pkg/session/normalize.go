package session

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	uuidSegment    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	numericSegment = regexp.MustCompile(`^[0-9]+$`)
	hexIDSegment   = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
)

// NormalizeURL replaces path segments that look like a uuid, a plain
// integer, or a 24-char hex id (Mongo-style ObjectID) with ":id", and strips
// the query string. The scheme and host, if present, are preserved verbatim.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	segments := strings.Split(u.Path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if uuidSegment.MatchString(seg) || numericSegment.MatchString(seg) || hexIDSegment.MatchString(seg) {
			segments[i] = ":id"
		}
	}
	path := strings.Join(segments, "/")

	if u.Scheme != "" && u.Host != "" {
		return u.Scheme + "://" + u.Host + path
	}
	return path
}

// EndpointKey builds the "<METHOD> <normalized_url>" aggregation key.
func EndpointKey(method, rawURL string) string {
	return strings.ToUpper(method) + " " + NormalizeURL(rawURL)
}
