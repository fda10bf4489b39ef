package types

import (
	"net/http"
	"net/url"
	"time"
)

// Page represents the raw content of one HTTP fetch during the season
// calendar crawl. Rendered scoreboard pages never pass through here;
// the browser session hands a parsed document straight to its caller.
type Page struct {
	URL             *url.URL
	FinalURL        *url.URL
	Body            []byte
	ContentType     string
	StatusCode      int
	Headers         http.Header
	FetchedAt       time.Time
	ResponseLatency time.Duration
}
