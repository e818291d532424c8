// Package tracking rewrites outbound links into redirect URLs that log a
// click before forwarding the recipient.
package tracking

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var hrefPattern = regexp.MustCompile(`href="(.*?)"`)

// Rewriter rewrites anchor targets in HTML bodies into tracking URLs on
// BaseURL, e.g. <base>/track/<lead>/<campaign>?url=<encoded>&eqid=<item>.
type Rewriter struct {
	BaseURL string
}

func NewRewriter(baseURL string) *Rewriter {
	return &Rewriter{BaseURL: strings.TrimRight(baseURL, "/")}
}

// Rewrite replaces every href in htmlBody with a tracking redirect.
// mailto: targets and links that already point at the tracking endpoint are
// left untouched, which makes Rewrite idempotent.
func (r *Rewriter) Rewrite(htmlBody string, leadID, campaignID int64, queueItemID string) string {
	return hrefPattern.ReplaceAllStringFunc(htmlBody, func(m string) string {
		original := hrefPattern.FindStringSubmatch(m)[1]

		if strings.Contains(original, "/track/") || strings.HasPrefix(original, "mailto:") {
			return m
		}

		tracked := fmt.Sprintf("%s/track/%d/%d?url=%s",
			r.BaseURL, leadID, campaignID, url.QueryEscape(original))
		if queueItemID != "" {
			tracked += "&eqid=" + queueItemID
		}

		return fmt.Sprintf(`href="%s"`, tracked)
	})
}
