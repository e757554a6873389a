package jira

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// "# [filename|url]" as written by the log uploader into descriptions.
	descriptionLinkPattern = regexp.MustCompile(`#\s*\[([^|]+)\|([^\]]+)\]`)
	attachmentIDPattern    = regexp.MustCompile(`/attachments/[^/]+/\d+/(?:[^/]+/)*(\d+)/`)
)

// URLResolver lists fallback URLs for attachments whose primary link is a
// CloudFront URL that may have expired.
type URLResolver struct {
	baseURL         string
	descriptionURLs map[string]string
	apiURLs         map[string]string
}

// NewURLResolver indexes the description links and API attachment URLs of
// issue. A nil issue gives a resolver that only returns primary URLs.
func NewURLResolver(baseURL string, issue *Issue) *URLResolver {
	r := &URLResolver{
		baseURL:         strings.TrimRight(baseURL, "/"),
		descriptionURLs: make(map[string]string),
		apiURLs:         make(map[string]string),
	}
	if issue == nil {
		return r
	}

	for _, m := range descriptionLinkPattern.FindAllStringSubmatch(issue.Fields.Description, -1) {
		name, link := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if strings.Contains(link, "cloudfront.net") {
			r.descriptionURLs[name] = link
		}
	}
	for _, att := range issue.Fields.Attachment {
		r.apiURLs[att.Filename] = att.ContentURL
	}
	return r
}

// DownloadURLs returns candidate URLs in the order they should be tried.
func (r *URLResolver) DownloadURLs(att Attachment) []string {
	urls := []string{att.ContentURL}
	if !strings.Contains(att.ContentURL, "cloudfront.net") {
		return urls
	}

	add := func(u string) {
		for _, existing := range urls {
			if existing == u {
				return
			}
		}
		urls = append(urls, u)
	}

	if u, ok := r.apiURLs[att.Filename]; ok && u != "" {
		add(u)
	}
	if id, ok := AttachmentIDFromURL(att.ContentURL); ok && r.baseURL != "" {
		add(fmt.Sprintf("%s/attachment/content/%s", r.baseURL, id))
	}
	if u, ok := r.descriptionURLs[att.Filename]; ok {
		add(u)
	}
	return urls
}

// AttachmentIDFromURL pulls the numeric attachment id out of a storage URL
// such as https://x.cloudfront.net/attachments/abc/123/21886523/log.zip.
func AttachmentIDFromURL(rawURL string) (string, bool) {
	m := attachmentIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}
