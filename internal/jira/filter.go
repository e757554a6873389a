package jira

import (
	"regexp"
	"strings"
)

var logArchivePattern = regexp.MustCompile(`^log\.(zip|z\d+)$`)

// LogExtensions are the plain-text log files worth keeping.
var LogExtensions = []string{".log", ".txt"}

// IsLogFile reports whether filename is a log archive part or a plain log.
func IsLogFile(filename string) bool {
	if logArchivePattern.MatchString(filename) {
		return true
	}
	for _, ext := range LogExtensions {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return false
}

func FilterLogAttachments(attachments []Attachment) []Attachment {
	var out []Attachment
	for _, att := range attachments {
		if IsLogFile(att.Filename) {
			out = append(out, att)
		}
	}
	return out
}
