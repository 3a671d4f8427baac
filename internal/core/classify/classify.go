// Package classify identifies completion endpoints from request URLs.
package classify

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ratewatch/ratewatch/internal/core"
)

var (
	vendorChatPattern       = regexp.MustCompile(`/api/organizations/([^/]+)/chat_conversations/([^/]+)/completion`)
	vendorCompletionPattern = regexp.MustCompile(`/api/organizations/([^/]+)/(?:retry_)?completion`)
)

// completionPatterns is the full set checked for IsCompletionEndpoint.
// Matches are anchored to the end of the path.
var completionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/api/organizations/[^/]+/chat_conversations/[^/]+/completion$`),
	regexp.MustCompile(`/api/organizations/[^/]+/completion$`),
	regexp.MustCompile(`/api/organizations/[^/]+/retry_completion$`),
	regexp.MustCompile(`/v1/chat/completions$`),
	regexp.MustCompile(`/chat/completions$`),
	regexp.MustCompile(`/v1/completions$`),
	regexp.MustCompile(`/completions$`),
}

// Classify maps a request URL to its API family and identifiers.
// It never fails; unmatched input yields the unknown family.
func Classify(rawURL string) core.APIInfo {
	path := pathOf(rawURL)

	info := core.APIInfo{
		IsCompletionEndpoint: IsCompletionEndpoint(path),
		APIFamily:            core.FamilyUnknown,
	}

	if m := vendorChatPattern.FindStringSubmatch(path); m != nil {
		info.APIFamily = core.FamilyVendorChat
		info.OrganizationID = m[1]
		info.ConversationID = m[2]
		return info
	}

	if m := vendorCompletionPattern.FindStringSubmatch(path); m != nil {
		info.APIFamily = core.FamilyVendorCompletion
		info.OrganizationID = m[1]
		return info
	}

	switch {
	case strings.HasSuffix(path, "/chat/completions"):
		info.APIFamily = core.FamilyGenericChat
	case strings.HasSuffix(path, "/completions"):
		info.APIFamily = core.FamilyGenericCompletion
	}

	return info
}

// IsCompletionEndpoint reports whether the URL path matches any completion pattern.
func IsCompletionEndpoint(rawURL string) bool {
	path := pathOf(rawURL)
	for _, pattern := range completionPatterns {
		if pattern.MatchString(path) {
			return true
		}
	}
	return false
}

// Domain returns the host a URL targets, or core.DefaultDomain.
func Domain(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return core.DefaultDomain
	}
	if host := parsed.Hostname(); host != "" {
		return strings.ToLower(host)
	}
	return core.DefaultDomain
}

// pathOf strips scheme, host, query and fragment. Unparseable input is
// matched as-is so relative paths still classify.
func pathOf(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	parsed, err := url.Parse(trimmed)
	if err != nil {
		if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
			return trimmed[:i]
		}
		return trimmed
	}
	if parsed.Path == "" && parsed.Opaque != "" {
		return parsed.Opaque
	}
	return parsed.Path
}
