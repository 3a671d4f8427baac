package classify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ratewatch/ratewatch/internal/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want core.APIInfo
	}{
		{
			name: "vendor chat conversation",
			url:  "https://x.test/api/organizations/org_42/chat_conversations/c1/completion",
			want: core.APIInfo{
				IsCompletionEndpoint: true,
				OrganizationID:       "org_42",
				ConversationID:       "c1",
				APIFamily:            core.FamilyVendorChat,
			},
		},
		{
			name: "vendor completion",
			url:  "https://claude.ai/api/organizations/abc-123/completion",
			want: core.APIInfo{
				IsCompletionEndpoint: true,
				OrganizationID:       "abc-123",
				APIFamily:            core.FamilyVendorCompletion,
			},
		},
		{
			name: "vendor retry completion",
			url:  "https://claude.ai/api/organizations/abc-123/retry_completion",
			want: core.APIInfo{
				IsCompletionEndpoint: true,
				OrganizationID:       "abc-123",
				APIFamily:            core.FamilyVendorCompletion,
			},
		},
		{
			name: "generic chat",
			url:  "https://api.openai.com/v1/chat/completions",
			want: core.APIInfo{IsCompletionEndpoint: true, APIFamily: core.FamilyGenericChat},
		},
		{
			name: "generic chat without version",
			url:  "https://chatgpt.com/backend/chat/completions",
			want: core.APIInfo{IsCompletionEndpoint: true, APIFamily: core.FamilyGenericChat},
		},
		{
			name: "generic completion",
			url:  "https://api.example.test/v1/completions",
			want: core.APIInfo{IsCompletionEndpoint: true, APIFamily: core.FamilyGenericCompletion},
		},
		{
			name: "query string ignored",
			url:  "https://api.example.test/v1/chat/completions?stream=true",
			want: core.APIInfo{IsCompletionEndpoint: true, APIFamily: core.FamilyGenericChat},
		},
		{
			name: "relative path",
			url:  "/api/organizations/o1/completion",
			want: core.APIInfo{
				IsCompletionEndpoint: true,
				OrganizationID:       "o1",
				APIFamily:            core.FamilyVendorCompletion,
			},
		},
		{
			name: "family without completion suffix",
			url:  "https://claude.ai/api/organizations/o1/completion/extra",
			want: core.APIInfo{
				IsCompletionEndpoint: false,
				OrganizationID:       "o1",
				APIFamily:            core.FamilyVendorCompletion,
			},
		},
		{
			name: "unknown",
			url:  "https://claude.ai/api/organizations/o1/settings",
			want: core.APIInfo{APIFamily: core.FamilyUnknown},
		},
		{
			name: "empty",
			url:  "",
			want: core.APIInfo{APIFamily: core.FamilyUnknown},
		},
		{
			name: "garbage",
			url:  "%%not a url",
			want: core.APIInfo{APIFamily: core.FamilyUnknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Classify(tt.url))
		})
	}
}

func TestDomain(t *testing.T) {
	require.Equal(t, "x.test", Domain("https://x.test/api/organizations/org_42/completion"))
	require.Equal(t, "api.openai.com", Domain("https://API.openai.com:443/v1/chat/completions"))
	require.Equal(t, core.DefaultDomain, Domain("/relative/path"))
	require.Equal(t, core.DefaultDomain, Domain("%%"))
}
