package browser

import (
	"net/url"
	"strings"
	"testing"
)

func TestSearchURLBuildersDeterministicAndEscaped(t *testing.T) {
	tests := []struct {
		domainHint string
		wantPrefix string
	}{
		{"amazon.", "https://www.amazon.com/s?k="},
		{"youtube.", "https://www.youtube.com/results?search_query="},
		{"xiaohongshu.", "https://www.xiaohongshu.com/search_result?keyword="},
		{"xhs.", "https://www.xiaohongshu.com/search_result?keyword="},
		{"ebay.", "https://www.ebay.com/sch/i.html?_nkw="},
	}
	for _, tt := range tests {
		build, ok := searchURLBuilders[tt.domainHint]
		if !ok {
			t.Fatalf("missing search URL builder for %q", tt.domainHint)
		}
		got := build("wireless mouse & pad")
		if !strings.HasPrefix(got, tt.wantPrefix) {
			t.Errorf("%s: got %q, want prefix %q", tt.domainHint, got, tt.wantPrefix)
		}
		if !strings.Contains(got, url.QueryEscape("wireless mouse & pad")) {
			t.Errorf("%s: query not escaped in %q", tt.domainHint, got)
		}
	}
}

func TestSearchURLBuildersCoverExpectedDomains(t *testing.T) {
	want := []string{"amazon.", "youtube.", "xiaohongshu.", "xhs.", "ebay."}
	for _, w := range want {
		if _, ok := searchURLBuilders[w]; !ok {
			t.Errorf("expected a search URL builder registered for domain hint %q", w)
		}
	}
}
