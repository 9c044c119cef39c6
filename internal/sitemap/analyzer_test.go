package sitemap

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

const sitemapSample = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://partner.example.com/</loc></url>
  <url><loc>https://partner.example.com/solutions/servicenow-integration</loc></url>
  <url><loc>https://partner.example.com/service-now-consulting</loc></url>
  <url><loc>https://partner.example.com/servicenow/products/incident-manager-pro</loc></url>
  <url><loc>https://partner.example.com/snow/apps/the-asset-tracker.html</loc></url>
  <url><loc>https://partner.example.com/products/unrelated-tool</loc></url>
  <url><loc>https://partner.example.com/blog/getting-started</loc></url>
  <url><loc>https://partner.example.com/news/2026/platform-update</loc></url>
</urlset>`

const sitemapIndexSample = `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://partner.example.com/sitemap-1.xml</loc></sitemap>
</sitemapindex>`

func TestAnalyze(t *testing.T) {
	a := NewAnalyzer()
	analysis, err := a.Analyze([]byte(sitemapSample))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if analysis.IsIndex {
		t.Error("IsIndex = true, want false")
	}
	// servicenow / snow / service-now のいずれかを含むURLのみが対象
	wantPages := []string{
		"https://partner.example.com/solutions/servicenow-integration",
		"https://partner.example.com/service-now-consulting",
		"https://partner.example.com/servicenow/products/incident-manager-pro",
		"https://partner.example.com/snow/apps/the-asset-tracker.html",
	}
	if !reflect.DeepEqual(analysis.ServicenowPages, wantPages) {
		t.Errorf("ServicenowPages = %v, want %v", analysis.ServicenowPages, wantPages)
	}
	wantBlog := []string{
		"https://partner.example.com/blog/getting-started",
		"https://partner.example.com/news/2026/platform-update",
	}
	if !reflect.DeepEqual(analysis.BlogPages, wantBlog) {
		t.Errorf("BlogPages = %v, want %v", analysis.BlogPages, wantBlog)
	}
	// 製品キーワードはServiceNow関連ページの製品系パスからのみ導出される
	wantProducts := []string{"Servicenow Integration", "Incident Manager Pro", "Asset Tracker"}
	if !reflect.DeepEqual(analysis.Products, wantProducts) {
		t.Errorf("Products = %v, want %v", analysis.Products, wantProducts)
	}
	wantServices := []string{"consulting"}
	if !reflect.DeepEqual(analysis.Services, wantServices) {
		t.Errorf("Services = %v, want %v", analysis.Services, wantServices)
	}
}

func TestAnalyzeCapsBucketSizes(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><urlset>`)
	for i := 0; i < 15; i++ {
		fmt.Fprintf(&b, "<url><loc>https://partner.example.com/servicenow-page-%d</loc></url>", i)
		fmt.Fprintf(&b, "<url><loc>https://partner.example.com/blog/post-%d</loc></url>", i)
	}
	b.WriteString(`</urlset>`)

	a := NewAnalyzer()
	analysis, err := a.Analyze([]byte(b.String()))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(analysis.ServicenowPages) != 10 {
		t.Errorf("ServicenowPages = %d entries, want 10", len(analysis.ServicenowPages))
	}
	if len(analysis.BlogPages) != 5 {
		t.Errorf("BlogPages = %d entries, want 5", len(analysis.BlogPages))
	}
}

func TestAnalyzeSitemapIndex(t *testing.T) {
	a := NewAnalyzer()
	analysis, err := a.Analyze([]byte(sitemapIndexSample))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !analysis.IsIndex {
		t.Error("IsIndex = false, want true")
	}
	if len(analysis.Products) != 0 || len(analysis.Services) != 0 {
		t.Error("index sitemap should not produce keywords")
	}
}

func TestAnalyzeInvalidXML(t *testing.T) {
	a := NewAnalyzer()
	if _, err := a.Analyze([]byte("<html>not a sitemap</html>")); err == nil {
		t.Error("Analyze() = nil error, want error")
	}
}

func TestSlugKeyword(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "/products/incident-manager-pro", want: "Incident Manager Pro"},
		{path: "/products/the-asset-tracker.html", want: "Asset Tracker"},
		{path: "/products/", want: ""},
		{path: "/solutions/", want: ""},
		{path: "/products/v2", want: ""},
		{path: "/services/managed_support", want: "Managed Support"},
	}
	for _, tt := range tests {
		if got := slugKeyword(tt.path); got != tt.want {
			t.Errorf("slugKeyword(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
