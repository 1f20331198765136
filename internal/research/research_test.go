package research

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

func TestSearchFormatsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		w.Write([]byte(`{"results":[
			{"title":"Hotel Pricing Guide","url":"https://example.com/a","content":"Average rates by city."},
			{"title":"Booking Trends","url":"https://example.com/b","content":"Seasonal demand."}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", zap.NewNop())
	out := c.Search(context.Background(), "hotel pricing", 5)

	if !strings.Contains(out, "1. Hotel Pricing Guide") || !strings.Contains(out, "2. Booking Trends") {
		t.Errorf("out = %q", out)
	}
	if !strings.Contains(out, "https://example.com/a") {
		t.Errorf("missing url in %q", out)
	}
}

func TestSearchWithoutKey(t *testing.T) {
	c := NewClient("", "", zap.NewNop())
	out := c.Search(context.Background(), "anything", 3)
	if !strings.Contains(out, "no search API key") {
		t.Errorf("out = %q", out)
	}
}

func TestSearchBackendErrorIsAString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", zap.NewNop())
	out := c.Search(context.Background(), "q", 1)
	if !strings.Contains(out, "status 502") {
		t.Errorf("out = %q", out)
	}
}

func TestSearchNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", zap.NewNop())
	out := c.Search(context.Background(), "obscure query", 3)
	if !strings.Contains(out, "No results found") {
		t.Errorf("out = %q", out)
	}
}

func TestFetchPageExtractsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>x</title><style>p{color:red}</style></head>
			<body><nav>menu</nav><h1>Room Rates</h1><p>Standard rooms from $120.</p>
			<script>alert(1)</script></body></html>`))
	}))
	defer srv.Close()

	c := NewClient("", "", zap.NewNop())
	out := c.FetchPage(context.Background(), srv.URL)

	if !strings.Contains(out, "Room Rates") || !strings.Contains(out, "Standard rooms from $120.") {
		t.Errorf("out = %q", out)
	}
	if strings.Contains(out, "alert(1)") || strings.Contains(out, "menu") || strings.Contains(out, "color:red") {
		t.Errorf("chrome leaked into %q", out)
	}
}

func TestFetchPageRejectsBadScheme(t *testing.T) {
	c := NewClient("", "", zap.NewNop())
	out := c.FetchPage(context.Background(), "ftp://example.com")
	if !strings.Contains(out, "must start with http") {
		t.Errorf("out = %q", out)
	}
}

func TestFetchPageStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient("", "", zap.NewNop())
	out := c.FetchPage(context.Background(), srv.URL)
	if !strings.Contains(out, "status 404") {
		t.Errorf("out = %q", out)
	}
}

func TestExtractTextTruncates(t *testing.T) {
	long := "<html><body><p>" + strings.Repeat("a", maxPageChars+100) + "</p></body></html>"
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(long))
	if err != nil {
		t.Fatal(err)
	}
	out := ExtractText(doc)
	if !strings.HasSuffix(out, "[truncated]") {
		t.Error("long page not truncated")
	}
}
