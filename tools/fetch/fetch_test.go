package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const page = `<!DOCTYPE html><html><head><title>Test Article</title></head>
<body><article><h1>Test Article</h1>
<p>This is the readable body of the test article. It has enough prose for
the extractor to treat it as the main content of the page, rather than
navigation or boilerplate that should be stripped away.</p>
<p>A second paragraph keeps the extractor confident about the content.</p>
</article></body></html>`

func TestExecuteExtractsReadableText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(page)); err != nil {
			t.Error(err)
		}
	}))
	defer srv.Close()

	tool := New()
	out, err := tool.Execute(context.Background(), "fetch_page", `{"url":"`+srv.URL+`"}`)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "readable body of the test article") {
		t.Errorf("extracted content missing article text: %q", out)
	}
	if strings.Contains(out, "<p>") {
		t.Errorf("extracted content still contains HTML: %q", out)
	}
}

func TestExecuteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	tool := New()
	if _, err := tool.Execute(context.Background(), "fetch_page", `{"url":"`+srv.URL+`"}`); err == nil {
		t.Error("want error for HTTP 404")
	}
}

func TestExecuteBadArgs(t *testing.T) {
	tool := New()
	if _, err := tool.Execute(context.Background(), "fetch_page", `{`); err == nil {
		t.Error("want error for malformed args")
	}
	if _, err := tool.Execute(context.Background(), "fetch_page", `{}`); err == nil {
		t.Error("want error for missing url")
	}
}
