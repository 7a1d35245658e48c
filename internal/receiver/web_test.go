package receiver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newInboxServer(t *testing.T, listing string, listingStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/inbox/teleworm.us/jdoe", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "inboxwatch-test", r.Header.Get("User-Agent"))
		w.WriteHeader(listingStatus)
		io.WriteString(w, listing)
	})
	mux.HandleFunc("/email/teleworm.us/jdoe/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/email/teleworm.us/jdoe/message-"), "/")
		fmt.Fprintf(w, "body for %s", id)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestWebReceiverList(t *testing.T) {
	srv := newInboxServer(t, samplePage, http.StatusOK)
	r := NewWeb("teleworm.us", "jdoe", WithBaseURL(srv.URL+"/"), WithUserAgent("inboxwatch-test"))
	defer r.Close()

	assert.Equal(t, srv.URL+"/inbox/teleworm.us/jdoe", r.Location())

	entries, err := r.List(context.Background())
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Len(t, entries, 2)
	assert.Equal(t, "51234567", entries[0].ID)

	body, err := r.Body(context.Background(), entries[0].ID)
	assert.NoError(t, err)
	assert.Equal(t, "body for 51234567", body)
}

func TestWebReceiverListErrorStatus(t *testing.T) {
	srv := newInboxServer(t, "unavailable", http.StatusServiceUnavailable)
	r := NewWeb("teleworm.us", "jdoe", WithBaseURL(srv.URL), WithUserAgent("inboxwatch-test"))

	entries, err := r.List(context.Background())
	assert.Empty(t, entries)
	var statusErr *StatusError
	if assert.ErrorAs(t, err, &statusErr) {
		assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
		assert.Equal(t, srv.URL+"/inbox/teleworm.us/jdoe", statusErr.URL)
	}
}

func TestWebReceiverTransportError(t *testing.T) {
	srv := newInboxServer(t, samplePage, http.StatusOK)
	srv.Close()
	r := NewWeb("teleworm.us", "jdoe", WithBaseURL(srv.URL))

	_, err := r.List(context.Background())
	assert.Error(t, err)
}

func TestWebReceiverCustomBodyURL(t *testing.T) {
	requested := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested <- r.URL.Path
		io.WriteString(w, "raw")
	}))
	defer srv.Close()

	r := NewWeb("d", "n", WithBodyURL(func(id string) string {
		return srv.URL + "/raw/" + id
	}))
	body, err := r.Body(context.Background(), "42")
	assert.NoError(t, err)
	assert.Equal(t, "raw", body)
	assert.Equal(t, "/raw/42", <-requested)
}

func TestWebReceiverDefaultLocation(t *testing.T) {
	r := NewWeb("teleworm.us", "jdoe")
	assert.Equal(t, "http://www.fakemailgenerator.com/inbox/teleworm.us/jdoe", r.Location())
}

func TestWebReceiverBodyKeepsErrorPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "message expired")
	}))
	defer srv.Close()

	r := NewWeb("d", "n", WithBaseURL(srv.URL))
	body, err := r.Body(context.Background(), "1")
	assert.NoError(t, err)
	assert.Equal(t, "message expired", body)
}

type stubParser struct {
	page    string
	entries []Entry
}

func (p *stubParser) Parse(r io.Reader) ([]Entry, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	p.page = string(b)
	return p.entries, nil
}

type recordingTransport struct {
	urls []string
}

func (t *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.urls = append(t.urls, req.URL.String())
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("page for " + req.URL.Path)),
		Request:    req,
	}, nil
}

func TestWebReceiverCustomParserAndClient(t *testing.T) {
	transport := &recordingTransport{}
	parser := &stubParser{entries: []Entry{{ID: "9", From: "a@d", Subject: "s"}}}
	r := NewWeb("d", "n",
		WithBaseURL("http://inbox.test"),
		WithHTTPClient(&http.Client{Transport: transport}),
		WithListingParser(parser),
	)

	entries, err := r.List(context.Background())
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Equal(t, parser.entries, entries)
	assert.Equal(t, "page for /inbox/d/n", parser.page)

	body, err := r.Body(context.Background(), "9")
	assert.NoError(t, err)
	assert.Equal(t, "page for /email/d/n/message-9/", body)

	assert.Equal(t, []string{
		"http://inbox.test/inbox/d/n",
		"http://inbox.test/email/d/n/message-9/",
	}, transport.urls)
}
