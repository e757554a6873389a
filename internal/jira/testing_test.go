package jira

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail = "dev@example.com"
	testToken = "secret"
)

// fakeJira serves issues and attachment bodies and records what it saw.
type fakeJira struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	issues   map[string]*Issue
	files    map[string][]byte
	failures map[string]int
	hits     map[string]int

	unauthorized atomic.Int32
}

func newFakeJira(t *testing.T) *fakeJira {
	f := &fakeJira{
		t:        t,
		issues:   make(map[string]*Issue),
		files:    make(map[string][]byte),
		failures: make(map[string]int),
		hits:     make(map[string]int),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeJira) URL() string { return f.server.URL }

func (f *fakeJira) fileURL(name string) string {
	return f.server.URL + "/files/" + name
}

// addIssue registers key with one attachment per file, content URLs pointing
// back at the fake server.
func (f *fakeJira) addIssue(key string, files map[string][]byte) *Issue {
	f.mu.Lock()
	defer f.mu.Unlock()

	issue := &Issue{Key: key}
	i := 0
	for name, body := range files {
		i++
		f.files[name] = body
		issue.Fields.Attachment = append(issue.Fields.Attachment, Attachment{
			ID:         fmt.Sprint(1000 + i),
			Filename:   name,
			ContentURL: f.fileURL(name),
			Size:       int64(len(body)),
		})
	}
	f.issues[key] = issue
	return issue
}

// failWith makes requests for name answer with status.
func (f *fakeJira) failWith(name string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[name] = status
}

func (f *fakeJira) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeJira) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.mu.Unlock()

	user, pass, ok := r.BasicAuth()
	authed := ok && user == testEmail && pass == testToken

	switch {
	case strings.HasPrefix(r.URL.Path, "/rest/api/2/issue/"):
		if !authed {
			f.unauthorized.Add(1)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		key := strings.TrimPrefix(r.URL.Path, "/rest/api/2/issue/")
		f.mu.Lock()
		issue, exists := f.issues[key]
		f.mu.Unlock()
		if !exists {
			http.Error(w, `{"errorMessages":["Issue does not exist"]}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(f.t, json.NewEncoder(w).Encode(issue))

	case strings.HasPrefix(r.URL.Path, "/files/"):
		name := strings.TrimPrefix(r.URL.Path, "/files/")
		f.mu.Lock()
		status, failing := f.failures[name]
		body, exists := f.files[name]
		f.mu.Unlock()
		if failing {
			http.Error(w, "nope", status)
			return
		}
		if !exists {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)

	default:
		http.NotFound(w, r)
	}
}

func newTestClient(f *fakeJira) *Client {
	return NewClient(ClientConfig{
		BaseURL:  f.URL(),
		Email:    testEmail,
		APIToken: testToken,
	}, nil)
}

// zipBytes builds an in-memory archive from name -> content.
func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
