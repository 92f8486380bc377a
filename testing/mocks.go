package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// MockMirror is a download server for tests. It serves registered paths,
// counts GET requests and tracks how many transfers run at once.
type MockMirror struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]MockResponse
	requests  []MockRequest
	delay     time.Duration

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// MockResponse holds response data for a path
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
	// Stall sends half the body and then hangs until the client goes away.
	Stall bool
}

// MockRequest records a request made to the mock server
type MockRequest struct {
	Method    string
	Path      string
	UserAgent string
}

// NewMockMirror starts a mirror that is closed when the test ends.
func NewMockMirror(t *testing.T) *MockMirror {
	t.Helper()

	mock := &MockMirror{responses: make(map[string]MockResponse)}
	mock.Server = httptest.NewServer(http.HandlerFunc(mock.serve))
	t.Cleanup(mock.Server.Close)
	return mock
}

func (m *MockMirror) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests = append(m.requests, MockRequest{Method: r.Method, Path: r.URL.Path, UserAgent: r.UserAgent()})
	response, ok := m.responses[r.URL.Path]
	delay := m.delay
	m.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if r.Method == http.MethodGet {
		n := m.inFlight.Add(1)
		defer m.inFlight.Add(-1)
		for {
			peak := m.maxInFlight.Load()
			if n <= peak || m.maxInFlight.CompareAndSwap(peak, n) {
				break
			}
		}
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	status := response.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	if status == http.StatusOK {
		w.Header().Set("Content-Length", strconv.Itoa(len(response.Body)))
	}
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}

	if response.Stall {
		w.Write(response.Body[:len(response.Body)/2])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
		return
	}
	w.Write(response.Body)
}

// SetFile serves body with status 200.
func (m *MockMirror) SetFile(path string, body []byte) {
	m.SetRawResponse(path, http.StatusOK, body, nil)
}

// SetJSON serves v encoded as JSON.
func (m *MockMirror) SetJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.SetRawResponse(path, http.StatusOK, data, map[string]string{"Content-Type": "application/json"})
	return nil
}

// SetError serves an error status.
func (m *MockMirror) SetError(path string, statusCode int) {
	m.SetRawResponse(path, statusCode, []byte(http.StatusText(statusCode)), nil)
}

// SetStall serves a transfer that never completes.
func (m *MockMirror) SetStall(path string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = MockResponse{StatusCode: http.StatusOK, Body: body, Stall: true}
}

// SetRawResponse sets a raw response
func (m *MockMirror) SetRawResponse(path string, statusCode int, body []byte, headers map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = MockResponse{StatusCode: statusCode, Body: body, Headers: headers}
}

// SetDelay holds every response for d.
func (m *MockMirror) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// URL returns the absolute URL for path.
func (m *MockMirror) URL(path string) string {
	return m.Server.URL + path
}

// GetRequestCount returns the number of GET requests made to a path
func (m *MockMirror) GetRequestCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, req := range m.requests {
		if req.Path == path && req.Method == http.MethodGet {
			count++
		}
	}
	return count
}

// GetPaths returns the paths of GET requests in arrival order.
func (m *MockMirror) GetPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, req := range m.requests {
		if req.Method == http.MethodGet {
			out = append(out, req.Path)
		}
	}
	return out
}

// Requests returns a copy of every recorded request.
func (m *MockMirror) Requests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockRequest(nil), m.requests...)
}

// MaxInFlight is the highest number of concurrent GETs observed.
func (m *MockMirror) MaxInFlight() int {
	return int(m.maxInFlight.Load())
}

// ClearRequests clears the recorded requests
func (m *MockMirror) ClearRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.maxInFlight.Store(0)
}
