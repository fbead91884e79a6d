package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/plexsphere/pcpmon/internal/api"
)

// mockTransport answers /pmapi/context requests with increasing context ids.
type mockTransport struct {
	mu      sync.Mutex
	creates map[string]int
	next    int
	err     error

	// gate, when non-nil, blocks every create until it is closed.
	gate chan struct{}
}

func newMockTransport() *mockTransport {
	return &mockTransport{creates: make(map[string]int)}
}

func (m *mockTransport) Get(ctx context.Context, path string, params url.Values, result any) error {
	if path != api.PathContext {
		return fmt.Errorf("unexpected path %s", path)
	}
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	host := params.Get("hostspec")
	m.creates[host]++
	if m.err != nil {
		return m.err
	}
	m.next++
	resp := result.(*api.ContextResponse)
	resp.Context = json.Number(strconv.Itoa(m.next))
	resp.Hostspec = host
	return nil
}

func (m *mockTransport) createCount(host string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates[host]
}

func (m *mockTransport) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// recordingObserver captures SessionCreated notifications.
type recordingObserver struct {
	mu      sync.Mutex
	reasons []string
	errs    []error
}

func (o *recordingObserver) SessionCreated(_ context.Context, _ string, reason string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reasons = append(o.reasons, reason)
	o.errs = append(o.errs, err)
}
