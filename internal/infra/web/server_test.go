//go:build !integration

package web_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"telegram-bot-dispatch/internal/dispatch"
	"telegram-bot-dispatch/internal/infra/web"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// mockDispatcher satisfies the slim ops-facing interface.
type mockDispatcher struct {
	lanes []dispatch.LaneInfo

	DrainFunc func(timeout time.Duration) dispatch.DrainReport
}

func (m *mockDispatcher) Lanes() []dispatch.LaneInfo { return m.lanes }

func (m *mockDispatcher) Drain(timeout time.Duration) dispatch.DrainReport {
	if m.DrainFunc != nil {
		return m.DrainFunc(timeout)
	}
	return dispatch.DrainReport{}
}

func newTestServer(disp *mockDispatcher) *httptest.Server {
	auth := web.NewAuthManager("test-secret", false, time.Minute)
	srv := web.NewServer(disp, auth, "test-api-key", 5*time.Second, newTestLogger())
	return httptest.NewServer(srv.Router())
}

func login(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/login", nil)
	req.Header.Set("X-API-Key", "test-api-key")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	if body["token"] == "" {
		t.Fatal("login returned an empty token")
	}
	return body["token"]
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(&mockDispatcher{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestLogin(t *testing.T) {
	t.Run("should issue a token for the correct api key", func(t *testing.T) {
		ts := newTestServer(&mockDispatcher{})
		defer ts.Close()
		login(t, ts)
	})

	t.Run("should refuse a wrong api key", func(t *testing.T) {
		ts := newTestServer(&mockDispatcher{})
		defer ts.Close()

		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/login", nil)
		req.Header.Set("X-API-Key", "nope")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", resp.StatusCode)
		}
	})
}

func TestLanes(t *testing.T) {
	t.Run("should require authentication", func(t *testing.T) {
		ts := newTestServer(&mockDispatcher{})
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/api/v1/lanes")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("should return the lane snapshot with a bearer token", func(t *testing.T) {
		disp := &mockDispatcher{lanes: []dispatch.LaneInfo{
			{UserID: 42, Pending: 3},
			{UserID: 43, Pending: 0},
		}}
		ts := newTestServer(disp)
		defer ts.Close()
		token := login(t, ts)

		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/lanes", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}

		var lanes []dispatch.LaneInfo
		if err := json.NewDecoder(resp.Body).Decode(&lanes); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(lanes) != 2 || lanes[0].UserID != 42 || lanes[0].Pending != 3 {
			t.Fatalf("lanes = %+v, want the mock snapshot", lanes)
		}
	})

	t.Run("should reject a token signed with another secret", func(t *testing.T) {
		ts := newTestServer(&mockDispatcher{})
		defer ts.Close()

		other := web.NewAuthManager("other-secret", false, time.Minute)
		rec := httptest.NewRecorder()
		token, err := other.Mint(rec)
		if err != nil {
			t.Fatalf("mint: %v", err)
		}

		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/lanes", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", resp.StatusCode)
		}
	})
}

func TestDrainEndpoint(t *testing.T) {
	t.Run("should drain with the configured timeout", func(t *testing.T) {
		var gotTimeout time.Duration
		disp := &mockDispatcher{DrainFunc: func(timeout time.Duration) dispatch.DrainReport {
			gotTimeout = timeout
			return dispatch.DrainReport{Completed: 4, Abandoned: []int64{9}}
		}}
		ts := newTestServer(disp)
		defer ts.Close()
		token := login(t, ts)

		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/drain", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if gotTimeout != 5*time.Second {
			t.Errorf("timeout = %v, want the configured 5s", gotTimeout)
		}

		var rep dispatch.DrainReport
		if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if rep.Completed != 4 || len(rep.Abandoned) != 1 || rep.Abandoned[0] != 9 {
			t.Fatalf("report = %+v, want the mock report", rep)
		}
	})

	t.Run("should honor the timeout query override", func(t *testing.T) {
		var gotTimeout time.Duration
		disp := &mockDispatcher{DrainFunc: func(timeout time.Duration) dispatch.DrainReport {
			gotTimeout = timeout
			return dispatch.DrainReport{}
		}}
		ts := newTestServer(disp)
		defer ts.Close()
		token := login(t, ts)

		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/drain?timeout=250ms", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		resp.Body.Close()
		if gotTimeout != 250*time.Millisecond {
			t.Errorf("timeout = %v, want 250ms", gotTimeout)
		}
	})

	t.Run("should reject a malformed timeout", func(t *testing.T) {
		ts := newTestServer(&mockDispatcher{})
		defer ts.Close()
		token := login(t, ts)

		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/drain?timeout=soon", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", resp.StatusCode)
		}
	})
}
