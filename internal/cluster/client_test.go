package cluster

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/kvclient/internal/failover"
	"github.com/dreamware/kvclient/internal/metrics"
)

type payload struct {
	Name string `json:"name"`
}

// countingServer answers every request with status and body and counts hits.
func countingServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set(HeaderClusterID, "c-1")
		w.Header().Set(HeaderEtcdIndex, "42")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

// deadEndpoint returns the URL of a server that is no longer listening.
func deadEndpoint(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}

func newTestClient(t *testing.T, endpoints []string, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(endpoints, opts...)
	require.NoError(t, err)
	return c
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		endpoint, path, want string
	}{
		{"http://a:2379", "v2/members", "http://a:2379/v2/members"},
		{"http://a:2379/", "v2/members", "http://a:2379/v2/members"},
		{"http://a:2379", "/v2/members", "http://a:2379/v2/members"},
		{"http://a:2379/", "v2/members/abc", "http://a:2379/v2/members/abc"},
		{"https://a/prefix", "health", "https://a/prefix/health"},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint+"+"+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildURL(tt.endpoint, tt.path))
		})
	}
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name      string
		endpoints []string
		wantErr   bool
	}{
		{"empty list", nil, false},
		{"http and https", []string{"http://a:2379", "https://b:2379/"}, false},
		{"missing scheme", []string{"a:2379"}, true},
		{"ftp scheme", []string{"ftp://a"}, true},
		{"no host", []string{"http://"}, true},
		{"unparseable", []string{"http://[::1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.endpoints)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWithHTTPClientLeavesCallerClientAlone(t *testing.T) {
	hc := &http.Client{}
	c := newTestClient(t, []string{"http://a:2379"}, WithHTTPClient(hc), WithTimeout(time.Second))

	assert.Zero(t, hc.Timeout)
	assert.Nil(t, hc.CheckRedirect)
	assert.Equal(t, []string{"http://a:2379"}, c.Endpoints())
}

// TestDoDoesNotFollowRedirects verifies a 3xx fails the attempt instead of
// being followed with a GET whose answer would look like success.
func TestDoDoesNotFollowRedirects(t *testing.T) {
	target, targetHits := countingServer(t, http.StatusOK, `{"name":"stale read"}`)
	redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/x", http.StatusMovedPermanently)
	}))
	t.Cleanup(redirecting.Close)

	c := newTestClient(t, []string{redirecting.URL})
	_, err := Do[payload](context.Background(), c, Request{Name: "test.put", Method: http.MethodPut, Path: "x"})

	var errs failover.Errors
	require.ErrorAs(t, err, &errs)
	require.Len(t, errs, 1)
	var epErr *EndpointError
	require.ErrorAs(t, errs[0], &epErr)
	assert.Equal(t, redirecting.URL, epErr.Endpoint)
	var transportErr *TransportError
	assert.ErrorAs(t, epErr, &transportErr)
	assert.EqualValues(t, 0, atomic.LoadInt32(targetHits))
}

// TestEndpointsIsCopy verifies callers cannot mutate the client's list.
func TestEndpointsIsCopy(t *testing.T) {
	in := []string{"http://a:1", "http://b:2"}
	c := newTestClient(t, in)
	in[0] = "http://z:9"

	got := c.Endpoints()
	got[1] = "http://y:9"

	assert.Equal(t, []string{"http://a:1", "http://b:2"}, c.Endpoints())
}

func TestParseClusterInfo(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderClusterID, "abc")
	h.Set(HeaderEtcdIndex, "7")
	h.Set(HeaderRaftIndex, "not-a-number")

	info := ParseClusterInfo(h)

	assert.Equal(t, "abc", info.ClusterID)
	require.NotNil(t, info.EtcdIndex)
	assert.Equal(t, uint64(7), *info.EtcdIndex)
	assert.Nil(t, info.RaftIndex)
	assert.Nil(t, info.RaftTerm)
}

// TestDoClassification checks how a single endpoint's answer is classified.
func TestDoClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		success []int
		check   func(t *testing.T, resp Response[payload], err error)
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body:   `{"name":"n1"}`,
			check: func(t *testing.T, resp Response[payload], err error) {
				require.NoError(t, err)
				assert.Equal(t, "n1", resp.Data.Name)
				assert.Equal(t, "c-1", resp.Cluster.ClusterID)
				require.NotNil(t, resp.Cluster.EtcdIndex)
				assert.Equal(t, uint64(42), *resp.Cluster.EtcdIndex)
			},
		},
		{
			name:    "custom success code with empty body",
			status:  http.StatusNoContent,
			success: []int{http.StatusNoContent},
			check: func(t *testing.T, resp Response[payload], err error) {
				require.NoError(t, err)
				assert.Equal(t, payload{}, resp.Data)
			},
		},
		{
			name:   "structured api error",
			status: http.StatusNotFound,
			body:   `{"errorCode":100,"message":"Key not found","cause":"/foo","index":12}`,
			check: func(t *testing.T, _ Response[payload], err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, 100, apiErr.ErrorCode)
				assert.Equal(t, "/foo", apiErr.Cause)
				assert.Equal(t, uint64(12), apiErr.Index)
				assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
				assert.Contains(t, err.Error(), "Key not found (/foo)")
			},
		},
		{
			name:   "unparseable error body",
			status: http.StatusInternalServerError,
			body:   `<html>oops</html>`,
			check: func(t *testing.T, _ Response[payload], err error) {
				var serErr *SerializationError
				require.ErrorAs(t, err, &serErr)
				assert.Equal(t, http.StatusInternalServerError, serErr.StatusCode)
			},
		},
		{
			name:   "unparseable success body",
			status: http.StatusOK,
			body:   `{"name":`,
			check: func(t *testing.T, _ Response[payload], err error) {
				var serErr *SerializationError
				require.ErrorAs(t, err, &serErr)
			},
		},
		{
			name:   "success status not expected",
			status: http.StatusCreated,
			body:   `{"message":"created elsewhere"}`,
			check: func(t *testing.T, _ Response[payload], err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, "api error: created elsewhere [status 201]", apiErr.Error())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := countingServer(t, tt.status, tt.body)
			c := newTestClient(t, []string{srv.URL})

			resp, err := Do[payload](context.Background(), c, Request{
				Name:    "test",
				Method:  http.MethodGet,
				Path:    "v2/thing",
				Success: tt.success,
			})

			tt.check(t, resp, err)
			if err != nil {
				var errs failover.Errors
				require.ErrorAs(t, err, &errs)
				require.Len(t, errs, 1)
				var epErr *EndpointError
				require.ErrorAs(t, errs[0], &epErr)
				assert.Equal(t, srv.URL, epErr.Endpoint)
			}
		})
	}
}

// TestDoFailsOver verifies a dead member and an erroring member are skipped,
// and members after the first success are never contacted.
func TestPin(t *testing.T) {
	first, firstHits := countingServer(t, http.StatusOK, `{"name":"first"}`)
	second, secondHits := countingServer(t, http.StatusOK, `{"name":"second"}`)
	c := newTestClient(t, []string{first.URL, second.URL})

	pinned := c.Pin(second.URL)
	resp, err := Do[payload](context.Background(), pinned, Request{Name: "test.get", Method: http.MethodGet, Path: "x"})

	require.NoError(t, err)
	assert.Equal(t, "second", resp.Data.Name)
	assert.EqualValues(t, 0, atomic.LoadInt32(firstHits))
	assert.EqualValues(t, 1, atomic.LoadInt32(secondHits))
	assert.Equal(t, []string{first.URL, second.URL}, c.Endpoints())
}

func TestDoFailsOver(t *testing.T) {
	dead := deadEndpoint(t)
	failing, failingHits := countingServer(t, http.StatusServiceUnavailable, `{"message":"not ready"}`)
	healthy, healthyHits := countingServer(t, http.StatusOK, `{"name":"ok"}`)
	spare, spareHits := countingServer(t, http.StatusOK, `{"name":"spare"}`)

	reg := metrics.NewRegistry()
	c := newTestClient(t, []string{dead, failing.URL, healthy.URL, spare.URL}, WithMetrics(reg))

	resp, err := Do[payload](context.Background(), c, Request{Name: "test.get", Method: http.MethodGet, Path: "x"})

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Data.Name)
	assert.EqualValues(t, 1, atomic.LoadInt32(failingHits))
	assert.EqualValues(t, 1, atomic.LoadInt32(healthyHits))
	assert.EqualValues(t, 0, atomic.LoadInt32(spareHits))

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.AttemptsTotal.WithLabelValues(dead, metrics.OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.AttemptsTotal.WithLabelValues(failing.URL, metrics.OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.AttemptsTotal.WithLabelValues(healthy.URL, metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.CallsTotal.WithLabelValues("test.get", metrics.OutcomeSuccess)))
}

// TestDoAllFail verifies every member's failure is reported in order.
func TestDoAllFail(t *testing.T) {
	dead := deadEndpoint(t)
	failing, _ := countingServer(t, http.StatusInternalServerError, `{"message":"boom"}`)
	garbled, _ := countingServer(t, http.StatusBadGateway, `garbage`)

	c := newTestClient(t, []string{dead, failing.URL, garbled.URL})

	_, err := Do[payload](context.Background(), c, Request{Name: "test", Method: http.MethodGet, Path: "x"})

	var errs failover.Errors
	require.ErrorAs(t, err, &errs)
	require.Len(t, errs, 3)

	var transportErr *TransportError
	assert.ErrorAs(t, errs[0], &transportErr)
	var apiErr *APIError
	assert.ErrorAs(t, errs[1], &apiErr)
	var serErr *SerializationError
	assert.ErrorAs(t, errs[2], &serErr)

	for i, want := range []string{dead, failing.URL, garbled.URL} {
		var epErr *EndpointError
		require.ErrorAs(t, errs[i], &epErr)
		assert.Equal(t, want, epErr.Endpoint)
	}
}

func TestDoNoEndpoints(t *testing.T) {
	c := newTestClient(t, nil)

	_, err := Do[payload](context.Background(), c, Request{Name: "test", Method: http.MethodGet, Path: "x"})

	var errs failover.Errors
	require.ErrorAs(t, err, &errs)
	assert.Empty(t, errs)
}

// TestDoSendsRequest verifies method, path, query, form, headers and auth
// reach the member.
func TestDoSendsRequest(t *testing.T) {
	var got struct {
		method, path, query, contentType, requestID, user, pass string
		form                                                    url.Values
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.contentType = r.Header.Get("Content-Type")
		got.requestID = r.Header.Get(HeaderRequestID)
		got.user, got.pass, _ = r.BasicAuth()
		_ = r.ParseForm()
		got.form = r.PostForm
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newTestClient(t, []string{srv.URL + "/"}, WithBasicAuth("root", "secret"))

	_, err := Do[payload](context.Background(), c, Request{
		Name:    "keys.create",
		Method:  http.MethodPut,
		Path:    "v2/keys/foo",
		Query:   url.Values{"prevExist": {"false"}},
		Form:    url.Values{"value": {"bar"}},
		Success: []int{http.StatusCreated},
	})

	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/v2/keys/foo", got.path)
	assert.Equal(t, "prevExist=false", got.query)
	assert.Contains(t, got.contentType, "application/x-www-form-urlencoded")
	assert.Equal(t, "bar", got.form.Get("value"))
	assert.Len(t, got.requestID, 36)
	assert.Equal(t, "root", got.user)
	assert.Equal(t, "secret", got.pass)
}

func TestDoSendsJSON(t *testing.T) {
	var body map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, []string{srv.URL})
	_, err := Do[struct{}](context.Background(), c, Request{
		Name:    "members.update",
		Method:  http.MethodPut,
		Path:    "v2/members/1",
		JSON:    map[string][]string{"peerURLs": {"http://p:2380"}},
		Success: []int{http.StatusNoContent},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"http://p:2380"}, body["peerURLs"])
}

// TestDoTimeoutIsPerAttempt verifies a slow member times out and the next
// member still gets its own attempt.
func TestDoTimeoutIsPerAttempt(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	fast, _ := countingServer(t, http.StatusOK, `{"name":"fast"}`)

	c := newTestClient(t, []string{slow.URL, fast.URL}, WithTimeout(50*time.Millisecond))

	resp, err := Do[payload](context.Background(), c, Request{Name: "test", Method: http.MethodGet, Path: "x"})

	require.NoError(t, err)
	assert.Equal(t, "fast", resp.Data.Name)
}

// TestDoCanceled verifies a cancelled context stops the walk.
func TestDoCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocking := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		<-r.Context().Done()
	}))
	defer blocking.Close()
	never, neverHits := countingServer(t, http.StatusOK, `{}`)

	c := newTestClient(t, []string{blocking.URL, never.URL})

	_, err := Do[payload](ctx, c, Request{Name: "test", Method: http.MethodGet, Path: "x"})

	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 0, atomic.LoadInt32(neverHits))
}
