package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/slices"

	"github.com/dreamware/kvclient/internal/failover"
	"github.com/dreamware/kvclient/internal/metrics"
)

const (
	instrumentationName = "github.com/dreamware/kvclient/internal/cluster"
	userAgent           = "kvclient/1.0"
	defaultTimeout      = 5 * time.Second
)

// Client holds the known cluster endpoints and the HTTP transport shared by
// every call. It is safe for concurrent use; each call snapshots the
// endpoint list and walks it with its own failover.Driver.
type Client struct {
	endpoints []string
	http      *resty.Client
	log       zerolog.Logger
	metrics   *metrics.Registry
	tracer    trace.Tracer
}

type options struct {
	log        zerolog.Logger
	metrics    *metrics.Registry
	tracer     trace.Tracer
	timeout    time.Duration
	httpClient *http.Client
	username   string
	password   string
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the logger used for per-attempt diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMetrics records attempts and calls into r.
func WithMetrics(r *metrics.Registry) Option {
	return func(o *options) { o.metrics = r }
}

// WithTracer overrides the tracer taken from the global otel provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithTimeout bounds each individual endpoint attempt. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithHTTPClient uses hc as the underlying transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithBasicAuth sends credentials with every request.
func WithBasicAuth(username, password string) Option {
	return func(o *options) {
		o.username = username
		o.password = password
	}
}

// NewClient validates endpoints and builds a Client. Every endpoint must be
// an absolute http or https URL. An empty list is accepted; calls on such a
// client fail with an empty failover.Errors.
//
// Parameters:
//   - endpoints: Member base URLs, in the order every call tries them
//   - opts: Logger, metrics, tracer, per-attempt timeout, transport, auth
//
// Returns:
//   - *Client: Immutable client, safe for concurrent use
//   - error: The first endpoint that is not a valid http(s) URL
//
// Example:
//
//	c, err := cluster.NewClient(
//	    []string{"http://10.0.0.1:2379", "http://10.0.0.2:2379"},
//	    cluster.WithTimeout(2*time.Second),
//	    cluster.WithLogger(log),
//	)
func NewClient(endpoints []string, opts ...Option) (*Client, error) {
	for _, e := range endpoints {
		if err := validateEndpoint(e); err != nil {
			return nil, err
		}
	}

	o := options{
		log:     zerolog.Nop(),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(instrumentationName)
	}

	var hc *resty.Client
	if o.httpClient != nil {
		// resty writes timeout and redirect policy into the client it wraps.
		cp := *o.httpClient
		hc = resty.NewWithClient(&cp)
	} else {
		hc = resty.New()
	}
	// A followed redirect turns a PUT or DELETE into a GET whose 200 would
	// pass for the write's success, so a 3xx fails the attempt instead.
	hc.SetTimeout(o.timeout).
		SetRedirectPolicy(resty.NoRedirectPolicy()).
		SetHeader("User-Agent", userAgent).
		SetLogger(restyLogger{o.log})
	if o.username != "" {
		hc.SetBasicAuth(o.username, o.password)
	}

	return &Client{
		endpoints: slices.Clone(endpoints),
		http:      hc,
		log:       o.log,
		metrics:   o.metrics,
		tracer:    o.tracer,
	}, nil
}

func validateEndpoint(e string) error {
	u, err := url.Parse(e)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", e, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: want an absolute http(s) URL", e)
	}
	return nil
}

// Endpoints returns a copy of the configured endpoints, in failover order.
func (c *Client) Endpoints() []string {
	return slices.Clone(c.endpoints)
}

// Pin returns a client that shares c's transport and settings but talks only
// to endpoint. Used to address one member without failing over.
func (c *Client) Pin(endpoint string) *Client {
	pinned := *c
	pinned.endpoints = []string{endpoint}
	return &pinned
}

// BuildURL joins an endpoint base URL and a resource path with exactly one
// slash between them.
func BuildURL(endpoint, path string) string {
	sep := "/"
	if strings.HasSuffix(endpoint, "/") {
		sep = ""
	}
	return endpoint + sep + strings.TrimPrefix(path, "/")
}

// Request describes one API call independent of the endpoint it is sent to.
type Request struct {
	// Name labels the call in logs, metrics and traces, e.g. "members.list".
	Name   string
	Method string
	// Path is relative to the endpoint base URL, e.g. "v2/members".
	Path  string
	Query url.Values
	Form  url.Values
	JSON  any
	// Success lists the status codes that carry a payload of the expected
	// type. Defaults to 200.
	Success []int
}

func (r Request) successCodes() []int {
	if len(r.Success) == 0 {
		return []int{http.StatusOK}
	}
	return r.Success
}

// Do sends req to the client's endpoints in order and returns the first
// successful response. When every endpoint fails the error is a
// failover.Errors of *EndpointError, one per endpoint.
func Do[T any](ctx context.Context, c *Client, req Request) (Response[T], error) {
	requestID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, req.Name, trace.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("kv.path", req.Path),
		attribute.String("kv.request_id", requestID),
	))
	defer span.End()

	log := c.log.With().
		Str("op", req.Name).
		Str("request_id", requestID).
		Logger()

	driver := failover.New(c.Endpoints(), func(ctx context.Context, endpoint string) (Response[T], error) {
		start := time.Now()
		resp, err := attempt[T](ctx, c, endpoint, req, requestID)
		elapsed := time.Since(start)

		span.AddEvent("attempt", trace.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.Bool("ok", err == nil),
		))
		if err != nil {
			c.metrics.ObserveAttempt(endpoint, metrics.OutcomeFailure, elapsed)
			log.Debug().Err(err).Str("endpoint", endpoint).Dur("elapsed", elapsed).Msg("endpoint attempt failed")
			return resp, &EndpointError{Endpoint: endpoint, Err: err}
		}
		c.metrics.ObserveAttempt(endpoint, metrics.OutcomeSuccess, elapsed)
		log.Debug().Str("endpoint", endpoint).Dur("elapsed", elapsed).Msg("endpoint attempt succeeded")
		return resp, nil
	})

	resp, err := driver.Run(ctx)
	if err != nil {
		c.metrics.ObserveCall(req.Name, metrics.OutcomeFailure, driver.Attempts())
		span.RecordError(err)
		span.SetStatus(codes.Error, "no endpoint succeeded")
		log.Warn().Err(err).Int("attempts", driver.Attempts()).Msg("request failed on every endpoint")
		return resp, err
	}
	c.metrics.ObserveCall(req.Name, metrics.OutcomeSuccess, driver.Attempts())
	return resp, nil
}

// attempt sends req to a single endpoint and classifies the answer.
func attempt[T any](ctx context.Context, c *Client, endpoint string, req Request, requestID string) (Response[T], error) {
	var out Response[T]

	r := c.http.R().
		SetContext(ctx).
		SetHeader(HeaderRequestID, requestID)
	if len(req.Query) > 0 {
		r.SetQueryParamsFromValues(req.Query)
	}
	if len(req.Form) > 0 {
		r.SetFormDataFromValues(req.Form)
	}
	if req.JSON != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.JSON)
	}

	resp, err := r.Execute(req.Method, BuildURL(endpoint, req.Path))
	if err != nil {
		return out, &TransportError{Err: err}
	}

	out.Cluster = ParseClusterInfo(resp.Header())
	status := resp.StatusCode()
	body := bytes.TrimSpace(resp.Body())

	if slices.Contains(req.successCodes(), status) {
		if len(body) == 0 {
			return out, nil
		}
		if err := json.Unmarshal(body, &out.Data); err != nil {
			return out, &SerializationError{StatusCode: status, Err: err}
		}
		return out, nil
	}

	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil {
		return out, &SerializationError{StatusCode: status, Err: err}
	}
	apiErr.StatusCode = status
	return out, apiErr
}

// restyLogger routes resty's internal messages through zerolog.
type restyLogger struct {
	log zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) { l.log.Error().Msgf(format, v...) }
func (l restyLogger) Warnf(format string, v ...any)  { l.log.Warn().Msgf(format, v...) }
func (l restyLogger) Debugf(format string, v ...any) { l.log.Debug().Msgf(format, v...) }
