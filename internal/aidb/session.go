// ABOUTME: REST session for the aidb database service
// ABOUTME: Login/logout lifecycle with cookie-jar CSRF handling and wrapped verb calls
package aidb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds every request unless configured otherwise.
	DefaultTimeout = 10 * time.Second

	loginEndpoint  = "/dj-rest-auth/login/"
	logoutEndpoint = "/dj-rest-auth/logout/"

	csrfCookie    = "csrftoken"
	sessionCookie = "sessionid"
	csrfHeader    = "X-CSRFToken"
)

// ErrClosed is returned by every verb method before Open succeeded.
// No network call is made in that case.
var ErrClosed = errors.New("cannot request on a closed connection: open the session first")

// RequestError wraps a failed request with its endpoint and either the
// non-2xx status code or the underlying transport error.
type RequestError struct {
	Method   string
	Endpoint string
	Status   int
	Err      error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] request failed on %s: %v", e.Method, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("[%s] request failed on %s: HTTP %d", e.Method, e.Endpoint, e.Status)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Config holds the database host and credentials.
type Config struct {
	Host     string
	Username string
	Email    string
	Password string
	Timeout  time.Duration
}

// Session is a REST session against an aidb server. Two states: closed
// and open. Open logs in and records the CSRF token; Close logs out.
// A Session is not safe for concurrent use.
type Session struct {
	cfg    Config
	log    *zap.Logger
	client *resty.Client

	key       string
	csrfToken string
	sessionID string
	open      bool
}

// NewSession prepares a closed session.
func NewSession(cfg Config, log *zap.Logger) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Session{cfg: cfg, log: log}
}

// Open logs into the database. The CSRF token and session id are read
// from the parsed response cookies by name; their absence is only
// warned about, the session still opens.
func (s *Session) Open(ctx context.Context) error {
	s.client = resty.New().
		SetBaseURL(s.cfg.Host).
		SetTimeout(s.cfg.Timeout)

	s.log.Info("connecting to database", zap.String("host", s.cfg.Host))

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"username": s.cfg.Username, "password": s.cfg.Password}).
		Post(loginEndpoint)
	if err != nil {
		return &RequestError{Method: http.MethodPost, Endpoint: loginEndpoint, Err: err}
	}

	status := resp.StatusCode()
	s.log.Info("login response", zap.Int("status", status))
	if status != http.StatusOK && status != http.StatusCreated {
		return &RequestError{Method: http.MethodPost, Endpoint: loginEndpoint, Status: status}
	}

	s.readTokens(resp)
	s.open = true
	s.log.Info("connected to database", zap.String("host", s.cfg.Host))
	return nil
}

// readTokens records the auth key from the body and the CSRF/session
// cookies from the response.
func (s *Session) readTokens(resp *resty.Response) {
	var body struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		s.key = body.Key
	}

	s.csrfToken = ""
	s.sessionID = ""
	for _, c := range resp.Cookies() {
		switch c.Name {
		case csrfCookie:
			s.csrfToken = c.Value
		case sessionCookie:
			s.sessionID = c.Value
		}
	}

	if s.csrfToken == "" {
		s.log.Warn("no CSRF token in login response")
	} else {
		s.client.SetHeader(csrfHeader, s.csrfToken)
	}

	if s.sessionID == "" {
		s.log.Warn("no session id in login response")
	}
}

// Close logs out and returns the session to the closed state.
func (s *Session) Close(ctx context.Context) error {
	if !s.open {
		return nil
	}

	s.log.Info("disconnecting from database", zap.String("host", s.cfg.Host))

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]string{}).
		Post(logoutEndpoint)
	if err != nil {
		return &RequestError{Method: http.MethodPost, Endpoint: logoutEndpoint, Err: err}
	}
	if !resp.IsSuccess() {
		return &RequestError{Method: http.MethodPost, Endpoint: logoutEndpoint, Status: resp.StatusCode()}
	}

	s.open = false
	s.key = ""
	return nil
}

// IsOpen reports the session state.
func (s *Session) IsOpen() bool {
	return s.open
}

// Key returns the account token from the login response body, empty
// while the session is closed.
func (s *Session) Key() string {
	return s.key
}

// Get issues a GET on a relative or absolute endpoint.
func (s *Session) Get(ctx context.Context, endpoint string) (*resty.Response, error) {
	return s.do(ctx, http.MethodGet, endpoint, nil)
}

// Post issues a POST with a JSON body.
func (s *Session) Post(ctx context.Context, endpoint string, body any) (*resty.Response, error) {
	return s.do(ctx, http.MethodPost, endpoint, body)
}

// Put issues a PUT with a JSON body.
func (s *Session) Put(ctx context.Context, endpoint string, body any) (*resty.Response, error) {
	return s.do(ctx, http.MethodPut, endpoint, body)
}

// Patch issues a PATCH with a JSON body of fields to update.
func (s *Session) Patch(ctx context.Context, endpoint string, body any) (*resty.Response, error) {
	return s.do(ctx, http.MethodPatch, endpoint, body)
}

// Delete issues a DELETE.
func (s *Session) Delete(ctx context.Context, endpoint string) (*resty.Response, error) {
	return s.do(ctx, http.MethodDelete, endpoint, nil)
}

func (s *Session) do(ctx context.Context, method, endpoint string, body any) (*resty.Response, error) {
	if !s.open {
		s.log.Error("request on closed connection", zap.String("endpoint", endpoint))
		return nil, ErrClosed
	}

	req := s.client.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, endpoint)
	if err != nil {
		s.log.Error("database request failed",
			zap.String("method", method), zap.String("endpoint", endpoint), zap.Error(err))
		return nil, &RequestError{Method: method, Endpoint: endpoint, Err: err}
	}

	if !resp.IsSuccess() {
		s.log.Warn("database request rejected",
			zap.String("method", method), zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode()))
		return resp, &RequestError{Method: method, Endpoint: endpoint, Status: resp.StatusCode()}
	}

	return resp, nil
}
