package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/fullstack-poc/usersview/internal/models"
	"github.com/fullstack-poc/usersview/internal/view"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// pageClient is a browser-like client bound to one session
type pageClient struct {
	t        *testing.T
	srv      *httptest.Server
	client   *http.Client
	sessions *Sessions
}

// setupPageServer starts the page server in front of a users API backed by svc
func setupPageServer(t *testing.T, svc UsersService) *pageClient {
	t.Helper()
	sessions := setupTestSessions(t, svc, time.Minute)

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	handler, err := NewPageHandler(sessions, logger)
	require.NoError(t, err)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	c := &pageClient{t: t, srv: srv, client: &http.Client{Jar: jar}, sessions: sessions}
	// opening the page starts the session
	c.get("/")
	return c
}

func (c *pageClient) get(path string) (*http.Response, string) {
	c.t.Helper()
	resp, err := c.client.Get(c.srv.URL + path)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, string(body)
}

func (c *pageClient) post(path string, form url.Values, acceptJSON bool) (*http.Response, string) {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if acceptJSON {
		req.Header.Set("Accept", "application/json")
	}
	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, string(body)
}

func (c *pageClient) state() view.Snapshot {
	c.t.Helper()
	_, body := c.get("/state")
	var snap view.Snapshot
	require.NoError(c.t, json.Unmarshal([]byte(body), &snap))
	return snap
}

func (c *pageClient) waitReady() view.Snapshot {
	c.t.Helper()
	var snap view.Snapshot
	require.Eventually(c.t, func() bool {
		snap = c.state()
		return !snap.Status.IsLoading() && snap.Health != nil
	}, 2*time.Second, 10*time.Millisecond)
	return snap
}

func TestPageHandler_Page(t *testing.T) {
	svc := &mockUsersService{users: []models.UserRecord{{ID: 1, Name: "Alice", Email: "alice@x.com", Role: models.RoleAdmin}}}
	c := setupPageServer(t, svc)

	resp, _ := c.get("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))

	c.waitReady()

	_, body := c.get("/")
	assert.Contains(t, body, "Current Users (1)")
	assert.Contains(t, body, "Alice")
	assert.Contains(t, body, "alice@x.com")
	assert.Contains(t, body, "API Status: OK")
	assert.Contains(t, body, "Uptime: 12s")
	assert.Contains(t, body, "Created: ")
}

func TestPageHandler_SessionIsKept(t *testing.T) {
	c := setupPageServer(t, &mockUsersService{})

	first := c.state()
	second := c.state()

	assert.Equal(t, first.APIURL, second.APIURL)
	u, err := url.Parse(c.srv.URL)
	require.NoError(t, err)
	require.Len(t, c.client.Jar.Cookies(u), 1)
	assert.Equal(t, SessionCookie, c.client.Jar.Cookies(u)[0].Name)
}

func TestPageHandler_ConnectionError(t *testing.T) {
	svc := &mockUsersService{err: assert.AnError}
	c := setupPageServer(t, svc)

	snap := c.waitReady()
	assert.True(t, snap.Status.IsError())
	assert.Equal(t, "HTTP error! status: 500", snap.Status.Message)

	_, body := c.get("/")
	assert.Contains(t, body, "Connection Error")
	assert.Contains(t, body, "HTTP error! status: 500")
	assert.Contains(t, body, snap.APIURL)

	svc.mu.Lock()
	svc.err = nil
	svc.mu.Unlock()

	resp, body := c.post("/reload", nil, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var reloaded view.Snapshot
	require.NoError(t, json.Unmarshal([]byte(body), &reloaded))
	assert.True(t, reloaded.Status.IsReady())
}

func TestPageHandler_CreateUser_Form(t *testing.T) {
	c := setupPageServer(t, &mockUsersService{})
	c.waitReady()

	resp, body := c.post("/users", url.Values{"name": {"Bob"}, "email": {"bob@x.com"}, "role": {"admin"}}, false)

	// redirected back to the page
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/", resp.Request.URL.Path)
	assert.Contains(t, body, "User created successfully!")
	assert.Contains(t, body, "Bob")

	snap := c.state()
	require.Len(t, snap.Users, 1)
	assert.Equal(t, models.RoleAdmin, snap.Users[0].Role)
	assert.Equal(t, models.NewDraftUser(), snap.Draft)
}

func TestPageHandler_CreateUser_JSON(t *testing.T) {
	tests := []struct {
		name           string
		form           url.Values
		svc            *mockUsersService
		expectedStatus int
		expectedUsers  int
	}{
		{
			name:           "created",
			form:           url.Values{"name": {"Bob"}, "email": {"bob@x.com"}},
			svc:            &mockUsersService{},
			expectedStatus: http.StatusCreated,
			expectedUsers:  1,
		},
		{
			name:           "missing name",
			form:           url.Values{"name": {""}, "email": {"bob@x.com"}},
			svc:            &mockUsersService{},
			expectedStatus: http.StatusBadRequest,
			expectedUsers:  0,
		},
		{
			name:           "api rejects",
			form:           url.Values{"name": {"Bob"}, "email": {"bob@x.com"}},
			svc:            &mockUsersService{createErr: assert.AnError},
			expectedStatus: http.StatusBadGateway,
			expectedUsers:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := setupPageServer(t, tt.svc)
			c.waitReady()

			resp, _ := c.post("/users", tt.form, true)

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			snap := c.state()
			assert.Len(t, snap.Users, tt.expectedUsers)
			if tt.expectedStatus != http.StatusCreated {
				// the draft survives a failed submission
				assert.Equal(t, tt.form.Get("name"), snap.Draft.Name)
				assert.Equal(t, tt.form.Get("email"), snap.Draft.Email)
				require.NotNil(t, snap.Notice)
				assert.Equal(t, view.NoticeError, snap.Notice.Kind)
			}
		})
	}
}

func TestPageHandler_TestConnectionAndDismiss(t *testing.T) {
	c := setupPageServer(t, &mockUsersService{})
	c.waitReady()

	_, body := c.post("/test-connection", nil, false)
	assert.Contains(t, body, "Connection successful! API Status: OK")

	_, body = c.post("/notice/dismiss", nil, true)
	var snap view.Snapshot
	require.NoError(t, json.Unmarshal([]byte(body), &snap))
	assert.Nil(t, snap.Notice)
}

func TestPageHandler_LiveFragments(t *testing.T) {
	c := setupPageServer(t, &mockUsersService{})
	c.waitReady()

	resp, body := c.get("/fragments/live")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var fragments map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &fragments))
	assert.Contains(t, fragments["users"], "No users found")
	assert.Contains(t, fragments["health"], "API Status: OK")
	assert.Empty(t, strings.TrimSpace(fragments["notice"]))
}

func TestPageHandler_RequiresSession(t *testing.T) {
	c := setupPageServer(t, &mockUsersService{})
	require.Equal(t, 1, c.sessions.Len())

	noRedirect := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	tests := []struct {
		name             string
		method           string
		path             string
		cookie           string
		acceptJSON       bool
		expectedStatus   int
		expectedLocation string
	}{
		{name: "state without cookie", method: http.MethodGet, path: "/state", expectedStatus: http.StatusUnauthorized},
		{name: "fragments without cookie", method: http.MethodGet, path: "/fragments/live", expectedStatus: http.StatusUnauthorized},
		{name: "stream without cookie", method: http.MethodGet, path: "/ws", expectedStatus: http.StatusUnauthorized},
		{name: "state with unknown session", method: http.MethodGet, path: "/state", cookie: "expired", expectedStatus: http.StatusUnauthorized},
		{name: "json reload without cookie", method: http.MethodPost, path: "/reload", acceptJSON: true, expectedStatus: http.StatusUnauthorized},
		{name: "form post without cookie", method: http.MethodPost, path: "/users", expectedStatus: http.StatusSeeOther, expectedLocation: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, c.srv.URL+tt.path, nil)
			require.NoError(t, err)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tt.cookie})
			}
			if tt.acceptJSON {
				req.Header.Set("Accept", "application/json")
			}

			resp, err := noRedirect.Do(req)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			assert.Equal(t, tt.expectedLocation, resp.Header.Get("Location"))
			assert.Empty(t, resp.Cookies())
		})
	}

	// none of the requests above started a session
	assert.Equal(t, 1, c.sessions.Len())
}

func TestPageHandler_Stream(t *testing.T) {
	c := setupPageServer(t, &mockUsersService{})
	c.waitReady()

	u, err := url.Parse(c.srv.URL)
	require.NoError(t, err)
	header := http.Header{}
	for _, cookie := range c.client.Jar.Cookies(u) {
		header.Add("Cookie", cookie.String())
	}

	wsURL := "ws" + strings.TrimPrefix(c.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	readSnapshot := func() view.Snapshot {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var snap view.Snapshot
		require.NoError(t, json.Unmarshal(data, &snap))
		return snap
	}

	initial := readSnapshot()
	assert.True(t, initial.Status.IsReady())
	assert.Empty(t, initial.Users)

	c.post("/users", url.Values{"name": {"Bob"}, "email": {"bob@x.com"}}, true)

	var latest view.Snapshot
	for len(latest.Users) == 0 {
		latest = readSnapshot()
	}
	assert.Greater(t, latest.Version, initial.Version)
	assert.Equal(t, "Bob", latest.Users[0].Name)
}

func TestPageHandler_StreamEndsWhenSessionCloses(t *testing.T) {
	c := setupPageServer(t, &mockUsersService{})
	c.waitReady()

	u, err := url.Parse(c.srv.URL)
	require.NoError(t, err)
	header := http.Header{}
	for _, cookie := range c.client.Jar.Cookies(u) {
		header.Add("Cookie", cookie.String())
	}

	wsURL := "ws" + strings.TrimPrefix(c.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	c.sessions.Close()

	for {
		if _, _, err = conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
}

func TestCreateStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, createStatus(&view.ValidationError{}))
	assert.Equal(t, http.StatusConflict, createStatus(view.ErrSubmissionInFlight))
	assert.Equal(t, http.StatusConflict, createStatus(&view.CreateError{StatusCode: http.StatusConflict}))
	assert.Equal(t, http.StatusBadGateway, createStatus(&view.CreateError{StatusCode: http.StatusInternalServerError}))
	assert.Equal(t, http.StatusBadGateway, createStatus(&view.CreateError{Err: assert.AnError}))
	assert.Equal(t, http.StatusServiceUnavailable, createStatus(view.ErrClosed))
}

func TestFormatDate(t *testing.T) {
	assert.Empty(t, formatDate(nil))
	raw := "not a date"
	assert.Equal(t, raw, formatDate(&raw))
	ts := "2024-01-02T12:00:00Z"
	assert.Len(t, formatDate(&ts), len("2024-01-02"))
}
