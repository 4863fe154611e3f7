package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/gitgame/internal/chunk"
	"github.com/Seednode/gitgame/internal/file"
	"github.com/Seednode/gitgame/internal/github"
	"github.com/Seednode/gitgame/internal/session"
)

// fakeProvider knows a fixed set of users, none of whom own repositories.
type fakeProvider struct {
	users map[string]bool
	err   error
}

func (p *fakeProvider) User(_ context.Context, login string) (*github.User, error) {
	if p.err != nil {
		return nil, p.err
	}
	if !p.users[login] {
		return nil, &github.APIError{Endpoint: "user", StatusCode: http.StatusNotFound, Body: "Not Found"}
	}
	return &github.User{Login: login}, nil
}

func (p *fakeProvider) Repositories(context.Context, string, int, int) ([]github.Repository, bool, error) {
	return nil, false, nil
}

func (p *fakeProvider) Tree(context.Context, string, string) ([]github.TreeEntry, error) {
	return nil, nil
}

func (p *fakeProvider) DownloadURL(fullName, branch, filePath string) string {
	return fullName + "/" + branch + "/" + filePath
}

func (p *fakeProvider) Download(context.Context, string) (string, error) {
	return "", nil
}

type testServer struct {
	cfg      *Config
	provider *fakeProvider
	reg      *Registry
	srv      *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &Config{}
	provider := &fakeProvider{users: map[string]bool{"octocat": true, "alice": true}}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := newRegistry(ctx, cfg, func() session.Options {
		rng := rand.New(rand.NewPCG(1, 2))

		return session.Options{
			Sources: func(author string) file.Source {
				return file.NewGithubSource(provider, file.SizeRule{}, author, file.SourceOptions{Rand: rng})
			},
			Fetcher: chunk.NewWindowFetcher(chunk.DefaultStartingSize, chunk.DefaultPeekSize, chunk.DefaultPeeks, nil),
			Rand:    rng,
		}
	})

	errs := make(chan error, 64)

	mux := httprouter.New()
	registerGitGame(cfg, mux, reg, provider, errs)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testServer{cfg: cfg, provider: provider, reg: reg, srv: srv}
}

func (ts *testServer) createSession(t *testing.T, authors ...string) (int, []byte) {
	t.Helper()

	body, err := json.Marshal(createRequest{Authors: authors})
	require.NoError(t, err)

	resp, err := http.Post(ts.srv.URL+"/session", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, buf.Bytes()
}

func (ts *testServer) dial(t *testing.T, id, username string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/session/" + id + "/ws/" + username

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readType(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))

	return msg
}

func closeCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}

		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return closeErr.Code
		}

		t.Fatalf("connection ended without a close frame: %v", err)
	}
}

func TestNormalizeAuthors(t *testing.T) {
	assert.Equal(t,
		[]string{"octocat", "alice"},
		normalizeAuthors([]string{" octocat ", "", "alice", "Octocat"}),
	)
}

func TestInvalidAuthors(t *testing.T) {
	provider := &fakeProvider{users: map[string]bool{"octocat": true}}

	invalid, err := invalidAuthors(context.Background(), provider, []string{"octocat", "ghost", "nobody"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost", "nobody"}, invalid)

	provider.err = &github.APIError{Endpoint: "user", StatusCode: http.StatusInternalServerError}

	_, err = invalidAuthors(context.Background(), provider, []string{"octocat"})
	assert.Error(t, err)
}

func TestCreateSessionRejectsUnknownAuthors(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.createSession(t, "octocat", "ghost")
	assert.Equal(t, http.StatusBadRequest, status)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, []string{"ghost"}, resp.InvalidAuthors)
	assert.Zero(t, ts.reg.Len())
}

func TestCreateAndDescribeSession(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.createSession(t, "octocat")
	require.Equal(t, http.StatusCreated, status)

	var created createResponse
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Len(t, created.ID, 8)

	resp, err := http.Get(ts.srv.URL + "/session/" + created.ID)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info session.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, created.ID, info.ID)
	assert.Equal(t, session.NewlyCreated.String(), info.State)
	assert.Equal(t, []string{"octocat"}, info.Authors)

	missing, err := http.Get(ts.srv.URL + "/session/nope")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	qr, err := http.Get(ts.srv.URL + "/session/" + created.ID + "/qr")
	require.NoError(t, err)
	qr.Body.Close()
	assert.Equal(t, http.StatusOK, qr.StatusCode)
	assert.Equal(t, "image/png", qr.Header.Get("Content-Type"))
}

func TestSocketLifecycle(t *testing.T) {
	ts := newTestServer(t)

	s, err := ts.reg.Create(context.Background(), nil)
	require.NoError(t, err)

	first := ts.dial(t, s.ID(), "alice")

	lobby := readType(t, first)
	assert.Equal(t, session.TypeLobby, lobby["type"])
	assert.Equal(t, "alice", lobby["host"])

	alert := readType(t, first)
	assert.Equal(t, session.TypeAlert, alert["type"])

	second := ts.dial(t, s.ID(), "alice")
	assert.Equal(t, session.CloseSwitchingConnections, closeCode(t, first))

	lobby = readType(t, second)
	assert.Equal(t, session.TypeLobby, lobby["type"])
	assert.Equal(t, []string{"alice"}, s.Info().Players)

	require.NoError(t, second.WriteJSON(session.ClientMessage{Type: session.EventStartGame}))

	// alice owns no repositories, so there is nothing to play.
	for {
		msg := readType(t, second)
		if msg["type"] == session.TypeOutOfChunks {
			break
		}
	}

	second.Close()

	assert.Eventually(t, func() bool {
		_, ok := ts.reg.Get(s.ID())
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSocketUnknownSession(t *testing.T) {
	ts := newTestServer(t)

	conn := ts.dial(t, "missing", "alice")
	assert.Equal(t, session.CloseSessionNotFound, closeCode(t, conn))
}

func TestReapIdleSessions(t *testing.T) {
	ts := newTestServer(t)

	_, err := ts.reg.Create(context.Background(), []string{"octocat"})
	require.NoError(t, err)
	require.Equal(t, 1, ts.reg.Len())

	assert.Zero(t, ts.reg.reap(time.Now().Add(-time.Hour)))
	assert.Equal(t, 1, ts.reg.reap(time.Now().Add(time.Hour)))
	assert.Zero(t, ts.reg.Len())
}
