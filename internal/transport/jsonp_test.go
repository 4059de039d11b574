package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapJSONP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		script  string
		want    string
		wantErr bool
	}{
		{"plain", `cb({"a":1});`, `{"a":1}`, false},
		{"no semicolon", `cb([1,2])`, `[1,2]`, false},
		{"whitespace", "  cb( {\"a\":1} ) ;\n", `{"a":1}`, false},
		{"comment prefix", `/**/cb("x");`, `"x"`, false},
		{"other callback", `other({});`, "", true},
		{"unterminated", `cb({}`, "", true},
		{"invalid json", `cb({a:1});`, "", true},
		{"html error page", `<html>Error</html>`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := unwrapJSONP([]byte(tt.script), "cb")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestBuildURL_AppendsCallback(t *testing.T) {
	t.Parallel()

	u, err := buildURL("https://script.example.com/exec?key=abc", NewRequest("get", "sheet", "Products", "id", "7"), "cb")
	require.NoError(t, err)

	parsed, err := url.Parse(u)
	require.NoError(t, err)

	q := parsed.Query()
	assert.Equal(t, "abc", q.Get("key"))
	assert.Equal(t, "get", q.Get("action"))
	assert.Equal(t, "Products", q.Get("sheet"))
	assert.Equal(t, "7", q.Get("id"))
	assert.Equal(t, "cb", q.Get("callback"))
}

func TestValidateCallback(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateCallback("storixCallback"))
	assert.NoError(t, ValidateCallback("app.sync_cb$"))
	assert.Error(t, ValidateCallback(""))
	assert.Error(t, ValidateCallback("alert(1)//"))
	assert.Error(t, ValidateCallback("1abc"))
}

func TestHTTPFetcher_RoundTrip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "storix-test", r.UserAgent())

		cb := r.URL.Query().Get("callback")
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte(cb + `({"action":"` + r.URL.Query().Get("action") + `"});`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, srv.Client(), "storix-test")
	q := newTestQueue(t, f, time.Second)

	payload, err := q.Send(context.Background(), NewRequest("syncChanges", "since", "2024-01-01T00:00:00Z"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"syncChanges"}`, string(payload))
}

func TestHTTPFetcher_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	q := newTestQueue(t, NewHTTPFetcher(srv.URL, srv.Client(), ""), time.Second)

	_, err := q.Send(context.Background(), NewRequest("syncAll"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)

	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
	assert.Equal(t, "syncAll", te.Action)
}

func TestHTTPFetcher_ReplyOverLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Query().Get("callback") + `({"rows":"0123456789"});`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, srv.Client(), "")
	f.maxBytes = 16

	q := newTestQueue(t, f, time.Second)

	_, err := q.Send(context.Background(), NewRequest("syncAll"))
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, errReplyTooLarge)
	assert.NotContains(t, err.Error(), "not terminated")
}
