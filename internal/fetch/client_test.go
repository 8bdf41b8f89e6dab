package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "pagewatch/pkg/logx"
)

func TestClientGet(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("hello " + r.Header.Get("User-Agent")))
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		case "/chunked":
			for i := 0; i < 8; i++ {
				_, _ = w.Write([]byte(strings.Repeat("y", 16)))
				w.(http.Flusher).Flush()
			}
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte("late"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewWithHTTP(Config{UserAgent: "ua-test"}, srv.Client(), logx.Nop())
	defer c.Close()
	ctx := context.Background()

	body, err := c.Get(ctx, srv.URL+"/ok", time.Second, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello ua-test", string(body))

	_, err = c.Get(ctx, srv.URL+"/missing", time.Second, 0)
	require.ErrorIs(t, err, ErrStatus)

	_, err = c.Get(ctx, srv.URL+"/big", time.Second, 32)
	require.ErrorIs(t, err, ErrTooLarge)

	_, err = c.Get(ctx, srv.URL+"/chunked", time.Second, 100)
	require.ErrorIs(t, err, ErrTooLarge)

	body, err = c.Get(ctx, srv.URL+"/big", time.Second, 64)
	require.NoError(t, err)
	assert.Len(t, body, 64)

	_, err = c.Get(ctx, srv.URL+"/slow", 20*time.Millisecond, 0)
	require.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()
	c := New(Config{}, logx.Logger{})
	assert.Equal(t, 30*time.Second, c.PageTimeout())
	assert.Equal(t, 60*time.Second, c.ResourceTimeout())
}
