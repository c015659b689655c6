package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("hello"))
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("é", 10)))
		default:
			w.WriteHeader(stdhttp.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := NewFetcher(0, 5)
	ctx := context.Background()

	out, err := f.Fetch(ctx, FetchRequest{URL: srv.URL + "/ok"})
	require.NoError(t, err)
	assert.Equal(t, FetchResponse{Status: 200, Body: "hello"}, out)

	out, err = f.Fetch(ctx, FetchRequest{URL: srv.URL + "/big"})
	require.NoError(t, err)
	assert.True(t, out.Truncated)
	assert.Equal(t, "éé", out.Body)

	out, err = f.Fetch(ctx, FetchRequest{URL: srv.URL + "/missing"})
	require.NoError(t, err)
	assert.Equal(t, 404, out.Status)
}

func TestFetchRejectsOtherSchemes(t *testing.T) {
	f := NewFetcher(0, 0)
	_, err := f.Fetch(context.Background(), FetchRequest{URL: "file:///etc/passwd"})
	assert.ErrorIs(t, err, errScheme)
}

func TestFetchTool(t *testing.T) {
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		_, _ = w.Write([]byte("page"))
	}))
	defer srv.Close()

	tool := NewFetchTool(NewFetcher(0, 0))
	assert.Equal(t, FetchName, tool.Name())

	in, _ := json.Marshal(FetchRequest{URL: srv.URL})
	raw, err := tool.Execute(context.Background(), string(in))
	require.NoError(t, err)

	var out FetchResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	assert.Equal(t, "page", out.Body)
}
