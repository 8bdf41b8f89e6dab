package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagewatch/internal/detector"
	"pagewatch/internal/extract"
)

const checkPage = `<html><body><img src="/a.jpg"><a href="/notes.txt">notes</a></body></html>`

func TestCheckCommandJSON(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(checkPage)) })
	mux.HandleFunc("/a.jpg", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("JPEG")) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"check", "--json", srv.URL + "/"})
	require.NoError(t, rootCmd.Execute())

	var rep checkReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, detector.Fingerprint(checkPage), rep.Fingerprint)
	require.Len(t, rep.Resources, 1)
	assert.Equal(t, srv.URL+"/a.jpg", rep.Resources[0].URL)
	assert.Equal(t, "image", rep.Resources[0].Kind)
	assert.Equal(t, extract.HashBytes([]byte("JPEG")), rep.Resources[0].Hash)
}

func TestCheckCommandRejectsBadURL(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"check", "ftp://example.com/x"})
	assert.Error(t, rootCmd.Execute())
}
