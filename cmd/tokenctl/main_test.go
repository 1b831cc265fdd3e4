package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClaims(t *testing.T) {
	got, err := parseClaims([]string{"step=upload", "n=3", `tags=["a","b"]`})
	require.NoError(t, err)
	assert.Equal(t, "upload", got["step"])
	assert.Equal(t, float64(3), got["n"])
	assert.Equal(t, []any{"a", "b"}, got["tags"])

	_, err = parseClaims([]string{"=x"})
	assert.Error(t, err)
	_, err = parseClaims([]string{"novalue"})
	assert.Error(t, err)

	got, err = parseClaims(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIssueCommandPostsProcessID(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tokens", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"token":"abc","kid":"k1"}`))
	}))
	defer srv.Close()

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--url", srv.URL, "issue", "--process-id", "proc-1", "--validity", "120", "--claim", "step=upload"})
	require.NoError(t, root.Execute())

	assert.Equal(t, "proc-1", got["processId"])
	assert.Equal(t, float64(120), got["validitySeconds"])
	assert.Equal(t, map[string]any{"step": "upload"}, got["claims"])
}

func TestValidateCommandFailsOn401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"valid":false,"code":"JWT_MALFORMED_TOKEN"}`))
	}))
	defer srv.Close()

	root := newRootCmd()
	root.SetArgs([]string{"--url", srv.URL, "validate", "--token", "x"})
	assert.Error(t, root.Execute())
}
