package httpcall

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_DefaultsToGET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"items":[1,2]}`))
	}))
	defer srv.Close()

	resp, err := NewClient(0).Do(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, map[string]interface{}{"ok": true, "items": []interface{}{1.0, 2.0}}, resp.Data)
}

func TestDo_ServerErrorIsData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal failure", http.StatusInternalServerError)
	}))
	defer srv.Close()

	resp, err := NewClient(0).Do(context.Background(), Request{Method: "get", URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, 500, resp.Status)
	assert.Equal(t, "internal failure\n", resp.Data)
}

func TestDo_SendsJSONBodyAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))

		var body map[string]interface{}
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &body))
		assert.Equal(t, "alice", body["username"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":7}`))
	}))
	defer srv.Close()

	resp, err := NewClient(0).Do(context.Background(), Request{
		Method:  "POST",
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer t"},
		Body:    map[string]interface{}{"username": "alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, map[string]interface{}{"id": 7.0}, resp.Data)
}

func TestDo_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(0).Do(context.Background(), Request{URL: url})
	assert.ErrorContains(t, err, "request failed")
}
