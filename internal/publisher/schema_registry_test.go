package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureSchemaReturnsExistingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/subjects/workout_created-value/versions/latest", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":7,"version":3}`))
	}))
	defer server.Close()

	id, err := NewSchemaRegistryClient(server.URL).EnsureSchema(context.Background(), "workout_created-value", workoutCreatedSchema)
	require.NoError(t, err)
	require.Equal(t, 7, id)
}

func TestEnsureSchemaRegistersMissingSubject(t *testing.T) {
	var registered map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPost:
			require.Equal(t, "/subjects/workout_created-value/versions", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&registered))
			_, _ = w.Write([]byte(`{"id":11}`))
		}
	}))
	defer server.Close()

	id, err := NewSchemaRegistryClient(server.URL).EnsureSchema(context.Background(), "workout_created-value", workoutCreatedSchema)
	require.NoError(t, err)
	require.Equal(t, 11, id)
	require.Equal(t, "JSON", registered["schemaType"])
}

func TestEnsureSchemaSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	_, err := NewSchemaRegistryClient(server.URL).EnsureSchema(context.Background(), "s", workoutCreatedSchema)
	require.ErrorContains(t, err, "boom")
}
