package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, status int, content string, seen *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCompleteRelaysJSONObject(t *testing.T) {
	var seen chatRequest
	srv := completionServer(t, http.StatusOK, ` {"summary":"ok","subtasks":[]} `, &seen)
	client := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "test-key", Model: "default-model"})

	out, err := client.Complete(context.Background(), TaskBreakdownInput{TaskTitle: "Ship login"}.Request())
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"ok","subtasks":[]}`, string(out))

	assert.Equal(t, "default-model", seen.Model)
	assert.Equal(t, "json_object", seen.ResponseFormat["type"])
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, "system", seen.Messages[0].Role)
	assert.Contains(t, seen.Messages[1].Content, "Ship login")
}

func TestCompleteModelOverride(t *testing.T) {
	var seen chatRequest
	srv := completionServer(t, http.StatusOK, `{}`, &seen)
	client := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "default-model"})

	req := MeetingSummaryInput{Transcript: "hello"}.Request()
	req.Model = "other-model"
	_, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "other-model", seen.Model)
}

func TestCompleteFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
	}{
		{"provider error status", http.StatusBadGateway, `{}`},
		{"prose completion", http.StatusOK, "Here is your summary"},
		{"array completion", http.StatusOK, `[1,2]`},
		{"truncated object", http.StatusOK, `{"summary":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := completionServer(t, tt.status, tt.content, nil)
			client := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
			_, err := client.Complete(context.Background(), Request{Feature: "test"})
			assert.ErrorIs(t, err, ErrProviderFailure)
		})
	}
}

func TestCompleteTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	_, err := client.Complete(context.Background(), Request{Feature: "test"})
	assert.ErrorIs(t, err, ErrProviderFailure)
}

func TestFeatureRequiredFields(t *testing.T) {
	tests := []struct {
		feature Feature
		missing string
	}{
		{TaskBreakdownInput{}, "taskTitle"},
		{TaskBreakdownInput{TaskTitle: "x"}, ""},
		{MeetingSummaryInput{Title: "standup"}, "transcript"},
		{PerformanceReviewInput{Notes: "solid"}, "employeeName"},
		{PerformanceReviewInput{EmployeeName: "Ada"}, "notes"},
		{PerformanceReviewInput{EmployeeName: "Ada", Notes: "solid"}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.missing, tt.feature.Missing(), tt.feature.Name())
	}
}

func TestFeatureRequestsCarryFeatureName(t *testing.T) {
	for _, f := range []Feature{
		TaskBreakdownInput{TaskTitle: "t"},
		MeetingSummaryInput{Transcript: "t"},
		PerformanceReviewInput{EmployeeName: "e", Notes: "n", Period: "Q3"},
	} {
		req := f.Request()
		assert.Equal(t, f.Name(), req.Feature)
		assert.Contains(t, req.System, "JSON object")
		assert.Contains(t, f.FailureMessage(), "Failed to generate")
	}
}
