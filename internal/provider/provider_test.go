package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   attempts,
		BaseDelay:     time.Millisecond,
		MaxRetryAfter: 5 * time.Millisecond,
	}
}

func TestStationsClient_FetchMeasurements(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/measurements", r.URL.Path)
		fmt.Fprint(w, `{"measurements":[
			{"id":6260,"name":"Meetstation De Bilt","lat":52.1,"lon":5.18,"temperature":18.4,"region":"Utrecht"},
			{"id":"6235","name":"Meetstation De Kooy","lat":52.92,"lon":4.78,"region":"Noord-Holland"}
		]}`)
	}))
	defer srv.Close()

	client := NewStationsClient(srv.URL, time.Second, fastRetry(1), testLogger())
	stations, err := client.FetchMeasurements(context.Background())
	require.NoError(t, err)
	require.Len(t, stations, 2)

	assert.Equal(t, "6260", stations[0].ID)
	assert.Equal(t, "Meetstation De Bilt", stations[0].Name)
	require.NotNil(t, stations[0].Temperature)
	assert.InDelta(t, 18.4, *stations[0].Temperature, 0.001)

	assert.Equal(t, "6235", stations[1].ID)
	assert.Nil(t, stations[1].Temperature)
	assert.Equal(t, "Noord-Holland", stations[1].Region)
}

func TestStationsClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"measurements":[{"id":1,"name":"A"}]}`)
	}))
	defer srv.Close()

	client := NewStationsClient(srv.URL, time.Second, fastRetry(3), testLogger())
	stations, err := client.FetchMeasurements(context.Background())
	require.NoError(t, err)
	assert.Len(t, stations, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestStationsClient_GivesUpAfterAttemptCeiling(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewStationsClient(srv.URL, time.Second, fastRetry(2), testLogger())
	_, err := client.FetchMeasurements(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())

	var srvErr *ServerError
	assert.ErrorAs(t, err, &srvErr)
}

func TestImagesClient_RandomHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Client-ID test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "clouds", r.URL.Query().Get("query"))
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"id":"abc","urls":{"regular":"https://images.example.com/abc.jpg"}}`)
	}))
	defer srv.Close()

	client := NewImagesClient(srv.URL, "test-key", time.Second, fastRetry(3), testLogger())
	url, err := client.Random(context.Background(), "clouds")
	require.NoError(t, err)
	assert.Equal(t, "https://images.example.com/abc.jpg", url)
	assert.Equal(t, int32(2), calls.Load())
}

func TestImagesClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewImagesClient(srv.URL, "", time.Second, fastRetry(5), testLogger())
	_, err := client.Random(context.Background(), "clouds")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "client errors must not be retried")
}

func TestImagesClient_Download(t *testing.T) {
	payload := []byte("jpeg-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	client := NewImagesClient(srv.URL, "", time.Second, fastRetry(1), testLogger())
	body, err := client.Download(context.Background(), srv.URL+"/abc.jpg")
	require.NoError(t, err)
	assert.Equal(t, payload, body)
}

func TestRetryPolicy_ContextCancellationStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Minute}
	err := policy.Do(ctx, testLogger(), "op", func() error {
		return &ServerError{StatusCode: 500}
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryAfterHeader(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}

	resp.Header.Set("Retry-After", "7")
	assert.Equal(t, 7*time.Second, retryAfter(resp))

	resp.Header.Set("Retry-After", "not-a-number")
	assert.Equal(t, time.Duration(0), retryAfter(resp))

	resp.Header.Del("Retry-After")
	assert.Equal(t, time.Duration(0), retryAfter(resp))
}
