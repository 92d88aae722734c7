package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/trahn-signals/internal/apperr"
)

func quietRetry(attempts int, base, max time.Duration) RetryConfig {
	l, _ := test.NewNullLogger()
	return RetryConfig{MaxAttempts: attempts, BaseDelay: base, MaxDelay: max, Log: l}
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := Do(context.Background(), client, quietRetry(3, 100*time.Millisecond, time.Second), func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDo_RetriesOnServerError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := Do(context.Background(), client, quietRetry(3, 20*time.Millisecond, 100*time.Millisecond), func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDo_AllAttemptsFail(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream error"))
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	_, err := Do(context.Background(), client, quietRetry(3, 20*time.Millisecond, 100*time.Millisecond), func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.Unavailable)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDo_NoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := Do(context.Background(), client, quietRetry(3, 20*time.Millisecond, 100*time.Millisecond), func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	_, err := Do(ctx, client, quietRetry(10, 500*time.Millisecond, 2*time.Second), func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.Timeout)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		status int
		want   apperr.Kind
	}{
		{http.StatusTooManyRequests, apperr.KindRateLimit},
		{http.StatusNotFound, apperr.KindNotFound},
		{http.StatusGatewayTimeout, apperr.KindTimeout},
		{http.StatusInternalServerError, apperr.KindUnavailable},
		{http.StatusForbidden, apperr.KindUnknown},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
		}))
		resp, err := http.Get(srv.URL)
		require.NoError(t, err)
		got := Classify("test", resp, nil)
		resp.Body.Close()
		srv.Close()
		assert.Equal(t, c.want, apperr.KindOf(got), "status %d", c.status)
	}
}

func TestClassify_Success(t *testing.T) {
	assert.NoError(t, Classify("test", &http.Response{StatusCode: http.StatusOK}, nil))
}

func TestClassify_ClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 20 * time.Millisecond}
	resp, err := client.Get(srv.URL)
	if resp != nil {
		resp.Body.Close()
	}
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(Classify("test", resp, err)))
}

func TestClassify_CanceledIsNotRetryable(t *testing.T) {
	err := Classify("test", nil, context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, apperr.Retryable(err))
	assert.Equal(t, apperr.KindUnknown, apperr.KindOf(err))
}
