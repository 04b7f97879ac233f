package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const poolsBody = `{"status":"success","data":[
	{"chain":"Ethereum","project":"lido","symbol":"STETH","tvlUsd":25000000000,"apy":3.1,"apyBase":3.1,"pool":"p-1","ilRisk":"no","exposure":"single"},
	{"chain":"Arbitrum","project":"gmx","symbol":"GLP","tvlUsd":"400000000","apy":null,"pool":"p-2"}
]}`

func fastRetryClient() *http.Client {
	rc := newRetryClient()
	rc.RetryWaitMin = time.Millisecond
	rc.RetryWaitMax = 5 * time.Millisecond
	return StandardClient(rc)
}

func TestDefiLlamaClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pools", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(poolsBody))
	}))
	defer srv.Close()

	client := NewDefiLlamaClient(srv.URL+"/", time.Second)
	pools, err := client.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 2)

	assert.Equal(t, "lido", pools[0].Project)
	assert.Equal(t, "p-1", pools[0].Pool)
	assert.Equal(t, 400000000.0, pools[1].TVLUSD.Value())
	assert.False(t, pools[1].APY.Valid)
}

func TestDefiLlamaClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusNotFound)
			},
		},
		{
			name: "server error after retries",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"data": [`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := NewDefiLlamaClient(srv.URL, time.Second).WithHTTPClient(fastRetryClient())
			pools, err := client.Fetch(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFetchFailed)
			assert.Nil(t, pools)
		})
	}
}

func TestDefiLlamaClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(poolsBody))
	}))
	defer srv.Close()

	client := NewDefiLlamaClient(srv.URL, time.Second).WithHTTPClient(fastRetryClient())
	pools, err := client.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, pools, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDefiLlamaClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewDefiLlamaClient(url, time.Second).WithHTTPClient(&http.Client{Timeout: time.Second})
	_, err := client.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestDefiLlamaClient_EmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	pools, err := NewDefiLlamaClient(srv.URL, time.Second).Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pools)
}
