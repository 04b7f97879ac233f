package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/defi-yield-agent/internal/model"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "openai", want: OpenAI},
		{in: "Claude", want: Claude},
		{in: " gemini ", want: Gemini},
		{in: "deepseek", want: DeepSeek},
		{in: "mistral", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedProvider)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_UnsupportedProviderMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c, err := New(Kind("llama"), "key", WithBaseURL(srv.URL))
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrUnsupportedProvider)

	_, err = NewService(WithBaseURL(srv.URL)).Complete(context.Background(), "llama", "key",
		[]model.Message{{Role: model.RoleUser, Content: "hi"}}, "system")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
	assert.NotErrorIs(t, err, ErrCompletionFailed)
	assert.Zero(t, hits.Load())
}

func TestNew_AllKinds(t *testing.T) {
	for _, k := range Kinds {
		c, err := New(k, "key")
		require.NoError(t, err, k)
		assert.NotNil(t, c, k)
	}
}
