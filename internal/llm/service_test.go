package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_StreamComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"done\"}}\n\n",
			"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n",
		)
	}))
	defer srv.Close()

	svc := NewService().Configure(Claude, WithBaseURL(srv.URL))

	var (
		completed string
		failures  int
	)
	svc.Stream(context.Background(), "claude", "k", conversation, "sys", Handler{
		OnComplete: func(text string) { completed = text },
		OnError:    func(error) { failures++ },
	})

	assert.Equal(t, "done", completed)
	assert.Zero(t, failures)
}

func TestService_StreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewService(WithBaseURL(srv.URL))

	var got error
	completed := false
	svc.Stream(context.Background(), "gemini", "k", conversation, "sys", Handler{
		OnComplete: func(string) { completed = true },
		OnError:    func(err error) { got = err },
	})

	require.Error(t, got)
	assert.ErrorIs(t, got, ErrCompletionFailed)
	assert.False(t, completed)
}

func TestService_UnsupportedProvider(t *testing.T) {
	var got error
	NewService().Stream(context.Background(), "bard", "k", conversation, "sys", Handler{
		OnComplete: func(string) { t.Fatal("unexpected completion") },
		OnError:    func(err error) { got = err },
	})
	assert.ErrorIs(t, got, ErrUnsupportedProvider)
}

func TestReadSSE(t *testing.T) {
	input := strings.Join([]string{
		": keep-alive",
		"event: first",
		"data: line one",
		"data: line two",
		"",
		"data:no-space",
		"",
		"",
		"event: trailing",
		"data: last",
	}, "\n")

	type ev struct{ event, data string }
	var got []ev
	err := readSSE(strings.NewReader(input), func(event, data string) error {
		got = append(got, ev{event, data})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []ev{
		{"first", "line one\nline two"},
		{"", "no-space"},
		{"trailing", "last"},
	}, got)
}
