package functions_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/chicha/internal/adapters/functions"
	"github.com/PabloGalante/chicha/internal/domain"
)

func newServer(t *testing.T, handler http.HandlerFunc) *functions.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return functions.NewClient(srv.URL+"/functions/v1/", "anon-key",
		functions.WithHTTPClient(srv.Client()),
		functions.WithRetry(3, 0),
	)
}

func TestWeatherClient(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/functions/v1/get-weather", r.URL.Path)
		require.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))
		require.Equal(t, "anon-key", r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Pune", body["location"])

		_, _ = w.Write([]byte(`{"message":"Weather in Pune, India","coordinates":{"lat":18.52,"lon":73.86}}`))
	})

	report, err := functions.NewWeather(c).CurrentWeather(context.Background(), "Pune")
	require.NoError(t, err)
	require.Equal(t, "Weather in Pune, India", report.Message)
	require.Equal(t, domain.Coordinates{Lat: 18.52, Lon: 73.86}, report.Coordinates)
}

func TestSearchClient(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"title":"Go","url":"https://go.dev","snippet":"The Go language"}]}`))
	})

	results, err := functions.NewSearcher(c).Search(context.Background(), "golang")
	require.NoError(t, err)
	require.Equal(t, []domain.SearchResult{{Title: "Go", URL: "https://go.dev", Snippet: "The Go language"}}, results)
}

func TestErrorFieldFailsTheCall(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Query is required"}`))
	})

	_, err := functions.NewSearcher(c).Search(context.Background(), "")
	var se *functions.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusBadRequest, se.StatusCode)
	require.Equal(t, "Query is required", se.Message)
}

func TestErrorFieldOnSuccessStatus(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"GEMINI_API_KEY is not set"}`))
	})

	_, err := functions.NewChatLLM(c).GenerateReply(context.Background(), domain.ChatRequest{Prompt: "hi"})
	require.ErrorContains(t, err, "GEMINI_API_KEY is not set")
}

func TestTranslateRetriesOnUnavailable(t *testing.T) {
	var calls atomic.Int32
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"Translation service error (503)"}`))
			return
		}
		_, _ = w.Write([]byte(`{"translatedText":"नमस्ते"}`))
	})

	got, err := functions.NewTranslator(c).Translate(context.Background(), "hello", "hi")
	require.NoError(t, err)
	require.Equal(t, "नमस्ते", got)
	require.Equal(t, int32(3), calls.Load())
}

func TestRetriesAreBounded(t *testing.T) {
	var calls atomic.Int32
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := functions.NewImageGenerator(c).GenerateImage(context.Background(), "a fox")
	require.ErrorContains(t, err, "max retries exceeded")
	require.Equal(t, int32(3), calls.Load())
}

func TestServerErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom","type":"generation_error"}`))
	})

	_, err := functions.NewImageGenerator(c).GenerateImage(context.Background(), "a fox")
	require.ErrorContains(t, err, "boom")
	require.Equal(t, int32(1), calls.Load())
}

func TestChatLLMSendsImagesAndFallsBackToExtractedSources(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Prompt    string   `json:"prompt"`
			ImageURLs []string `json:"imageUrls"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "what is this?", body.Prompt)
		require.Equal(t, []string{"https://cdn.test/a.png"}, body.ImageURLs)

		_, _ = w.Write([]byte(`{"response":"A cat. More at https://en.wikipedia.org/wiki/Cat"}`))
	})

	reply, err := functions.NewChatLLM(c).GenerateReply(context.Background(), domain.ChatRequest{
		Prompt:    "what is this?",
		ImageURLs: []string{"https://cdn.test/a.png"},
	})
	require.NoError(t, err)
	require.Equal(t, "A cat. More at https://en.wikipedia.org/wiki/Cat", reply.Text)
	require.Len(t, reply.Sources, 1)
	require.Equal(t, "en.wikipedia.org", reply.Sources[0].Domain)
}

func TestRateLimitRespectsContext(t *testing.T) {
	limited := functions.NewClient("http://127.0.0.1:0", "", functions.WithRateLimit(0.001, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := limited.Invoke(ctx, functions.FnImage, map[string]string{"prompt": "x"}, nil)
	require.Error(t, err)
}
