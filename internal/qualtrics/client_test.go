package qualtrics_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/THIS-Institute/thiscovery-surveys/internal/circuitbreaker"
	"github.com/THIS-Institute/thiscovery-surveys/internal/config"
	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
	"github.com/THIS-Institute/thiscovery-surveys/internal/qualtrics"
)

var fixedNow = time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)

type observed struct {
	operation string
	status    int
}

type recordingObserver struct {
	calls []observed
}

func (r *recordingObserver) ObserveRequest(_, operation string, statusCode int, _ time.Duration) {
	r.calls = append(r.calls, observed{operation: operation, status: statusCode})
}

func newTestClient(t *testing.T, handler http.Handler, opts ...qualtrics.Option) *qualtrics.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return clientFor(srv.URL, opts...)
}

func clientFor(baseURL string, opts ...qualtrics.Option) *qualtrics.Client {
	account := config.QualtricsAccount{Name: "cambridge", BaseURL: baseURL, APIToken: "secret-token"}
	cfg := config.QualtricsConfig{
		Timeout:            5 * time.Second,
		RequestsPerSecond:  1000,
		BreakerThreshold:   2,
		BreakerOpenTimeout: time.Minute,
		LinkExpiry:         24 * time.Hour,
	}

	opts = append([]qualtrics.Option{qualtrics.WithClock(func() time.Time { return fixedNow })}, opts...)
	return qualtrics.New(account, cfg, logger.NewNop(), opts...)
}

func writeResult(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(map[string]any{
		"result": result,
		"meta":   map[string]any{"httpStatus": "200 - OK", "requestId": "req-1"},
	})
	require.NoError(t, err)
}

func TestClient_CreateIndividualLinks(t *testing.T) {
	var body map[string]string

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/distributions", r.URL.Path)
		assert.Equal(t, "secret-token", r.Header.Get("X-API-TOKEN"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		writeResult(t, w, map[string]string{"id": "EMD_123"})
	}))

	id, err := c.CreateIndividualLinks(context.Background(), "SV_abc", "CG_list")
	require.NoError(t, err)
	assert.Equal(t, "EMD_123", id)

	assert.Equal(t, "SV_abc", body["surveyId"])
	assert.Equal(t, "Individual", body["linkType"])
	assert.Equal(t, "CreateDistribution", body["action"])
	assert.Equal(t, "CG_list", body["mailingListId"])
	assert.Equal(t, "2026-10-02 09:30:00", body["expirationDate"])
}

func TestClient_ListDistributionLinks_FollowsNextPage(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/distributions/EMD_123/links", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SV_abc", r.URL.Query().Get("surveyId"))

		if r.URL.Query().Get("skipToken") == "" {
			writeResult(t, w, map[string]any{
				"elements": []map[string]any{
					{"link": "https://survey.example.com/jfe/form/SV_abc?Q_DL=1", "linkExpiration": "2026-12-01T00:00:00Z", "contactId": "CID_1"},
					{"link": nil, "linkExpiration": nil, "contactId": "CID_unsubscribed"},
				},
				"nextPage": srv.URL + "/distributions/EMD_123/links?surveyId=SV_abc&skipToken=page2",
			})
			return
		}
		writeResult(t, w, map[string]any{
			"elements": []map[string]any{
				{"link": "https://survey.example.com/jfe/form/SV_abc?Q_DL=2", "linkExpiration": "2026-11-30 12:00:00", "contactId": "CID_2", "email": "p2@example.com"},
			},
			"nextPage": nil,
		})
	})

	srv = httptest.NewServer(mux)
	defer srv.Close()

	obs := &recordingObserver{}
	c := clientFor(srv.URL, qualtrics.WithObserver(obs))

	links, err := c.ListDistributionLinks(context.Background(), "EMD_123", "SV_abc")
	require.NoError(t, err)
	require.Len(t, links, 2)

	assert.Equal(t, "https://survey.example.com/jfe/form/SV_abc?Q_DL=1", links[0].URL)
	assert.True(t, links[0].Expires.Equal(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, map[string]any{"contactId": "CID_1"}, links[0].Details)

	assert.True(t, links[1].Expires.Equal(time.Date(2026, 11, 30, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "p2@example.com", links[1].Details["email"])
	assert.NotContains(t, links[1].Details, "link")

	require.Len(t, obs.calls, 2)
	assert.Equal(t, observed{operation: "list_distribution_links", status: http.StatusOK}, obs.calls[1])
}

func TestClient_ListDistributionLinks_MalformedExpiration(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeResult(t, w, map[string]any{
			"elements": []map[string]any{{"link": "https://survey.example.com/1", "linkExpiration": "next tuesday"}},
		})
	}))

	_, err := c.ListDistributionLinks(context.Background(), "EMD_1", "SV_abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, qualtrics.ErrMalformedLink))
}

func TestClient_HTTPErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantRetryable bool
	}{
		{name: "bad request", status: http.StatusBadRequest, wantRetryable: false},
		{name: "not found", status: http.StatusNotFound, wantRetryable: false},
		{name: "rate limited", status: http.StatusTooManyRequests, wantRetryable: true},
		{name: "server error", status: http.StatusInternalServerError, wantRetryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", "7")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"meta":{"httpStatus":"error","error":{"errorMessage":"nope","errorCode":"Q_1"}}}`))
			}))

			_, err := c.CreateIndividualLinks(context.Background(), "SV_abc", "CG_list")
			require.Error(t, err)

			var herr *qualtrics.HTTPError
			require.True(t, errors.As(err, &herr))
			assert.Equal(t, tt.status, herr.StatusCode)
			assert.Equal(t, "nope", herr.Message)
			assert.Equal(t, "Q_1", herr.Code)
			assert.Equal(t, 7*time.Second, herr.RetryAfter)
			assert.Equal(t, tt.wantRetryable, herr.Retryable())
		})
	}
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	ctx := context.Background()

	for range 2 {
		_, err := c.CreateIndividualLinks(ctx, "SV_abc", "CG_list")
		require.Error(t, err)
	}

	_, err := c.CreateIndividualLinks(ctx, "SV_abc", "CG_list")
	assert.True(t, errors.Is(err, circuitbreaker.ErrCircuitOpen))
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_ClientErrorsDoNotOpenBreaker(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	ctx := context.Background()

	for range 4 {
		_, err := c.CreateIndividualLinks(ctx, "SV_abc", "CG_list")
		require.Error(t, err)
		assert.False(t, errors.Is(err, circuitbreaker.ErrCircuitOpen))
	}
	assert.Equal(t, int32(4), hits.Load())
}

func TestClient_ListAndDeleteDistributions(t *testing.T) {
	var deleted string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /distributions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SV_abc", r.URL.Query().Get("surveyId"))
		writeResult(t, w, map[string]any{
			"elements": []map[string]any{
				{"id": "EMD_1", "requestType": "GeneratedInvite", "createdDate": "2026-09-01T00:00:00Z", "modifiedDate": "2026-09-01T00:00:00Z"},
				{"id": "EMD_2", "requestType": "GeneratedInvite", "createdDate": "2026-09-02T00:00:00Z", "modifiedDate": "2026-09-02T00:00:00Z"},
			},
		})
	})
	mux.HandleFunc("DELETE /distributions/{id}", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.PathValue("id")
		writeResult(t, w, map[string]any{})
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	dists, err := c.ListDistributions(ctx, "SV_abc")
	require.NoError(t, err)
	require.Len(t, dists, 2)
	assert.Equal(t, "EMD_1", dists[0].ID)
	assert.Equal(t, "SV_abc", dists[1].SurveyID)

	require.NoError(t, c.DeleteDistribution(ctx, "EMD_2"))
	assert.Equal(t, "EMD_2", deleted)
}
