package battles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_FeedClient_Fixtures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fixtures": [
			{"externalId": "m-1", "name": "Дерби", "team1": "Спартак", "team2": "ЦСКА",
			 "eventDate": "2024-05-01T18:00:00Z", "sport": "football", "league": "РПЛ"},
			{"externalId": "m-2", "name": "Финал", "team1": "A", "team2": "B",
			 "eventDate": "2024-04-01T18:00:00Z", "sport": "hockey", "league": "КХЛ", "result": "2"},
			{"externalId": "m-3", "name": "?", "team1": "C", "team2": "D",
			 "eventDate": "2024-04-01T18:00:00Z", "sport": "hockey", "league": "КХЛ", "result": "x"}
		]}`))
	}))
	defer srv.Close()

	c := NewFeedClient(srv.URL, time.Second)
	fixtures, err := c.Fixtures(context.Background())
	require.NoError(t, err)
	require.Len(t, fixtures, 3)
	require.Equal(t, "Спартак", fixtures[0].Team1)
	require.Equal(t, time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC), fixtures[0].EventDate.UTC())

	results := resultsByExternalID(fixtures)
	require.Equal(t, map[string]Result{"m-2": ResultTeam2}, results)
}

func Test_FeedClient_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewFeedClient(srv.URL, time.Second).Fixtures(context.Background())
	require.Error(t, err)
}
