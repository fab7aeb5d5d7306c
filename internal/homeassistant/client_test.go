package homeassistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewClient(ts.URL, "test-token", nil)
}

func TestClient_Ping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/" {
			t.Errorf("path = %q, want /api/", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(APIStatus{Message: "API running."})
	})

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}

func TestClient_PingUnexpectedStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(APIStatus{Message: "starting up"})
	})

	if err := c.Ping(context.Background()); err == nil {
		t.Error("Ping() should error on unexpected API message")
	}
}

func TestClient_GetStates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/states" {
			t.Errorf("path = %q, want /api/states", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]State{
			{EntityID: "light.kitchen", State: "on",
				Attributes: map[string]any{"friendly_name": "Kitchen Light"}},
			{EntityID: "sensor.temp", State: "21.5"},
		})
	})

	states, err := c.GetStates(context.Background())
	if err != nil {
		t.Fatalf("GetStates() error: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("len(states) = %d, want 2", len(states))
	}
	if states[0].FriendlyName() != "Kitchen Light" {
		t.Errorf("FriendlyName() = %q", states[0].FriendlyName())
	}
}

func TestClient_GetStatesAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	if _, err := c.GetStates(context.Background()); err == nil {
		t.Error("GetStates() should surface non-200 responses")
	}
}

func TestClient_CallService(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.URL.Path != "/api/services/light/turn_on" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte("[]"))
	})

	err := c.CallService(context.Background(), "light", "turn_on",
		map[string]any{"entity_id": "light.kitchen"})
	if err != nil {
		t.Fatalf("CallService() error: %v", err)
	}
	if gotBody["entity_id"] != "light.kitchen" {
		t.Errorf("request body = %v", gotBody)
	}
}

func TestClient_GetAreas(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Area{
			{AreaID: "kitchen", Name: "Kitchen"},
			{AreaID: "office", Name: "Office", Aliases: []string{"study"}},
		})
	})

	areas, err := c.GetAreas(context.Background())
	if err != nil {
		t.Fatalf("GetAreas() error: %v", err)
	}
	if len(areas) != 2 || areas[1].Aliases[0] != "study" {
		t.Errorf("areas = %+v", areas)
	}
}
