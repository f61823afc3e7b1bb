package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/checkinlog/internal/identity"
	"github.com/hitoshi/checkinlog/internal/model"
	"github.com/hitoshi/checkinlog/internal/tissue"
)

// fakeTissue はチェックインを保持するだけの上流APIのフェイク。
type fakeTissue struct {
	mu       sync.Mutex
	nextID   int64
	checkins []model.Checkin
}

func (f *fakeTissue) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/me", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.User{Name: "alice"})
	})
	mux.HandleFunc("GET /api/v1/users/alice/checkins", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		list := f.checkins
		if len(list) > perPage {
			list = list[:perPage]
		}
		w.Header().Set("X-Total-Count", strconv.Itoa(len(f.checkins)))
		json.NewEncoder(w).Encode(list)
	})
	mux.HandleFunc("POST /api/v1/checkins", func(w http.ResponseWriter, r *http.Request) {
		var p model.CheckinPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.nextID++
		c := model.Checkin{
			ID:          f.nextID,
			CheckedInAt: time.Now(),
			Tags:        p.Tags,
			Note:        p.Note,
			Link:        p.Link,
			IsPrivate:   p.IsPrivate,
			Source:      model.CheckinSourceAPI,
		}
		f.checkins = append([]model.Checkin{c}, f.checkins...)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(c)
	})
	return mux
}

func TestEndToEnd_SubmitThenRefreshShowsNewestCheckin(t *testing.T) {
	fake := &fakeTissue{}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := tissue.NewClient(server.Client(), server.URL+"/api", model.NewSession("token"), nil, nil)
	users := identity.NewCache(client)
	coordinator := NewCoordinator(users, client, DefaultPerPage, nil)

	_, err := coordinator.Create(context.Background(), model.CheckinPayload{
		Note:      "hi",
		Tags:      []string{"x"},
		IsPrivate: false,
	})
	if err != nil {
		t.Fatalf("Create がエラーを返した: %v", err)
	}

	snap := coordinator.Snapshot()
	if snap.Status != StatusReady {
		t.Fatalf("Status = %v, want ready", snap.Status)
	}
	newest := snap.Checkins[0]
	if newest.Note != "hi" {
		t.Errorf("Note = %q, want hi", newest.Note)
	}
	if !slices.Equal(newest.Tags, []string{"x"}) {
		t.Errorf("Tags = %v, want [x]", newest.Tags)
	}
	if newest.IsPrivate {
		t.Error("IsPrivate = true, want false")
	}
	if snap.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1", snap.TotalCount)
	}
}
