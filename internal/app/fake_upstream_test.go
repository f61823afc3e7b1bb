package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/checkinlog/internal/model"
)

// fakeAPI はチェックインAPIのインメモリ実装。checkinsは新しい順に保持する。
type fakeAPI struct {
	mu       sync.Mutex
	user     model.User
	checkins []model.Checkin
	stats    []model.TagStats
	cards    map[string]model.LinkCard
	nextID   int64

	cardRequests []string
	authz        []string
	created      []model.CheckinPayload
	updated      []model.CheckinPayload
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()

	f := &fakeAPI{
		user: model.User{
			Name:        "alice",
			DisplayName: "Alice",
			CheckinSummary: &model.CheckinSummary{
				TotalCheckins:         3,
				CurrentSessionElapsed: 3600,
			},
		},
		cards:  make(map[string]model.LinkCard),
		nextID: 1,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/me", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, f.user)
	})
	mux.HandleFunc("GET /api/v1/users/{name}/checkins", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		f.mu.Lock()
		defer f.mu.Unlock()
		list := f.checkins
		if perPage > 0 && len(list) > perPage {
			list = list[:perPage]
		}
		w.Header().Set("X-Total-Count", strconv.Itoa(len(f.checkins)))
		writeJSON(w, http.StatusOK, list)
	})
	mux.HandleFunc("GET /api/v1/users/{name}/stats/tags", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, f.stats)
	})
	mux.HandleFunc("GET /api/checkin/card", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		u := r.URL.Query().Get("url")
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cardRequests = append(f.cardRequests, u)
		card, ok := f.cards[u]
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{})
			return
		}
		writeJSON(w, http.StatusOK, card)
	})
	mux.HandleFunc("POST /api/v1/checkins", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var p model.CheckinPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "error": map[string]any{"message": "bad json"}})
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.created = append(f.created, p)
		c := fromPayload(f.nextID, p)
		f.nextID++
		f.checkins = append([]model.Checkin{c}, f.checkins...)
		writeJSON(w, http.StatusCreated, c)
	})
	mux.HandleFunc("PATCH /api/v1/checkins/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		var p model.CheckinPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "error": map[string]any{"message": "bad json"}})
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		i := slices.IndexFunc(f.checkins, func(c model.Checkin) bool { return c.ID == id })
		if i < 0 {
			writeJSON(w, http.StatusNotFound, map[string]any{"status": 404, "error": map[string]any{"message": "not found"}})
			return
		}
		f.updated = append(f.updated, p)
		c := fromPayload(id, p)
		if p.CheckedInAt == nil {
			c.CheckedInAt = f.checkins[i].CheckedInAt
		}
		f.checkins[i] = c
		writeJSON(w, http.StatusOK, c)
	})
	mux.HandleFunc("DELETE /api/v1/checkins/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		f.mu.Lock()
		defer f.mu.Unlock()
		i := slices.IndexFunc(f.checkins, func(c model.Checkin) bool { return c.ID == id })
		if i < 0 {
			writeJSON(w, http.StatusNotFound, map[string]any{"status": 404, "error": map[string]any{"message": "not found"}})
			return
		}
		f.checkins = slices.Delete(f.checkins, i, i+1)
		w.WriteHeader(http.StatusNoContent)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeAPI) record(r *http.Request) {
	f.mu.Lock()
	f.authz = append(f.authz, r.Header.Get("Authorization"))
	f.mu.Unlock()
}

// seed は履歴を新しい順で設定する。nextIDは最大ID+1になる。
func (f *fakeAPI) seed(checkins ...model.Checkin) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkins = checkins
	for _, c := range checkins {
		if c.ID >= f.nextID {
			f.nextID = c.ID + 1
		}
	}
}

func (f *fakeAPI) snapshot() (created, updated []model.CheckinPayload, cards []string, checkins []model.Checkin) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.created), slices.Clone(f.updated), slices.Clone(f.cardRequests), slices.Clone(f.checkins)
}

func fromPayload(id int64, p model.CheckinPayload) model.Checkin {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if p.CheckedInAt != nil {
		at = *p.CheckedInAt
	}
	return model.Checkin{
		ID:                 id,
		CheckedInAt:        at,
		Tags:               p.Tags,
		Link:               p.Link,
		Note:               p.Note,
		IsPrivate:          p.IsPrivate,
		IsTooSensitive:     p.IsTooSensitive,
		DiscardElapsedTime: p.DiscardElapsedTime,
		Source:             model.CheckinSourceAPI,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// setClientEnv はfakeAPIに接続する環境変数を設定し、空の設定ディレクトリを返す。
func setClientEnv(t *testing.T, server *httptest.Server) string {
	t.Helper()
	t.Setenv("API_BASE_URL", server.URL+"/api")
	t.Setenv("CHECKIN_TOKEN", "test-token")
	t.Setenv("LINK_PREVIEW_DEBOUNCE", "10ms")
	t.Setenv("VISIBILITY_MARGIN", "0")
	t.Setenv("LOG_LEVEL", "debug")
	return t.TempDir()
}

// runCLI はRunを実行し、標準出力と標準エラーを返す。
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	s := Streams{In: bytes.NewBufferString(stdin), Out: &out, Err: &errOut}
	err := Run(context.Background(), s, args)
	return out.String(), errOut.String(), err
}
