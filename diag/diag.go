package diag

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/store"
	"github.com/cschleiden/go-taskflow/workflow"
)

// json: serialization of the api

type WorkflowRef struct {
	ID        string        `json:"id"`
	Name      string        `json:"name,omitempty"`
	Kind      workflow.Kind `json:"kind"`
	State     core.State    `json:"state"`
	UpdatedAt time.Time     `json:"updated_at,omitempty"`
}

type WorkflowInfo struct {
	*WorkflowRef

	Counts   map[string]int    `json:"counts"`
	Snapshot workflow.Snapshot `json:"snapshot"`
}

// NewServeMux returns an *http.ServeMux that serves the diagnostics API at /api:
//
//	/api/?after=<id>&count=<n>   workflows ordered by id
//	/api/{id}                    snapshot of a workflow
//	/api/{id}/tree               text rendering of a workflow
func NewServeMux(source Source) *http.ServeMux {
	return newServeMux(source, clock.New())
}

func newServeMux(source Source, clk clock.Clock) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		// Only support GET requests
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		relativeURL := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/"), "/")

		// /api/
		if relativeURL == "" {
			query := r.URL.Query()

			count := 25
			countStr := query.Get("count")
			if countStr != "" {
				var err error
				count, err = strconv.Atoi(countStr)
				if err != nil || count <= 0 {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
			}

			entries, err := source.List(r.Context())
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}

			writeJSON(w, page(entries, query.Get("after"), count))
			return
		}

		segments := strings.Split(relativeURL, "/")
		if len(segments) > 2 || (len(segments) == 2 && segments[1] != "tree") {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		snap, err := source.Load(r.Context(), segments[0])
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				w.WriteHeader(http.StatusNotFound)
			} else {
				w.WriteHeader(http.StatusInternalServerError)
			}

			return
		}

		// /api/{id}/tree
		if len(segments) == 2 {
			w.Header().Add("Content-Type", "text/plain; charset=utf-8")
			if err := RenderTree(w, *snap, clk.Now()); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
			}

			return
		}

		// /api/{id}
		counts := map[string]int{}
		for state, n := range snap.Count() {
			counts[state.String()] = n
		}

		writeJSON(w, &WorkflowInfo{
			WorkflowRef: &WorkflowRef{
				ID:    snap.ID,
				Name:  snap.Name,
				Kind:  snap.Kind,
				State: snap.State,
			},
			Counts:   counts,
			Snapshot: *snap,
		})
	})

	return mux
}

func page(entries []store.Entry, after string, count int) []*WorkflowRef {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	refs := make([]*WorkflowRef, 0, count)
	for _, e := range entries {
		if after != "" && e.ID <= after {
			continue
		}

		refs = append(refs, &WorkflowRef{
			ID:        e.ID,
			Name:      e.Name,
			Kind:      e.Kind,
			State:     e.State,
			UpdatedAt: e.UpdatedAt,
		})

		if len(refs) == count {
			break
		}
	}

	return refs
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Add("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}
