package capturelog

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts the journal's debug endpoints under /debug/.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://captures.db", s.DB, &tailsql.DBOptions{
		Label: "Capture journal",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("captures", "Recent captures as JSON (?limit=N)", func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				http.Error(w, fmt.Sprintf("invalid limit %q", v), http.StatusBadRequest)
				return
			}
			limit = n
		}
		recs, err := s.RecentCaptures(limit)
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to query captures: %v", err), http.StatusInternalServerError)
			return
		}
		if recs == nil {
			recs = []Record{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(recs)
	})

	debug.HandleFunc("outcomes", "Capture request counts by outcome", func(w http.ResponseWriter, r *http.Request) {
		counts, err := s.CountByOutcome()
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to count outcomes: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(counts)
	})
}
