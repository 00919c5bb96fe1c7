package main

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

const (
	sgvInterval = 5 * time.Minute
	maxCount    = 10000
)

var profileJSON = `{"basal":[{"timeAsSeconds":0,"value":0.8},{"timeAsSeconds":21600,"value":1.1},{"timeAsSeconds":79200,"value":0.9}]}`

// mealHours are the local hours at which a meal with bolus is recorded.
var mealHours = []int{7, 12, 18}

func main() {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/entries/sgv.json", entries).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/treatments.json", treatments).Methods(http.MethodGet)

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":1337"
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: handlers.LoggingHandler(os.Stdout, r),
	}
	log.Printf("mock nightscout listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// entries returns a sine-shaped glucose trace, newest first like Nightscout.
func entries(w http.ResponseWriter, r *http.Request) {
	from, to, ok := window(w, r, "find[date][$gte]", "find[date][$lt]")
	if !ok {
		return
	}
	out := []map[string]any{}
	for t := to.Add(-time.Nanosecond).Truncate(sgvInterval); !t.Before(from) && len(out) < maxCount; t = t.Add(-sgvInterval) {
		phase := float64(t.Unix()%86400) / 86400 * 2 * math.Pi
		out = append(out, map[string]any{
			"date": t.UnixMilli(),
			"sgv":  math.Round(120 + 40*math.Sin(3*phase)),
			"type": "sgv",
		})
	}
	writeJSON(w, out)
}

func treatments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("find[eventType]") == "Profile Switch" {
		writeJSON(w, []map[string]any{{
			"eventType":   "Profile Switch",
			"created_at":  "2020-01-01T00:00:00Z",
			"profile":     "default",
			"profileJson": profileJSON,
		}})
		return
	}
	from, to, ok := window(w, r, "find[created_at][$gte]", "find[created_at][$lt]")
	if !ok {
		return
	}

	out := []map[string]any{}
	switch {
	case q.Get("find[eventType]") == "HeartRate":
		for t := to.Add(-time.Nanosecond).Truncate(sgvInterval); !t.Before(from) && len(out) < maxCount; t = t.Add(-sgvInterval) {
			bpm := 65.0
			if t.Hour() == 17 {
				bpm = 135
			}
			out = append(out, map[string]any{
				"eventType":      "HeartRate",
				"created_at":     t.Format(time.RFC3339),
				"beatsPerMinute": bpm,
			})
		}
	case q.Get("find[eventType]") == "Temp Basal":
	case q.Get("find[carbs][$gt]") != "" || q.Get("find[insulin][$gt]") != "":
		for day := to.Truncate(24 * time.Hour); !day.Before(from.Truncate(24 * time.Hour)); day = day.Add(-24 * time.Hour) {
			for i := len(mealHours) - 1; i >= 0; i-- {
				t := day.Add(time.Duration(mealHours[i]) * time.Hour)
				if t.Before(from) || !t.Before(to) {
					continue
				}
				out = append(out, map[string]any{
					"eventType":  "Meal Bolus",
					"created_at": t.Format(time.RFC3339),
					"carbs":      45,
					"insulin":    4.5,
				})
			}
		}
	}
	writeJSON(w, out)
}

func window(w http.ResponseWriter, r *http.Request, fromKey, toKey string) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	from, err := parseInstant(q.Get(fromKey))
	if err != nil {
		http.Error(w, "invalid "+fromKey, http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	to, err := parseInstant(q.Get(toKey))
	if err != nil {
		http.Error(w, "invalid "+toKey, http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func parseInstant(v string) (time.Time, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339, v)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}
