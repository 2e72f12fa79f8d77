package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hookline/hookline/internal/config"
)

// fake-receiver is a stand-in destination for local testing: it can fail the
// first N requests with a configurable status code and delay its responses,
// which exercises the worker's retry/backoff path end to end.

var reqCount atomic.Int64

func main() {
	cfg := config.FromEnv().FakeReceiver

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/hook", makeHookHandler(cfg.FailFirstN, cfg.FailStatus, cfg.ResponseDelayMS))

	log.Printf("fake-receiver listening on %s", cfg.Port)
	log.Fatal(http.ListenAndServe(cfg.Port, mux))
}

func makeHookHandler(failFirstN, failStatus, delayMS int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := reqCount.Add(1)
		b, _ := io.ReadAll(r.Body)
		defer r.Body.Close()

		if delayMS > 0 {
			time.Sleep(time.Duration(delayMS) * time.Millisecond)
		}

		if n <= int64(failFirstN) {
			log.Printf("FAILING (%d/%d) %s %s status=%d body=%s",
				n, failFirstN, r.Method, r.URL.Path, failStatus, truncate(string(b), 160))
			http.Error(w, "simulated failure", failStatus)
			return
		}

		log.Printf("fake-receiver OK %s %s query=%q body=%q",
			r.Method, r.URL.Path, r.URL.RawQuery, truncate(string(b), 160))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`ok`))
	}
}

// truncate shortens a string for log lines
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
