// Package main implements a mock generation provider for offline testing.
// It serves drafts from JSON fixture files instead of calling a real model,
// making pipeline wiring tests fast, deterministic, and offline-capable.
//
// Usage:
//
//	mock-provider -fixtures /path/to/fixtures -port 8091
//
// Fixture files are JSON draft documents (matching the provider response
// shape) served in filename order: the Nth generation request receives the Nth
// fixture, and the last fixture repeats once the sequence is exhausted. With
// no fixture directory the server echoes the request source as the draft,
// paragraph per span. Requests are captured and retrievable via /requests for
// verification in wiring tests.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// generateRequest mirrors the engine's provider request shape. Only the
// fields the mock needs are decoded.
type generateRequest struct {
	RunID  string          `json:"run_id"`
	Source string          `json:"source"`
	Signal json.RawMessage `json:"signal"`
}

// span and draft mirror the engine's draft wire shape.
type span struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type draft struct {
	Spans []span `json:"spans"`
}

// capturedRequest stores the key fields of an incoming generation request.
type capturedRequest struct {
	RunID     string `json:"run_id"`
	Source    string `json:"source"`
	CallIndex int    `json:"call_index"`
	Timestamp int64  `json:"timestamp"`
}

type server struct {
	fixtures []json.RawMessage
	calls    atomic.Int64

	requestsMu sync.Mutex
	requests   []capturedRequest
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing JSON draft fixtures")
	port := flag.Int("port", 8091, "port to listen on")
	flag.Parse()

	if envDir := os.Getenv("MOCK_PROVIDER_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}

	s := &server{}
	if *fixtureDir != "" {
		fixtures, err := loadFixtures(*fixtureDir)
		if err != nil {
			log.Fatalf("Failed to load fixtures from %s: %v", *fixtureDir, err)
		}
		s.fixtures = fixtures
		log.Printf("Loaded %d fixture(s) from %s", len(fixtures), *fixtureDir)
	} else {
		log.Printf("No fixtures configured, echoing request source")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleGenerate)
	mux.HandleFunc("/requests", s.handleRequests)
	mux.HandleFunc("/stats", s.handleStats)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Mock provider listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// loadFixtures reads all .json files from dir in sorted filename order.
func loadFixtures(dir string) ([]json.RawMessage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	fixtures := make([]json.RawMessage, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var d draft
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("fixture %s is not a draft document: %w", name, err)
		}
		fixtures = append(fixtures, json.RawMessage(data))
	}
	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no .json fixtures in %s", dir)
	}
	return fixtures, nil
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := int(s.calls.Add(1))
	log.Printf("[call %d] run_id=%s source_bytes=%d", callNum, req.RunID, len(req.Source))

	s.requestsMu.Lock()
	s.requests = append(s.requests, capturedRequest{
		RunID:     req.RunID,
		Source:    req.Source,
		CallIndex: callNum,
		Timestamp: time.Now().UnixMilli(),
	})
	s.requestsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if len(s.fixtures) > 0 {
		idx := callNum - 1
		if idx >= len(s.fixtures) {
			idx = len(s.fixtures) - 1
		}
		_, _ = w.Write(s.fixtures[idx])
		return
	}
	_ = json.NewEncoder(w).Encode(echoDraft(req.Source))
}

// echoDraft splits the source into paragraph spans, matching the engine's
// span boundaries.
func echoDraft(text string) draft {
	paragraphs := strings.Split(strings.TrimSpace(text), "\n\n")
	d := draft{Spans: make([]span, 0, len(paragraphs))}
	for i, p := range paragraphs {
		d.Spans = append(d.Spans, span{
			ID:   fmt.Sprintf("s%d", i+1),
			Text: strings.TrimSpace(p),
		})
	}
	return d
}

func (s *server) handleRequests(w http.ResponseWriter, _ *http.Request) {
	s.requestsMu.Lock()
	defer s.requestsMu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.requests)
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"calls":    s.calls.Load(),
		"fixtures": len(s.fixtures),
	})
}
