// ABOUTME: Simulated worker for E2E testing: reads a request from stdin, emits a scripted tournament.
// ABOUTME: Usage: fake-worker [-variants N] [-delay 100ms] [-deny] [-fail]

package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

type request struct {
	Task         string `json:"task"`
	Mode         string `json:"mode"`
	VariantCount int    `json:"variantCount"`
}

type wireEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Message string `json:"message,omitempty"`
}

type node struct {
	ID      string  `json:"id"`
	Title   string  `json:"title,omitempty"`
	Status  string  `json:"status,omitempty"`
	Score   float64 `json:"score"`
	CostUSD float64 `json:"costUsd"`
}

func main() {
	variants := flag.Int("variants", 3, "number of candidate versions to simulate")
	delay := flag.Duration("delay", 100*time.Millisecond, "pause between emitted events")
	deny := flag.Bool("deny", false, "emit a policy denial instead of running")
	fail := flag.Bool("fail", false, "exit non-zero after the first graph snapshot")
	flag.Parse()

	if err := run(*variants, *delay, *deny, *fail); err != nil {
		log.Fatal(err)
	}
}

func run(variants int, delay time.Duration, deny, fail bool) error {
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	var req request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil && err != io.EOF {
		return fmt.Errorf("reading request: %w", err)
	}
	if req.VariantCount > 0 {
		variants = req.VariantCount
	}

	fmt.Fprintf(os.Stderr, "fake-worker: task=%q mode=%s variants=%d\n", req.Task, req.Mode, variants)

	emit := func(ev wireEvent) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := out.Write(append(data, '\n')); err != nil {
			return err
		}
		if err := out.Flush(); err != nil {
			return err
		}
		time.Sleep(delay)
		return nil
	}

	if deny {
		return emit(wireEvent{Type: "policy", Payload: map[string]any{
			"allowed": false,
			"reason":  "fake-worker denial requested",
		}})
	}

	if err := emit(wireEvent{Type: "policy", Payload: map[string]any{"allowed": true}}); err != nil {
		return err
	}

	// Initial snapshot: every variant pending.
	nodes := make([]node, variants)
	for i := range nodes {
		nodes[i] = node{
			ID:     fmt.Sprintf("v%d", i+1),
			Title:  fmt.Sprintf("Variant %d", i+1),
			Status: "running",
		}
	}
	if err := emit(wireEvent{Type: "graph-update", Payload: map[string]any{"nodes": nodes}}); err != nil {
		return err
	}

	if fail {
		return fmt.Errorf("fake-worker: simulated failure")
	}

	// Score the variants one at a time, refreshing the snapshot.
	for i := range nodes {
		if err := emit(wireEvent{Type: "log", Payload: map[string]any{
			"versionId": nodes[i].ID,
			"content":   fmt.Sprintf("evaluating %s", nodes[i].ID),
		}}); err != nil {
			return err
		}

		nodes[i].Status = "succeeded"
		nodes[i].Score = 0.5 + float64(i)*0.1
		nodes[i].CostUSD = 0.25 * float64(i+1)

		if err := emit(wireEvent{Type: "metric-update", Payload: map[string]any{
			"versionId": nodes[i].ID,
			"metrics":   map[string]float64{"compositeScore": nodes[i].Score},
		}}); err != nil {
			return err
		}
		if err := emit(wireEvent{Type: "graph-update", Payload: map[string]any{"nodes": nodes}}); err != nil {
			return err
		}
	}

	return emit(wireEvent{Type: "complete", Message: "tournament finished"})
}
