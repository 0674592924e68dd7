// ABOUTME: Derived reports computed over a session's event history
// ABOUTME: Best-candidate selection and the CSV scoreboard export

package report

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/arkgart/orchestra/internal/event"
)

// ErrNoVersions is returned when the history holds no version nodes to report on.
var ErrNoVersions = errors.New("no versions found")

// Best identifies the winning candidate version of a run.
type Best struct {
	Node  event.VersionNode `json:"node"`
	Score float64           `json:"score"`
}

// scoreIndex folds metric-update events into the latest composite score
// per version, remembering first-appearance order for stable output.
type scoreIndex struct {
	scores map[string]float64
	order  []string
}

func indexScores(history []*event.Event) *scoreIndex {
	idx := &scoreIndex{scores: make(map[string]float64)}
	for _, ev := range history {
		if ev.Type != event.TypeMetricUpdate || ev.Metric == nil {
			continue
		}
		id := ev.Metric.VersionID
		if _, seen := idx.scores[id]; !seen {
			idx.order = append(idx.order, id)
		}
		idx.scores[id] = compositeScore(ev.Metric.Metrics)
	}
	return idx
}

// compositeScore prefers the composite metric, falls back to the base
// metric, then zero.
func compositeScore(metrics map[string]float64) float64 {
	if v, ok := metrics["compositeScore"]; ok {
		return v
	}
	if v, ok := metrics["base"]; ok {
		return v
	}
	return 0
}

// lastGraph returns the node list of the most recent graph snapshot.
func lastGraph(history []*event.Event) []event.VersionNode {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Type == event.TypeGraphUpdate && history[i].Graph != nil {
			return history[i].Graph.Nodes
		}
	}
	return nil
}

// BestCandidate selects the highest-scoring node from the last graph
// snapshot. Metric-update scores override node-embedded scores; ties go
// to the node listed first in the snapshot.
func BestCandidate(history []*event.Event) (*Best, error) {
	nodes := lastGraph(history)
	if len(nodes) == 0 {
		return nil, ErrNoVersions
	}

	idx := indexScores(history)

	var best *Best
	for i := range nodes {
		node := nodes[i]
		score := node.Score
		if override, ok := idx.scores[node.ID]; ok {
			score = override
		}
		if best == nil || score > best.Score {
			best = &Best{Node: node, Score: score}
		}
	}
	return best, nil
}

// Row is one scoreboard line for a version that reported metrics.
type Row struct {
	VersionID string
	Score     float64
	CostUSD   float64
	Status    string
}

// Scoreboard joins each scored version with its last-known cost and
// status from the graph snapshots, sorted descending by score.
func Scoreboard(history []*event.Event) []Row {
	idx := indexScores(history)

	cost := make(map[string]float64)
	status := make(map[string]string)
	for _, ev := range history {
		if ev.Type != event.TypeGraphUpdate || ev.Graph == nil {
			continue
		}
		for _, node := range ev.Graph.Nodes {
			cost[node.ID] = node.CostUSD
			status[node.ID] = node.Status
		}
	}

	rows := make([]Row, 0, len(idx.order))
	for _, id := range idx.order {
		row := Row{VersionID: id, Score: idx.scores[id], CostUSD: cost[id], Status: status[id]}
		if row.Status == "" {
			row.Status = "unknown"
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Score > rows[j].Score
	})
	return rows
}

// scoreboardHeader is the fixed first line of the CSV export.
const scoreboardHeader = "version_id,score,cost_usd,status"

// ScoreboardCSV renders the scoreboard as delimited text with fixed
// numeric precision: scores to three decimals, costs to two.
func ScoreboardCSV(history []*event.Event) string {
	var b strings.Builder
	b.WriteString(scoreboardHeader)
	b.WriteByte('\n')
	for _, row := range Scoreboard(history) {
		fmt.Fprintf(&b, "%s,%.3f,%.2f,%s\n", row.VersionID, row.Score, row.CostUSD, row.Status)
	}
	return b.String()
}
