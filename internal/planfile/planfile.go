// Package planfile parses and validates the JSON plan document produced by
// the (out-of-scope) planning stage, and computes the deterministic
// topological order the scheduler and integrator both rely on.
//
// Validation follows spec order exactly: shape of `tasks`, id shape and
// uniqueness, dependency references, then DAG construction and the
// lexicographically-smallest-ready-node ordering. Cycle detection is
// grounded on the teacher's models.HasCyclicDependencies DFS-color-marking
// approach; the ordering algorithm itself is this system's own invariant
// (spec.md §4.4 step 4), not the teacher's wave-bucketed Kahn's algorithm.
package planfile

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/harrison/auto-codex/internal/coreerr"
	"github.com/harrison/auto-codex/internal/models"
)

// rawPlan mirrors the on-disk JSON document before validation.
type rawPlan struct {
	Title      string      `json:"title"`
	Overview   string      `json:"overview"`
	MergeNotes string      `json:"merge_notes"`
	Tasks      []rawTask   `json:"tasks"`
}

type rawTask struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Prompt    string   `json:"prompt"`
	DependsOn []string `json:"depends_on"`
}

// Parse validates data as a plan document and returns the validated Plan
// with its deterministic topological Order populated.
func Parse(data []byte) (*models.Plan, error) {
	var raw rawPlan
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &coreerr.PlanInvalidError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}

	if len(raw.Tasks) == 0 {
		return nil, &coreerr.PlanInvalidError{Reason: "tasks must be a non-empty list"}
	}

	seen := make(map[string]bool, len(raw.Tasks))
	tasks := make([]models.Task, 0, len(raw.Tasks))
	for _, rt := range raw.Tasks {
		if !models.ValidID(rt.ID) {
			return nil, &coreerr.PlanInvalidError{Reason: fmt.Sprintf("task id %q does not match T\\d{2}", rt.ID)}
		}
		if seen[rt.ID] {
			return nil, &coreerr.PlanInvalidError{Reason: fmt.Sprintf("duplicate task id %q", rt.ID)}
		}
		seen[rt.ID] = true

		deps := append([]string(nil), rt.DependsOn...)
		tasks = append(tasks, models.Task{
			ID:        rt.ID,
			Title:     rt.Title,
			Prompt:    rt.Prompt,
			DependsOn: deps,
		})
	}

	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if dep == t.ID {
				return nil, &coreerr.PlanInvalidError{Reason: fmt.Sprintf("task %s: self-dependency is forbidden", t.ID)}
			}
			if !seen[dep] {
				return nil, &coreerr.PlanInvalidError{Reason: fmt.Sprintf("task %s: depends on unknown task %q", t.ID, dep)}
			}
		}
	}

	order, err := TopologicalOrder(tasks)
	if err != nil {
		return nil, err
	}

	return &models.Plan{
		Title:      raw.Title,
		Overview:   raw.Overview,
		MergeNotes: raw.MergeNotes,
		Tasks:      tasks,
		Order:      order,
	}, nil
}

// TopologicalOrder computes the plan's deterministic execution order:
// repeatedly pop the lexicographically smallest ready node (in-degree
// zero), push its children onto the ready set, and re-sort. If not every
// task is consumed, the graph contains a cycle.
func TopologicalOrder(tasks []models.Task) ([]string, error) {
	inDegree := make(map[string]int, len(tasks))
	children := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		if _, ok := inDegree[t.ID]; !ok {
			inDegree[t.ID] = 0
		}
	}
	for _, t := range tasks {
		// A dependency listed more than once is one edge, not several —
		// otherwise the child would be queued onto `ready` multiple times
		// below and appear in the order more than once.
		seenDep := make(map[string]bool, len(t.DependsOn))
		for _, dep := range t.DependsOn {
			if seenDep[dep] {
				continue
			}
			seenDep[dep] = true
			inDegree[t.ID]++
			children[dep] = append(children[dep], t.ID)
		}
	}

	var ready []string
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(tasks))
	for len(ready) > 0 {
		// Pop the lexicographically smallest ready node.
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, child := range children[next] {
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
			}
		}
		sort.Strings(ready)
	}

	if len(order) != len(tasks) {
		return nil, &coreerr.PlanInvalidError{Reason: "dependency graph contains a cycle"}
	}
	return order, nil
}
