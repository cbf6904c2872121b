// Package stats implements the computation layer: for each job kind a
// pure function over the ingested dataset returning a JSON-serializable
// value. Errors in the data (unknown question, no matching rows) are
// encoded into the payload, never raised across the worker boundary.
package stats

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/le-stats-sportif/webserver/internal/ingest"
	"github.com/le-stats-sportif/webserver/pkg/types"
)

// Payload messages for degenerate inputs.
const (
	errNoData         = "No data available for the given question"
	errNoStateData    = "No data available for the given question and state"
	errUnknownRanking = "Question not found in predefined lists"
)

// Dispatcher maps a job kind to its computation. It is safe for
// concurrent use: the dataset is read-only and the methods allocate all
// intermediate state locally.
type Dispatcher struct {
	data *ingest.Dataset
}

// NewDispatcher wraps the loaded dataset.
func NewDispatcher(data *ingest.Dataset) *Dispatcher {
	return &Dispatcher{data: data}
}

// Compute runs the computation for kind and returns its JSON payload.
// An error is returned only for unknown kinds or marshalling failures;
// data-level problems come back as error payloads.
func (d *Dispatcher) Compute(kind types.JobKind, question, state string) (json.RawMessage, error) {
	var result interface{}
	switch kind {
	case types.KindStatesMean:
		result = d.StatesMean(question)
	case types.KindStateMean:
		result = d.StateMean(question, state)
	case types.KindBest5:
		result = d.Best5(question)
	case types.KindWorst5:
		result = d.Worst5(question)
	case types.KindGlobalMean:
		result = d.GlobalMean(question)
	case types.KindDiffFromMean:
		result = d.DiffFromMean(question)
	case types.KindStateDiffFromMean:
		result = d.StateDiffFromMean(question, state)
	case types.KindMeanByCategory:
		result = d.MeanByCategory(question)
	case types.KindStateMeanByCategory:
		result = d.StateMeanByCategory(question, state)
	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
	return json.Marshal(result)
}

func errorDoc(reason string) *Doc {
	return NewDoc().Set("error", reason)
}

// stateMeans aggregates the per-state mean of every valued row matching
// question. States come back in first-appearance order, which keeps the
// stable sorts below deterministic across calls.
func (d *Dispatcher) stateMeans(question string) (states []string, means map[string]float64) {
	totals := make(map[string]float64)
	counts := make(map[string]int)
	for _, e := range d.data.Entries {
		if e.Question != question || !e.HasValue {
			continue
		}
		if _, seen := totals[e.State]; !seen {
			states = append(states, e.State)
		}
		totals[e.State] += e.Value
		counts[e.State]++
	}
	means = make(map[string]float64, len(totals))
	for state, total := range totals {
		means[state] = total / float64(counts[state])
	}
	return states, means
}

// globalMean returns the mean over all valued rows for question and
// whether any row matched.
func (d *Dispatcher) globalMean(question string) (float64, bool) {
	var total float64
	var count int
	for _, e := range d.data.Entries {
		if e.Question == question && e.HasValue {
			total += e.Value
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return total / float64(count), true
}

// StatesMean returns the mean per state, ascending by mean.
func (d *Dispatcher) StatesMean(question string) *Doc {
	states, means := d.stateMeans(question)
	sort.SliceStable(states, func(i, j int) bool {
		return means[states[i]] < means[states[j]]
	})

	doc := NewDoc()
	for _, state := range states {
		doc.Set(state, means[state])
	}
	return doc
}

// StateMean returns {state: mean}, with null when the state has no rows.
func (d *Dispatcher) StateMean(question, state string) *Doc {
	var total float64
	var count int
	for _, e := range d.data.Entries {
		if e.Question == question && e.State == state && e.HasValue {
			total += e.Value
			count++
		}
	}
	if count == 0 {
		return NewDoc().Set(state, nil)
	}
	return NewDoc().Set(state, total/float64(count))
}

// Best5 returns the five best states for the question; the direction
// depends on whether a low or a high value is desirable.
func (d *Dispatcher) Best5(question string) *Doc {
	return d.top5(question, true)
}

// Worst5 returns the five worst states for the question.
func (d *Dispatcher) Worst5(question string) *Doc {
	return d.top5(question, false)
}

func (d *Dispatcher) top5(question string, best bool) *Doc {
	states, means := d.stateMeans(question)
	if len(states) == 0 {
		return errorDoc(errNoData)
	}

	if !d.data.BestIsMin(question) && !d.data.BestIsMax(question) {
		return errorDoc(errUnknownRanking)
	}
	// Ascending puts the smallest means first, which is "best" for
	// best-is-min questions and "worst" for best-is-max ones.
	ascending := d.data.BestIsMin(question) == best

	sort.SliceStable(states, func(i, j int) bool {
		if ascending {
			return means[states[i]] < means[states[j]]
		}
		return means[states[i]] > means[states[j]]
	})

	doc := NewDoc()
	for _, state := range states {
		if doc.Len() == 5 {
			break
		}
		doc.Set(state, means[state])
	}
	return doc
}

// GlobalMean returns {"global_mean": mean}, null when no rows match.
func (d *Dispatcher) GlobalMean(question string) *Doc {
	mean, ok := d.globalMean(question)
	if !ok {
		return NewDoc().Set("global_mean", nil)
	}
	return NewDoc().Set("global_mean", mean)
}

// DiffFromMean returns global_mean - state_mean per state, descending.
func (d *Dispatcher) DiffFromMean(question string) *Doc {
	global, ok := d.globalMean(question)
	if !ok {
		return errorDoc(errNoData)
	}

	states, means := d.stateMeans(question)
	diffs := make(map[string]float64, len(states))
	for _, state := range states {
		diffs[state] = global - means[state]
	}
	sort.SliceStable(states, func(i, j int) bool {
		return diffs[states[i]] > diffs[states[j]]
	})

	doc := NewDoc()
	for _, state := range states {
		doc.Set(state, diffs[state])
	}
	return doc
}

// StateDiffFromMean returns {state: global_mean - state_mean}; null for
// a state with no rows when the question itself has data.
func (d *Dispatcher) StateDiffFromMean(question, state string) *Doc {
	global, ok := d.globalMean(question)
	if !ok {
		return errorDoc(errNoData)
	}

	var total float64
	var count int
	for _, e := range d.data.Entries {
		if e.Question == question && e.State == state && e.HasValue {
			total += e.Value
			count++
		}
	}
	if count == 0 {
		return NewDoc().Set(state, nil)
	}
	return NewDoc().Set(state, global-total/float64(count))
}

// categoryKey mirrors the tuple-shaped keys of the reference responses:
// "('Ohio', 'Age (years)', '18 - 24')".
func categoryKey(parts ...string) string {
	key := "("
	for i, p := range parts {
		if i > 0 {
			key += ", "
		}
		key += "'" + p + "'"
	}
	return key + ")"
}

// Sort priorities for mean_by_category output.
var (
	categoryPriority = map[string]int{
		"Age (years)":    1,
		"Education":      2,
		"Gender":         3,
		"Income":         4,
		"Race/Ethnicity": 5,
		"Total":          6,
	}
	agePriority = map[string]int{
		"18 - 24": 1, "25 - 34": 2, "35 - 44": 3,
		"45 - 54": 4, "55 - 64": 5, "65 or older": 6,
	}
	educationPriority = map[string]int{
		"Less than high school":           1,
		"High school graduate":            2,
		"Some college or technical school": 3,
		"College graduate":                4,
	}
	incomePriority = map[string]int{
		"Less than $15,000": 1, "$15,000 - $24,999": 2, "$25,000 - $34,999": 3,
		"$35,000 - $49,999": 4, "$50,000 - $74,999": 5, "$75,000 or greater": 6,
		"Data not reported": 7,
	}
)

const unrankedPriority = 99

func segmentPriority(category, segment string) int {
	var rank int
	var ok bool
	switch category {
	case "Age (years)":
		rank, ok = agePriority[segment]
	case "Education":
		rank, ok = educationPriority[segment]
	case "Income":
		rank, ok = incomePriority[segment]
	}
	if !ok {
		return unrankedPriority
	}
	return rank
}

type categoryMean struct {
	state    string
	category string
	segment  string
	mean     float64
}

// MeanByCategory returns the mean per (state, category, segment),
// ordered by state, then category priority, then segment priority.
// Rows with an empty category or segment are excluded. No matching
// rows yields an empty object.
func (d *Dispatcher) MeanByCategory(question string) *Doc {
	type key struct{ state, category, segment string }
	totals := make(map[key]float64)
	counts := make(map[key]int)
	var order []key

	for _, e := range d.data.Entries {
		if e.Question != question || !e.HasValue {
			continue
		}
		if e.Category == "" || e.Segment == "" {
			continue
		}
		k := key{e.State, e.Category, e.Segment}
		if _, seen := totals[k]; !seen {
			order = append(order, k)
		}
		totals[k] += e.Value
		counts[k]++
	}

	groups := make([]categoryMean, 0, len(order))
	for _, k := range order {
		groups = append(groups, categoryMean{
			state:    k.state,
			category: k.category,
			segment:  k.segment,
			mean:     totals[k] / float64(counts[k]),
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.state != b.state {
			return a.state < b.state
		}
		ac, bc := categoryPriority[a.category], categoryPriority[b.category]
		if ac == 0 {
			ac = unrankedPriority
		}
		if bc == 0 {
			bc = unrankedPriority
		}
		if ac != bc {
			return ac < bc
		}
		as, bs := segmentPriority(a.category, a.segment), segmentPriority(b.category, b.segment)
		if as != bs {
			return as < bs
		}
		return a.segment < b.segment
	})

	doc := NewDoc()
	for _, g := range groups {
		doc.Set(categoryKey(g.state, g.category, g.segment), g.mean)
	}
	return doc
}

// StateMeanByCategory returns {state: {"('Category', 'Segment')": mean}}
// with groups in first-appearance order.
func (d *Dispatcher) StateMeanByCategory(question, state string) *Doc {
	type key struct{ category, segment string }
	totals := make(map[key]float64)
	counts := make(map[key]int)
	var order []key

	matched := false
	for _, e := range d.data.Entries {
		if e.Question != question || e.State != state || !e.HasValue {
			continue
		}
		matched = true
		k := key{e.Category, e.Segment}
		if _, seen := totals[k]; !seen {
			order = append(order, k)
		}
		totals[k] += e.Value
		counts[k]++
	}
	if !matched {
		return errorDoc(errNoStateData)
	}

	inner := NewDoc()
	for _, k := range order {
		inner.Set(categoryKey(k.category, k.segment), totals[k]/float64(counts[k]))
	}
	return NewDoc().Set(state, inner)
}
