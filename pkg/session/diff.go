package session

import "math"

// webVitalThresholds maps a metric name to its {good, poor} boundary per the
// web-vitals rating scheme. A value <= good is "good", <= poor is
// "needs-improvement", otherwise "poor".
var webVitalThresholds = map[string][2]float64{
	"LCP":  {2500, 4000},
	"FCP":  {1800, 3000},
	"CLS":  {0.1, 0.25},
	"TTFB": {800, 1800},
	"FID":  {100, 300},
	"INP":  {200, 500},
}

func ratingFor(metric string, value float64) string {
	bounds, ok := webVitalThresholds[metric]
	if !ok {
		return ""
	}
	switch {
	case value <= bounds[0]:
		return "good"
	case value <= bounds[1]:
		return "needs-improvement"
	default:
		return "poor"
	}
}

func ratingOrdinal(rating string) int {
	switch rating {
	case "good":
		return 0
	case "needs-improvement":
		return 1
	case "poor":
		return 2
	default:
		return -1
	}
}

func percentChange(before, after float64) float64 {
	if before == 0 {
		if after == 0 {
			return 0
		}
		return 100
	}
	return (after - before) / math.Abs(before) * 100
}

func classifyLatency(before, after float64) Classification {
	delta := after - before
	pct := percentChange(before, after)
	if math.Abs(pct) < 5 {
		return ClassUnchanged
	}
	if delta > 0 && math.Abs(pct) >= 10 {
		return ClassRegression
	}
	return ClassImprovement
}

func classifyErrorMetric(before, after float64) Classification {
	delta := after - before
	pct := percentChange(before, after)
	if math.Abs(pct) < 5 {
		return ClassUnchanged
	}
	if delta > 0 {
		return ClassRegression
	}
	return ClassImprovement
}

func classifyCount(before, after float64) Classification {
	delta := after - before
	pct := percentChange(before, after)
	if math.Abs(pct) < 5 {
		return ClassUnchanged
	}
	if delta > 0 && pct >= 25 {
		return ClassRegression
	}
	return ClassImprovement
}

func classifyWebVital(metric string, before, after float64) Classification {
	pct := percentChange(before, after)
	if math.Abs(pct) < 5 {
		return ClassUnchanged
	}
	bo, ao := ratingOrdinal(ratingFor(metric, before)), ratingOrdinal(ratingFor(metric, after))
	switch {
	case ao > bo:
		return ClassRegression
	case ao < bo:
		return ClassImprovement
	default:
		return ClassUnchanged
	}
}

func delta(key string, before, after float64, classify func(before, after float64) Classification) MetricDelta {
	return MetricDelta{
		Key:            key,
		Before:         before,
		After:          after,
		Delta:          after - before,
		PercentChange:  percentChange(before, after),
		Classification: classify(before, after),
	}
}

// Compare computes a DiffResult between two snapshots of possibly different
// sessions (spec §4.6 compareSessions).
func Compare(a, b Snapshot) DiffResult {
	result := DiffResult{
		ErrorCountDelta:  b.ErrorCount - a.ErrorCount,
		TotalEventsDelta: b.TotalEvents - a.TotalEvents,
	}

	for key := range unionEndpointKeys(a, b) {
		before, after := a.Endpoints[key], b.Endpoints[key]
		result.EndpointDeltas = append(result.EndpointDeltas,
			delta(key+" avgLatency", before.AvgLatency, after.AvgLatency, classifyLatency),
			delta(key+" errorRate", before.ErrorRate, after.ErrorRate, classifyErrorMetric),
			delta(key+" callCount", float64(before.CallCount), float64(after.CallCount), classifyCount),
		)
	}

	for key := range unionKeys(keysOfComponents(a), keysOfComponents(b)) {
		before, after := a.Components[key], b.Components[key]
		result.ComponentDeltas = append(result.ComponentDeltas,
			delta(key+" avgDuration", before.AvgDuration, after.AvgDuration, classifyLatency),
			delta(key+" renderCount", float64(before.RenderCount), float64(after.RenderCount), classifyCount),
		)
	}

	for key := range unionKeys(keysOfStores(a), keysOfStores(b)) {
		before, after := a.Stores[key], b.Stores[key]
		result.StoreDeltas = append(result.StoreDeltas,
			delta(key+" updateCount", float64(before.UpdateCount), float64(after.UpdateCount), classifyCount))
	}

	for key := range unionKeys(keysOfWebVitals(a), keysOfWebVitals(b)) {
		before, after := a.WebVitals[key], b.WebVitals[key]
		result.WebVitalDeltas = append(result.WebVitalDeltas,
			delta(key, before.Value, after.Value, func(x, y float64) Classification { return classifyWebVital(key, x, y) }))
	}

	for key := range unionKeys(keysOfQueries(a), keysOfQueries(b)) {
		before, after := a.Queries[key], b.Queries[key]
		result.QueryDeltas = append(result.QueryDeltas,
			delta(key+" avgDuration", before.AvgDuration, after.AvgDuration, classifyLatency),
			delta(key+" callCount", float64(before.CallCount), float64(after.CallCount), classifyCount),
		)
	}

	return result
}

func unionEndpointKeys(a, b Snapshot) map[string]struct{} {
	return unionKeys(keysOfEndpoints(a), keysOfEndpoints(b))
}

func keysOfEndpoints(s Snapshot) []string {
	keys := make([]string, 0, len(s.Endpoints))
	for k := range s.Endpoints {
		keys = append(keys, k)
	}
	return keys
}

func keysOfComponents(s Snapshot) []string {
	keys := make([]string, 0, len(s.Components))
	for k := range s.Components {
		keys = append(keys, k)
	}
	return keys
}

func keysOfStores(s Snapshot) []string {
	keys := make([]string, 0, len(s.Stores))
	for k := range s.Stores {
		keys = append(keys, k)
	}
	return keys
}

func keysOfWebVitals(s Snapshot) []string {
	keys := make([]string, 0, len(s.WebVitals))
	for k := range s.WebVitals {
		keys = append(keys, k)
	}
	return keys
}

func keysOfQueries(s Snapshot) []string {
	keys := make([]string, 0, len(s.Queries))
	for k := range s.Queries {
		keys = append(keys, k)
	}
	return keys
}

func unionKeys(a, b []string) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for _, k := range a {
		out[k] = struct{}{}
	}
	for _, k := range b {
		out[k] = struct{}{}
	}
	return out
}
