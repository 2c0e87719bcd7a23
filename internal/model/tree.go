package model

import (
	"math"
	"math/rand"
	"sort"

	"github.com/edgargomero/analisis-resultados/internal/series"
)

// featureSpec fixes the column layout of the supervised feature matrix
// shared by both tree adapters: lag columns, rolling-mean columns, then
// calendar fields. Column order is deterministic (sorted keys) so fits
// are reproducible.
type featureSpec struct {
	lags  []int
	rolls []int
}

func newFeatureSpec(fc series.FeatureConfig) featureSpec {
	s := featureSpec{
		lags:  append([]int(nil), fc.Lags...),
		rolls: append([]int(nil), fc.RollingWindows...),
	}
	sort.Ints(s.lags)
	sort.Ints(s.rolls)
	return s
}

func (s featureSpec) width() int {
	// lags, rolls, day-of-week, week-of-year, holiday flag,
	// category one-hots, pre/post-holiday flags.
	return len(s.lags) + len(s.rolls) + 3 + len(holidayCategories) + 2
}

func (s featureSpec) calendarCols(row []float64, at int, hs series.HorizonStep) {
	row[at] = float64(hs.DayOfWeek)
	row[at+1] = float64(hs.WeekOfYear)
	if hs.IsHoliday {
		row[at+2] = 1
	}
	for i, cat := range holidayCategories {
		if hs.IsHoliday && hs.Category == cat {
			row[at+3+i] = 1
		}
	}
	if hs.PreHoliday {
		row[at+3+len(holidayCategories)] = 1
	}
	if hs.PostHoliday {
		row[at+4+len(holidayCategories)] = 1
	}
}

// trainMatrix extracts the supervised rows: usable, non-gap points whose
// feature values are all defined. Undefined features are never imputed.
func trainMatrix(f *series.Frame, spec featureSpec) (x [][]float64, y []float64) {
	for i, p := range f.Points {
		if !f.Usable[i] || p.IsGap {
			continue
		}
		row := make([]float64, spec.width())
		ok := true
		at := 0
		for _, lag := range spec.lags {
			v := f.Lags[lag][i]
			if math.IsNaN(v) {
				ok = false
				break
			}
			row[at] = v
			at++
		}
		if !ok {
			continue
		}
		for _, w := range spec.rolls {
			v := f.Rolls[w][i]
			if math.IsNaN(v) {
				ok = false
				break
			}
			row[at] = v
			at++
		}
		if !ok {
			continue
		}
		spec.calendarCols(row, at, series.HorizonStep{
			IsHoliday:   p.IsHoliday,
			Category:    p.Category,
			PreHoliday:  p.PreHoliday,
			PostHoliday: p.PostHoliday,
			DayOfWeek:   p.DayOfWeek,
			WeekOfYear:  p.WeekOfYear,
		})
		x = append(x, row)
		y = append(y, p.Observed)
	}
	return x, y
}

// stepRow builds a prediction row from the value history (observations
// extended with prior predictions) and the step's calendar context. The
// recursive scheme lets one-step-ahead trees cover a multi-step horizon.
func stepRow(spec featureSpec, values []float64, hs series.HorizonStep) []float64 {
	row := make([]float64, spec.width())
	at := 0
	n := len(values)
	for _, lag := range spec.lags {
		row[at] = values[n-lag]
		at++
	}
	for _, w := range spec.rolls {
		sum := 0.0
		for _, v := range values[n-w:] {
			sum += v
		}
		row[at] = sum / float64(w)
		at++
	}
	spec.calendarCols(row, at, hs)
	return row
}

// historyValues returns the training values with gaps interpolated, the
// seed history the recursive predictor extends.
func historyValues(f *series.Frame) []float64 {
	return interpolateGaps(f)
}

// treeNode is one node of a regression tree grown by variance reduction.
type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	value     float64
	leaf      bool
}

type treeParams struct {
	maxDepth int
	minLeaf  int
	mtry     int // features considered per split; 0 means all
}

// growTree fits a regression tree on the rows selected by idx, splitting
// greedily on the feature/threshold pair with the largest squared-error
// reduction.
func growTree(x [][]float64, y []float64, idx []int, depth int, p treeParams, rng *rand.Rand) *treeNode {
	node := &treeNode{value: meanAt(y, idx), leaf: true}
	if depth >= p.maxDepth || len(idx) < 2*p.minLeaf {
		return node
	}

	feats := splitCandidates(len(x[0]), p.mtry, rng)
	bestGain := 0.0
	bestFeat, bestPos := -1, -1
	var bestOrder []int

	total := sumAt(y, idx)
	totalSq := sumSqAt(y, idx)
	baseSSE := totalSq - total*total/float64(len(idx))

	for _, f := range feats {
		order := append([]int(nil), idx...)
		sort.Slice(order, func(a, b int) bool { return x[order[a]][f] < x[order[b]][f] })

		leftSum, leftSq := 0.0, 0.0
		for pos := 0; pos < len(order)-1; pos++ {
			v := y[order[pos]]
			leftSum += v
			leftSq += v * v
			nl := pos + 1
			nr := len(order) - nl
			if nl < p.minLeaf || nr < p.minLeaf {
				continue
			}
			// No valid threshold between equal feature values.
			if x[order[pos]][f] == x[order[pos+1]][f] {
				continue
			}
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			if gain := baseSSE - sse; gain > bestGain+1e-12 {
				bestGain = gain
				bestFeat = f
				bestPos = pos
				bestOrder = append(bestOrder[:0], order...)
			}
		}
	}

	if bestFeat < 0 {
		return node
	}

	node.leaf = false
	node.feature = bestFeat
	node.threshold = (x[bestOrder[bestPos]][bestFeat] + x[bestOrder[bestPos+1]][bestFeat]) / 2
	node.left = growTree(x, y, bestOrder[:bestPos+1], depth+1, p, rng)
	node.right = growTree(x, y, bestOrder[bestPos+1:], depth+1, p, rng)
	return node
}

func (n *treeNode) predict(row []float64) float64 {
	for !n.leaf {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

// splitCandidates returns the feature indices considered at one split:
// all of them when mtry is 0 or covers everything, otherwise a seeded
// random subset.
func splitCandidates(width, mtry int, rng *rand.Rand) []int {
	all := make([]int, width)
	for i := range all {
		all[i] = i
	}
	if mtry <= 0 || mtry >= width || rng == nil {
		return all
	}
	rng.Shuffle(width, func(i, j int) { all[i], all[j] = all[j], all[i] })
	picked := all[:mtry]
	sort.Ints(picked)
	return picked
}

func meanAt(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	return sumAt(y, idx) / float64(len(idx))
}

func sumAt(y []float64, idx []int) float64 {
	var s float64
	for _, i := range idx {
		s += y[i]
	}
	return s
}

func sumSqAt(y []float64, idx []int) float64 {
	var s float64
	for _, i := range idx {
		s += y[i] * y[i]
	}
	return s
}
