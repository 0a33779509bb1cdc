// Package postprocess - provides Non-Maximum Suppression for decoded candidates.
package postprocess

import (
	"sort"
)

// NMSMode selects how candidates are grouped during suppression.
type NMSMode string

const (
	// NMSPerClass ranks candidates separately for every class and only zeroes the
	// probability of the class being processed.
	NMSPerClass NMSMode = "class"
	// NMSObjectness ranks candidates by their best class score and zeroes every
	// class probability of a suppressed candidate.
	NMSObjectness NMSMode = "objectness"
)

// suppress zeroes the probabilities of candidates that overlap a higher scoring,
// still active candidate by more than thresh. Candidates are never removed, so
// the decode order survives. Running it twice with the same threshold changes
// nothing the second time.
func suppress(c *candidates, thresh float32, mode NMSMode) {
	// Candidates without any class above the confidence threshold can neither
	// suppress nor be reported, so they are left out of the ranking.
	c.order = c.order[:0]
	for i := range c.best {
		if c.best[i] > 0 {
			c.order = append(c.order, i)
		}
	}
	if len(c.order) < 2 {
		return
	}

	if mode == NMSObjectness {
		suppressObjectness(c, thresh)
		return
	}
	for k := 0; k < c.classes; k++ {
		suppressClass(c, k, thresh)
	}
}

func suppressClass(c *candidates, k int, thresh float32) {
	order := c.order
	sort.SliceStable(order, func(a, b int) bool {
		return c.probs[order[a]*c.classes+k] > c.probs[order[b]*c.classes+k]
	})

	for i, a := range order {
		if c.probs[a*c.classes+k] == 0 {
			// Suppressed earlier in this pass; the order predates it.
			continue
		}
		for _, b := range order[i+1:] {
			if c.probs[b*c.classes+k] == 0 {
				continue
			}
			if c.boxes[a].IoU(c.boxes[b]) > thresh {
				c.probs[b*c.classes+k] = 0
			}
		}
	}
}

func suppressObjectness(c *candidates, thresh float32) {
	order := c.order
	sort.SliceStable(order, func(a, b int) bool {
		return c.best[order[a]] > c.best[order[b]]
	})

	for i, a := range order {
		if c.best[a] == 0 {
			continue
		}
		for _, b := range order[i+1:] {
			if c.best[b] == 0 {
				continue
			}
			if c.boxes[a].IoU(c.boxes[b]) > thresh {
				clear(c.prob(b))
				c.best[b] = 0
			}
		}
	}
}
