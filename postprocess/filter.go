package postprocess

// Filter reduces a detection list. Implementations must not modify their input
// and must keep the relative order of the detections they return.
type Filter func([]Detection) []Detection

// Chain applies filters in order.
func Chain(filters ...Filter) Filter {
	return func(in []Detection) []Detection {
		out := in
		for _, f := range filters {
			out = f(out)
		}
		return out
	}
}

// keep returns the detections for which pred holds, in a new slice.
func keep(in []Detection, pred func(Detection) bool) []Detection {
	out := make([]Detection, 0, len(in))
	for _, d := range in {
		if pred(d) {
			out = append(out, d)
		}
	}
	return out
}

// FilterByIndex keeps the detections whose label index is in include.
//
// Arguments:
//   - detections: The list to filter. It is not modified.
//   - include: Label indices to keep.
//
// Returns:
//   - []Detection: The matching detections in their original order.
func FilterByIndex(detections []Detection, include []int) []Detection {
	set := make(map[int]struct{}, len(include))
	for _, i := range include {
		set[i] = struct{}{}
	}
	return keep(detections, func(d Detection) bool {
		_, ok := set[d.LabelIndex]
		return ok
	})
}

// FilterByLabel keeps the detections whose resolved label name is in include.
// Detections whose index has no name in labels are dropped.
func FilterByLabel(detections []Detection, labels []string, include []string) []Detection {
	set := make(map[string]struct{}, len(include))
	for _, name := range include {
		set[name] = struct{}{}
	}
	return keep(detections, func(d Detection) bool {
		if d.LabelIndex < 0 || d.LabelIndex >= len(labels) {
			return false
		}
		_, ok := set[labels[d.LabelIndex]]
		return ok
	})
}

// NewIndexFilter returns a Filter keeping only the given label indices.
func NewIndexFilter(include []int) Filter {
	return func(in []Detection) []Detection { return FilterByIndex(in, include) }
}

// NewLabelFilter returns a Filter keeping only the given label names.
func NewLabelFilter(labels, include []string) Filter {
	return func(in []Detection) []Detection { return FilterByLabel(in, labels, include) }
}

// NewScoreFilter returns a Filter keeping detections with at least the given probability.
func NewScoreFilter(minScore float32) Filter {
	return func(in []Detection) []Detection {
		return keep(in, func(d Detection) bool { return d.Probability >= minScore })
	}
}

// NewAreaFilter returns a Filter keeping detections whose box covers at least minArea,
// in the same units as the detections (pixels or relative).
func NewAreaFilter(minArea float32) Filter {
	return func(in []Detection) []Detection {
		return keep(in, func(d Detection) bool { return d.Width*d.Height >= minArea })
	}
}
