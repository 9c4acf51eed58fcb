// File: internal/taint/evidence.go
package taint

import "github.com/xkilldash9x/taintgrid/api/schemas"

// EvidenceFor splits value into tainted and untainted parts according to
// ranges, producing the wire form consumed by vulnerability reporting.
// Sources are deduplicated into a table and referenced by index from the
// tainted parts. Ranges are assumed normalized (sorted, no same-source
// overlap); offsets beyond the value are clamped for rendering only.
func EvidenceFor(value string, ranges []TaintRange) schemas.Evidence {
	ev := schemas.Evidence{Value: value}
	if len(ranges) == 0 {
		ev.Parts = []schemas.ValuePart{{Value: value}}
		return ev
	}

	sourceIndex := make(map[Source]int, len(ranges))
	pos := 0
	for _, r := range ranges {
		start := min(r.Start(), len(value))
		end := min(r.End(), len(value))
		if start > pos {
			ev.Parts = append(ev.Parts, schemas.ValuePart{Value: value[pos:start]})
		}
		if end <= start {
			continue
		}

		src := r.Source()
		idx, ok := sourceIndex[src]
		if !ok {
			idx = len(ev.Sources)
			sourceIndex[src] = idx
			ev.Sources = append(ev.Sources, schemas.SourceRef{
				Name:   src.Name(),
				Origin: src.Origin().String(),
				Value:  src.Value(),
			})
		}
		ev.Parts = append(ev.Parts, schemas.ValuePart{
			Value:  value[start:end],
			Source: &idx,
		})
		pos = end
	}
	if pos < len(value) {
		ev.Parts = append(ev.Parts, schemas.ValuePart{Value: value[pos:]})
	}
	return ev
}
