package ot

// Transform returns the variant of op that preserves its original intent
// once other has already been applied ahead of it on the same baseline
// (spec.md §4.1). The tie-break for two inserts at the same position is
// deterministic but asymmetric: other is treated as having landed first,
// so op always shifts right. This is safe only because the document
// authority is the sole transformer (DESIGN.md, Open Question 3) — every
// client operation is transformed here before a peer ever sees it.
func Transform(op, other Operation) Operation {
	if other.IsNoOp() {
		return op
	}

	result := op

	switch other.Kind {
	case Insert:
		shift := runeLen(other.Text)
		if other.Position <= op.Position {
			result.Position = op.Position + shift
		}

	case Delete:
		p, e := other.Position, other.end()
		switch {
		case e <= op.Position:
			result.Position = op.Position - other.Length
		case p < op.Position && op.Position < e:
			result.Position = p
		}

		if op.Kind == Delete {
			opEnd := op.Position + op.Length
			overlapStart, overlapEnd := max(p, op.Position), min(e, opEnd)
			if overlapEnd > overlapStart {
				overlap := overlapEnd - overlapStart
				if p <= op.Position && e >= opEnd {
					result.Length = 0
				} else {
					result.Length = op.Length - overlap
					if p <= op.Position {
						result.Position = p
					}
				}
			}
		}
	}

	if result.Position < 0 {
		result.Position = 0
	}
	if result.Length < 0 {
		result.Length = 0
	}
	return result
}

func runeLen(s string) int {
	return len([]rune(s))
}
