package ot

// Apply returns the result of applying op to content. Callers must run
// Validate first; Apply does not re-check invariants.
func Apply(content string, op Operation) (string, error) {
	runes := []rune(content)

	switch op.Kind {
	case Insert:
		text := []rune(op.Text)
		out := make([]rune, 0, len(runes)+len(text))
		out = append(out, runes[:op.Position]...)
		out = append(out, text...)
		out = append(out, runes[op.Position:]...)
		return string(out), nil

	case Delete:
		out := make([]rune, 0, len(runes)-op.Length)
		out = append(out, runes[:op.Position]...)
		out = append(out, runes[op.end():]...)
		return string(out), nil

	default:
		return "", errUnknownKind(op.Kind)
	}
}
