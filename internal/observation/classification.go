package observation

// MergeClassifications returns the union of existing and incoming. Existing
// entries keep their position; unseen incoming entries append in the order
// given. Nothing is removed.
func MergeClassifications(existing, incoming []string) []string {
	if len(incoming) == 0 {
		if existing == nil {
			return nil
		}
		return append([]string(nil), existing...)
	}
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, c := range existing {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		merged = append(merged, c)
	}
	for _, c := range incoming {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		merged = append(merged, c)
	}
	return merged
}
