package content

import "sort"

// VariantKeys returns the platform keys sorted for stable output.
func (i Item) VariantKeys() []string {
	keys := make([]string, 0, len(i.Payload.Variants))
	for k := range i.Payload.Variants {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
