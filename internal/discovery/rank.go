package discovery

import "sort"

// Rank orders candidates by ascending binding score, breaking ties by
// target name.
func Rank(candidates map[string]*DrugCandidate) []*DrugCandidate {
	out := make([]*DrugCandidate, 0, len(candidates))
	for _, d := range candidates {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BindingScore != out[j].BindingScore {
			return out[i].BindingScore < out[j].BindingScore
		}
		return out[i].Target < out[j].Target
	})
	return out
}
