package semtree

import (
	"sort"

	"github.com/starford/bonsai/internal/graph"
)

// diffFamily turns current and desired child lists into the smallest set of
// family operations that makes current equal desired. Per parent, the longest
// common subsequence of children stays put; everything else is pruned or
// grafted. Prunes come first so no graft ever sees a child that is still
// attached elsewhere, and grafts run in ascending index order so each index
// is valid once the earlier ones have landed.
func diffFamily(current, desired map[string][]string) []graph.FamilyOp {
	parents := make(map[string]struct{}, len(current)+len(desired))
	for p := range current {
		parents[p] = struct{}{}
	}
	for p := range desired {
		parents[p] = struct{}{}
	}
	ordered := make([]string, 0, len(parents))
	for p := range parents {
		ordered = append(ordered, p)
	}
	sort.Strings(ordered)

	var prunes, grafts []graph.FamilyOp
	for _, p := range ordered {
		cur, want := current[p], desired[p]
		kept := lcs(cur, want)
		for _, c := range cur {
			if _, ok := kept[c]; !ok {
				prunes = append(prunes, graph.FamilyOp{Op: graph.OpPrune, Parent: p, Child: c})
			}
		}
		for i, c := range want {
			if _, ok := kept[c]; !ok {
				grafts = append(grafts, graph.FamilyOp{Op: graph.OpGraft, Parent: p, Child: c, Index: i})
			}
		}
	}
	return append(prunes, grafts...)
}

// lcs returns the members of a longest common subsequence of a and b.
func lcs(a, b []string) map[string]struct{} {
	kept := make(map[string]struct{})
	if len(a) == 0 || len(b) == 0 {
		return kept
	}
	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else {
				dp[i][j] = max(dp[i+1][j], dp[i][j+1])
			}
		}
	}
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] == b[j]:
			kept[a[i]] = struct{}{}
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return kept
}
