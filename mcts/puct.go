package mcts

import "math"

// Default exploration constants from the AlphaZero paper.
const (
	DefaultCInit = 1.25
	DefaultCBase = 19652
)

// Score ranks a child for selection using the PUCT rule.
//
// A child whose subtree is resolved scores exactly its terminal outcome for
// the player who moved into it; the exploration terms are bypassed so a
// solved win always dominates selection. Otherwise the score is the visit
// average of backed-up rewards plus a prior term whose coefficient grows
// with the parent visit count:
//
//	c = ln((N + cBase + 1) / cBase) + cInit
//	score = c * sqrt(N) / (n + 1) * prior + totalReward / n
//
// The exploitation term is zero while the child is unvisited; the branch is
// explicit to keep the division well-defined.
//
// Score is a pure function: identical inputs produce the identical float.
func Score(child *Node, parentExploreCount int, cInit, cBase float64) float64 {
	if child.Outcome != nil {
		return child.Outcome[child.Player]
	}

	n := float64(parentExploreCount)
	c := math.Log((n+cBase+1)/cBase) + cInit
	c *= math.Sqrt(n) / float64(child.ExploreCount+1)

	priorScore := c * child.Prior
	valueScore := 0.0
	if child.ExploreCount > 0 {
		valueScore = child.TotalReward / float64(child.ExploreCount)
	}

	return priorScore + valueScore
}
