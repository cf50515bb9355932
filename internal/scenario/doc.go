// Package scenario expands per-stage rules into a scenario tree: a root
// block for the first stage, then bf[i] children for every node of stage i.
// Terminal nodes carry the feasibility indicator and the relaxed form of
// their quality constraints.
package scenario
