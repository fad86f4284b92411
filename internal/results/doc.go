// Package results persists the reconciled hits of one input file as a JSON
// artifact in the results directory, together with the run metadata needed
// to reproduce it: search settings, the rule versions actually used, and the
// statistics of the two-round identification strategy.
package results
