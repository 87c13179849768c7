// Package engine orchestrates petrophysical workflows. A workflow validates
// its wells, computes calculation curves through the shared cache under a
// concurrency limit, runs reservoir analysis, and delegates report and
// export generation to collaborators, streaming progress as it goes.
package engine
