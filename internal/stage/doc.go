// Package stage holds the primitives shared by pipeline stages: a pollable
// background task and readiness records.
//
// Supervisory loops in convert, quant, and workflow never block on a running
// stage. They start work with Go and check Finished on each tick, collecting
// the outcome through Result once the task reports completion.
package stage
