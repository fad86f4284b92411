// Package chrom is the boundary to the chromatogram analyzer.
//
// The peak search itself is an external capability. A SearchContext is bound
// to one chromatogram and one analyzer slot and is stateful, so callers must
// not share it between concurrent searches. ProcessOpener backs each context
// with a long-running analyzer process spoken to over a line-delimited JSON
// protocol on stdin/stdout:
//
//	request:  {"id":1,"targets":[...],"rt_start":1.0,"rt_stop":2.0,"isotopes":2,"tolerance_ppm":10,"fragments":true}
//	response: {"id":1,"hits":[...]} or {"id":1,"error":"..."}
//
// The process exits when its stdin is closed.
package chrom
