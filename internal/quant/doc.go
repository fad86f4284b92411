// Package quant schedules the per-analyte searches of one quantification run.
//
// A Scheduler owns a fixed pool of analyzer slots, one chrom.SearchContext
// each, and a flat table of work items keyed by lipid.Key. A single
// supervisory loop ticks at the configured poll interval: it reclaims slots
// whose worker task has finished, records the produced hits, and fills free
// slots with waiting items in insertion order. Worker tasks never touch the
// shared tables; each hands its result back exactly once through its task.
//
// Items whose rule asks for fragment evidence first (MSn-first) and whose
// search found none are deferred. When the first round drains, a retention
// time model is fitted per class and modification from confidently resolved
// siblings, and deferred items with a usable prediction are searched once
// more around the predicted time. There is no third round.
package quant
