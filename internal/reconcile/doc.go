// Package reconcile turns a run's raw hits into one consistent hit list per
// lipid class.
//
// Four rules run in order, each over the whole collection:
//
//  1. Cutoff: probes below a per-mille fraction of the run's base peak are
//     dropped; a hit with no probes left is dropped.
//  2. Isobars: hits of isobaric alternatives at the same retention time
//     compete and only the rule's most likely explanation survives.
//  3. Reunification: a split hit whose partner is gone is replaced by its
//     pre-split snapshot.
//  4. Annotation: double-bond positions are attached where the retention
//     time and, for multi-chain classes, the fragment chains agree.
//
// Each rule and the whole pipeline are fixed points: applying them to their
// own output changes nothing.
package reconcile
