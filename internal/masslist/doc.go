// Package masslist loads analyte-definition files into ordered work items.
//
// A definition file is YAML listing lipid classes, the adducts searched for
// each class, and the analytes of the class. Every (class, analyte, adduct)
// triple becomes one lipid.Item in file order, which is also the report order.
// Items whose target m/z agree within the isobar tolerance and whose
// retention-time windows overlap are linked as isobaric alternatives so the
// scheduler can search them in a single pass.
package masslist
