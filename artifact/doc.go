// Package artifact defines the build output shared by the builder and the
// runtime validator: membership sets (bloom filters or flat tables), the
// manifest listing them, the code system restriction metadata, and the
// stores they are written to.
//
// Layout of a store:
//
//	manifest.yml                      ordered list of Entry
//	metadata.yml                      code system URL -> versions, restriction_level
//	hl7_org_fhir_ValueSet_x.bloom     one file per value set or code system
package artifact
