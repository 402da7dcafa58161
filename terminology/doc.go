// Package terminology holds the CodeSystem and ValueSet model used during a
// build and expands value set compositions into concrete codings.
//
// Every code system is reached through a [Provider]: CodeSystem resources
// loaded from packages, flat vocabularies produced by UMLS ingestion, and
// registries such as the IANA language subtag registry. A [Repository] holds
// providers and value sets by canonical URL; an [Expander] resolves a value
// set against it.
//
// Example usage:
//
//	repo := terminology.NewRepository()
//	stats, err := terminology.LoadDirectory(repo, "./packages/hl7.terminology.r4")
//
//	exp := terminology.NewExpander(repo)
//	codings, err := exp.Expand(ctx, "http://hl7.org/fhir/ValueSet/administrative-gender")
package terminology
