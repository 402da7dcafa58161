// Package fhirtx provides offline terminology validation for FHIR data.
//
// A build run pulls terminology packages and a UMLS release, expands every
// bound value set and the code systems they draw from, and writes one
// approximate-membership artifact per value set or code system together with
// a manifest. At runtime the manifest is loaded once into an immutable
// repository and codes are checked without contacting a terminology server.
//
// # Quick Start
//
//	repo, err := validation.Load(ctx, artifact.NewLocalStore("./terminology"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	v := validation.New(repo,
//	    validation.WithPolicy(validation.Policy{MaxRestrictionLevel: 0}),
//	)
//
//	ok, err := v.Validate("male", "", "http://hl7.org/fhir/ValueSet/administrative-gender")
//	switch {
//	case errors.Is(err, fhirtx.ErrUnknownValueSet):
//	    // cannot verify
//	case err != nil:
//	    // prohibited or malformed input
//	}
//
// # Packages
//
//   - registry: package registry download and entry filtering
//   - umls: UMLS release download and MRCONSO ingestion
//   - terminology: CodeSystem and ValueSet model and expansion
//   - builder: artifact build orchestration
//   - artifact: bloom filter artifacts, manifest and stores
//   - validation: runtime repository, policy and Validate
//
// Codings are tested as a single composite key "system|code". System URLs
// may not contain the separator; see [CompositeKey].
package fhirtx
