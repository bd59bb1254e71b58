// Package pipeline defines the data contracts shared by every stage of a forge run.
//
// # Data flow
//
//	RequirementSpec ─┐
//	                 ├─> Generator ─> CodeArtifact ─> Validator ─> Verdict
//	StructuredContext┘        ^                                      │
//	                          └──────────── feedback (Diagnostics) ──┘
//
// RequirementSpec and StructuredContext are produced upstream (requirement
// collection, scraping and normalization) and consumed read-only. A
// CodeArtifact belongs to exactly one attempt; regeneration produces a new
// artifact rather than mutating the old one. A Verdict is the expected result
// of validation, including failures. Only collaborator breakdowns are reported
// as Go errors.
//
// # Capabilities
//
// Collaborators are expressed as small interfaces (Generator, Validator,
// RequirementCollector, Scraper, Normalizer) so alternative implementations can
// be substituted without touching the coordinator.
package pipeline
