// Package services wires forge's collaborators into a runnable pipeline.
//
// Registry holds the configured components (scraper, normalizer, coordinator,
// writer, event publisher). Build constructs one from configuration, and
// Service executes requirements against it:
//
//	svc := services.NewService(reg, services.ServiceOptions{Logger: logger})
//	outcome, err := svc.Execute(ctx, spec, 0)
//
// Execute assigns a run ID, prepares context, runs the coordinator, delivers
// the accepted artifact and writes a report for every outcome.
package services
