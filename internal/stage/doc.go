// Package stage provides the named stages that make up the interception
// chain: request and response modification, error conversion, panic
// recovery, access logging and the legacy forwarding stages.
//
// Stages are built from configuration:
//
//	stages, err := stage.Build(cfg.Pipeline.Stages, stage.Options{
//	    Logger: logger,
//	    Bridge: bridge,
//	})
//	if err != nil {
//	    return err
//	}
//	chain := pipeline.NewChain(router, stages)
//
// Programmatic hooks on Options complement the declarative settings of
// each stage and default to no-ops.
package stage
