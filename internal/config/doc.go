// Package config provides the bridge configuration model, YAML loading
// with environment variable substitution, validation and file watching
// for hot reload.
//
// Load configuration from a YAML file:
//
//	cfg, err := config.LoadConfig("bridge.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    return err
//	}
//
// Watch for configuration changes:
//
//	watcher, err := config.NewWatcher(path, func(cfg *config.BridgeConfig) {
//	    // rebuild the pipeline
//	}, config.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	err = watcher.Start(ctx)
package config
