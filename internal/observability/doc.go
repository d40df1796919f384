// Package observability provides logging and metrics functionality for
// the bridge.
//
// # Logging
//
// The Logger interface provides structured logging backed by zap:
//
//	logger, err := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request forwarded",
//	    observability.String("target", "/_api/users"),
//	    observability.Int("status", 200),
//	)
//
// # Metrics
//
// Metrics owns a Prometheus registry. Other packages register their
// collectors against it so a single endpoint exposes everything:
//
//	metrics := observability.NewMetrics("bridge")
//	legacy.InitMetrics(metrics.Registry())
//	http.Handle("/metrics", metrics.Handler())
package observability
