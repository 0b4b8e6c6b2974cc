// Package log provides the diagnostic sink used by ipchanger, built on top of
// the standard slog package.
//
// The package offers two things:
//   - SecureHandler, an slog.Handler wrapper that masks credentials
//     (control-port passwords, authentication cookies) before they reach
//     any output
//   - OpenDiagnosticSink, which opens the append-only diagnostic log file
//     with owner-only permissions and returns a logger bound to it
//
// # Usage
//
//	sink, err := log.OpenDiagnosticSink(path, log.SinkOptions{})
//	if err != nil {
//	    return err
//	}
//	defer sink.Close()
//
//	engine, err := rotation.NewEngine(observer, controller,
//	    rotation.WithLogger(sink.Logger()),
//	)
//
// Every component receives its logger explicitly; nothing in ipchanger
// configures a process-wide logger at package load time.
package log
