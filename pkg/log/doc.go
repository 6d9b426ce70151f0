// Package log provides the structured logging abstraction for weir.
//
// The [Logger] interface decouples the rest of the module from any logging
// library. Two adapters are bundled: [NewZerologAdapter] for console output
// and [NewRotatingFileAdapter] for JSON output to a size-rotated file.
// [NewNoopLogger] discards everything and is the default when weir is
// embedded as a library.
package log
