// Package logx configures aprelay's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional Discord sink that mirrors warnings to an ops channel
package logx
