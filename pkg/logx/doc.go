// Package logx configures pagewatch's structured logging.
//
// A thin wrapper (logx.Logger) over zerolog keeps:
//   - console output readable (short timestamp + short caller)
//   - file output JSON-structured and rotated by size
//   - an optional Telegram sink (min-level + rate limiting)
package logx
