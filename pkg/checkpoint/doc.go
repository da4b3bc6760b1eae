// Package checkpoint records which requests of a job file have already been
// captured, so an interrupted batch can be resumed without repeating them.
//
// Checkpoints are stored in platform-specific data directories:
//   - Linux: ~/.local/share/docshot/checkpoints/
//   - macOS: ~/Library/Application Support/docshot/checkpoints/
//   - Windows: %APPDATA%/docshot/checkpoints/
//
// Every job file gets its own checkpoint, named after the file and a hash of
// its absolute path. Files are saved atomically and carry a version number.
package checkpoint
