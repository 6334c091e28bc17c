/*
Package log provides structured logging for Burrow using zerolog.

A single package-level Logger is configured once at startup via Init and then
specialised per component:

	logger := log.WithComponent("health")
	log.WithResourceID(logger, ref.ID).Warn().Str("check", "availability").Msg("resource down")

JSON output is meant for production; the console writer is the default for
interactive use. Levels are debug, info, warn and error.
*/
package log
