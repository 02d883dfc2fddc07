// Package zsl implements zero-shutter-lag capture: serving a capture request
// from a frame that is already buffered instead of waiting for a new one.
//
// Command drains the ring buffer without blocking, drops frames older than
// the lookback window, resolves each remaining frame's metadata and keeps
// the most recent frame the Filter accepts. If none qualifies it delegates
// to a fallback ImageCaptureCommand such as LiveCaptureCommand.
//
// Two filters are provided. AcceptableFilter applies fixed AE/AF
// convergence requirements. AutoFlashFilter follows the metadata stream and
// relaxes the AE requirement once exposure has converged without needing
// flash.
package zsl
