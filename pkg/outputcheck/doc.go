// Package outputcheck captures the combined output of a child process and lets
// tests block until specific lines appear, or provably do not appear.
//
// # Overview
//
// A Checker owns both ends of an OS pipe (or a PTY pair, see NewPTY). The write
// end is handed to the child as its stdout and stderr. A single background
// goroutine drains the read end, mirrors every byte verbatim to an output sink
// and splits the stream into lines. Assertion calls pop those lines in arrival
// order:
//
//	chk, err := outputcheck.New()
//	if err != nil {
//		return err
//	}
//	defer chk.Close()
//
//	cmd := exec.Command("thermald", "--no-daemon", "--test-mode")
//	cmd.Stdout = chk.WriteEnd()
//	cmd.Stderr = chk.WriteEnd()
//	if err := cmd.Start(); err != nil {
//		return err
//	}
//	if err := chk.WriterAttached(); err != nil {
//		return err
//	}
//
//	if _, err := chk.CheckLine("TRT count 1", time.Second, ""); err != nil {
//		return err
//	}
//
// # Consumption
//
// Popping is destructive. Lines skipped while searching for a match are gone,
// so successive CheckLine calls verify that patterns occur in order, each after
// the previous match.
//
// # End of stream
//
// When every copy of the write end is closed the reader marks the stream as
// ended. Lines already buffered can still be consumed; after that every
// CheckLine fails with ErrEndOfStream. A trailing fragment that was never
// terminated by a newline is discarded.
//
// # Teardown
//
// AssertClosed waits, bounded, for the stream to end on its own. ForceClose
// closes the read end from the outside and waits for the reader goroutine to
// exit; any CheckLine blocked at that moment returns ErrEndOfStream within one
// wake interval.
package outputcheck
