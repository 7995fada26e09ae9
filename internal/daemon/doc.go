// Package daemon starts a daemon under test with its combined output attached
// to an outputcheck.Checker, and stops it the way the test suite expects.
//
// Stopping sends SIGTERM (or the configured signal) to the daemon and waits
// for it to exit. A daemon that does not exit in time gets SIGABRT so it
// leaves a core dump, and Stop reports ErrKilled. When the daemon runs under
// valgrind or strace, signals go to the wrapped process, not to the wrapper.
//
//	cfg := daemon.ConfigFromEnv("thermald", "--no-daemon", "--test-mode", "--loglevel=debug")
//	d, err := daemon.Start(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer d.Kill()
//
//	if _, err := d.Output().CheckLine("Unsupported cpu model", 5*time.Second, ""); err != nil {
//		return err
//	}
//	return d.Stop(0)
package daemon
