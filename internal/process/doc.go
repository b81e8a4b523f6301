// Package process supervises the GPIO daemon Wormbot depends on.
//
// When hardware.daemon.managed is true, Wormbot launches pigpiod itself
// instead of relying on a system service:
//   - start in the foreground and wait until the socket accepts connections
//   - restart on unexpected exit with exponential backoff
//   - stop with SIGTERM to the process group, then SIGKILL
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:           "pigpiod",
//	    Binary:         "/usr/bin/pigpiod",
//	    Args:           []string{"-g"},
//	    ReadyCheck:     pigpiod.Probe("localhost:8888"),
//	    StartupTimeout: time.Second,
//	})
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
