package proc

import (
	"github.com/coreos/go-systemd/v22/daemon"
)

// NotifyReady tells the service manager the daemon is up. A no-op outside
// systemd (NOTIFY_SOCKET unset).
func NotifyReady() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
}

// NotifyStopping signals orderly shutdown has begun.
func NotifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}
