package eventbus

const (
	MonitorStarted         = "monitor.started"
	MonitorStopped         = "monitor.stopped"
	MonitorDisconnected    = "monitor.disconnected"
	MonitorReconnected     = "monitor.reconnected"
	MonitorReconnectFailed = "monitor.reconnect_failed"

	NotifierSent    = "notifier.sent"
	NotifierFailed  = "notifier.failed"
	NotifierDropped = "notifier.dropped"

	ConfigReloaded = "config.reloaded"
)
