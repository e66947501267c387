package webhook

// WebSocketNotifier defines the interface for real-time notifications
type WebSocketNotifier interface {
	BroadcastNotification(event string, data interface{})
}
