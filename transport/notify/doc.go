// Package notify delivers informational session events outside the game
// process. The NATS notifier publishes JSON to per-session subjects; the log
// notifier is used when no broker is configured. Neither influences game
// state and failures are only logged.
package notify
