// Package service provides the business logic layer for the game server.
//
// The service package implements:
//   - Session lifecycle (create, get, list, delete)
//   - Seating players and resolving turns through the registry's
//     per-session mutation scope
//   - Connectivity bookkeeping for channel connects and disconnects
//   - Lifecycle notifications (session became active, a turn began)
//
// Core Types:
//
// GameService is the interface consumed by every transport (REST, WebSocket,
// MCP). SessionManager abstracts the registry and Notifier the external
// notification sink.
//
// Usage:
//
//	svc := service.NewGameService(sessionManager, board.Classic(),
//		service.WithNotifier(notifier))
//
//	info, _ := svc.CreateSession(ctx)
//	joined, err := svc.Join(ctx, info.ID, "Ada")
//	rolled, err := svc.Roll(ctx, info.ID, joined.Player.ID)
//
// Error Handling:
//
// Rule violations surface as the engine's sentinel errors and unknown
// sessions as the registry's not-found error; callers match them with
// errors.Is. A rejected operation leaves the session unchanged.
package service
