// Package config provides the board catalogue.
//
// Boards are YAML files in a directory, addressed by file name without the
// extension. The embedded classic board is always available, so a server
// starts without any files on disk. Loaded boards are validated and cached;
// the server picks one at start and shares it read-only with every session.
//
// Usage:
//
//	manager, err := config.NewManager("boards")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	b, err := manager.LoadBoard("classic")
//	boards, err := manager.ListBoards()
package config
