package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wricardo/monopoly-live/game/board"
)

var (
	ErrBoardNotFound = errors.New("board not found")
)

// DefaultBoard names the embedded layout.
const DefaultBoard = "classic"

// BoardInfo summarizes an available board.
type BoardInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Builtin     bool   `json:"builtin"`
}

// Manager handles board loading and caching. Files named <id>.yaml or
// <id>.yml in the board directory are available by id; "classic" always
// resolves, to a file of that name if present and otherwise to the embedded
// layout.
type Manager struct {
	boardDir string
	boards   map[string]*board.Board
	mu       sync.RWMutex
}

// NewManager creates a board manager. An empty or missing directory leaves
// only the embedded board available.
func NewManager(boardDir string) (*Manager, error) {
	if boardDir != "" {
		info, err := os.Stat(boardDir)
		switch {
		case os.IsNotExist(err):
			boardDir = ""
		case err != nil:
			return nil, fmt.Errorf("failed to stat board directory: %w", err)
		case !info.IsDir():
			return nil, fmt.Errorf("board path is not a directory: %s", boardDir)
		}
	}

	return &Manager{
		boardDir: boardDir,
		boards:   make(map[string]*board.Board),
	}, nil
}

// LoadBoard loads a board by id
func (m *Manager) LoadBoard(id string) (*board.Board, error) {
	if id == "" {
		id = DefaultBoard
	}

	m.mu.RLock()
	if b, ok := m.boards[id]; ok {
		m.mu.RUnlock()
		return b, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.boards[id]; ok {
		return b, nil
	}

	path, err := m.findFile(id)
	if err != nil {
		if errors.Is(err, ErrBoardNotFound) && id == DefaultBoard {
			m.boards[id] = board.Classic()
			return m.boards[id], nil
		}
		return nil, err
	}

	b, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	m.boards[id] = b
	return b, nil
}

// GetDefault returns the default board
func (m *Manager) GetDefault() *board.Board {
	b, err := m.LoadBoard(DefaultBoard)
	if err != nil {
		return board.Classic()
	}
	return b
}

// ListBoards returns information about all available boards
func (m *Manager) ListBoards() ([]*BoardInfo, error) {
	boards := map[string]*BoardInfo{
		DefaultBoard: {
			ID:          DefaultBoard,
			Name:        board.Classic().Name(),
			Description: board.Classic().Description(),
			Builtin:     true,
		},
	}

	if m.boardDir != "" {
		entries, err := os.ReadDir(m.boardDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read board directory: %w", err)
		}

		for _, entry := range entries {
			id, ok := boardID(entry.Name())
			if entry.IsDir() || !ok {
				continue
			}
			b, err := m.LoadBoard(id)
			if err != nil {
				continue
			}
			boards[id] = &BoardInfo{
				ID:          id,
				Name:        b.Name(),
				Description: b.Description(),
			}
		}
	}

	result := make([]*BoardInfo, 0, len(boards))
	for _, info := range boards {
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Manager) findFile(id string) (string, error) {
	if m.boardDir == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("%w: %s", ErrBoardNotFound, id)
	}
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(m.boardDir, id+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrBoardNotFound, id)
}

// LoadFile reads and validates a single board YAML file
func LoadFile(path string) (*board.Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read board file: %w", err)
	}

	b, err := board.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return b, nil
}

func boardID(filename string) (string, bool) {
	for _, ext := range []string{".yaml", ".yml"} {
		if strings.HasSuffix(filename, ext) {
			return strings.TrimSuffix(filename, ext), true
		}
	}
	return "", false
}
