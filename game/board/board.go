package board

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Size is the number of spaces on every board.
const Size = 40

// Kind classifies a space.
type Kind string

const (
	Go       Kind = "go"
	Property Kind = "property"
	Railroad Kind = "railroad"
	Utility  Kind = "utility"
	Tax      Kind = "tax"
	Card     Kind = "card"
	Special  Kind = "special"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case Go, Property, Railroad, Utility, Tax, Card, Special:
		return true
	}
	return false
}

var (
	ErrInvalidBoard = errors.New("invalid board")
)

// Space is one square of the track. For tax spaces Price holds the amount due.
type Space struct {
	Index int    `yaml:"index" json:"index"`
	Name  string `yaml:"name" json:"name"`
	Kind  Kind   `yaml:"kind" json:"kind"`
	Group string `yaml:"group,omitempty" json:"group,omitempty"`
	Price int    `yaml:"price,omitempty" json:"price,omitempty"`
	Rent  int    `yaml:"rent,omitempty" json:"rent,omitempty"`
}

// Board is a validated, read-only track.
type Board struct {
	name        string
	description string
	spaces      [Size]Space
}

// file mirrors the YAML layout of a board definition.
type file struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description"`
	Spaces      []Space `yaml:"spaces" json:"spaces"`
}

//go:embed classic.yaml
var classicYAML []byte

var classic = mustParse(classicYAML)

// Classic returns the embedded standard board.
func Classic() *Board {
	return classic
}

// Parse decodes and validates a YAML board definition.
func Parse(data []byte) (*Board, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBoard, err)
	}
	if err := Validate(f.Name, f.Spaces); err != nil {
		return nil, err
	}

	b := &Board{name: f.Name, description: f.Description}
	copy(b.spaces[:], f.Spaces)
	return b, nil
}

func mustParse(data []byte) *Board {
	b, err := Parse(data)
	if err != nil {
		panic(fmt.Sprintf("board: embedded layout: %v", err))
	}
	return b
}

// Validate checks a list of spaces against the board rules: exactly Size
// spaces indexed 0..Size-1 in order, GO at index 0 and nowhere else, known
// kinds, names present and non-negative prices and rents.
func Validate(name string, spaces []Space) error {
	var errs []error
	if name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(spaces) != Size {
		errs = append(errs, fmt.Errorf("expected %d spaces, got %d", Size, len(spaces)))
	}
	for i, s := range spaces {
		if s.Index != i {
			errs = append(errs, fmt.Errorf("space %d: index %d out of order", i, s.Index))
		}
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("space %d: name is required", i))
		}
		if !s.Kind.Valid() {
			errs = append(errs, fmt.Errorf("space %d: unknown kind %q", i, s.Kind))
		}
		if (i == 0) != (s.Kind == Go) {
			errs = append(errs, fmt.Errorf("space %d: GO must be at index 0 only", i))
		}
		if s.Price < 0 || s.Rent < 0 {
			errs = append(errs, fmt.Errorf("space %d: negative price or rent", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidBoard, errors.Join(errs...))
	}
	return nil
}

// Name returns the board identifier.
func (b *Board) Name() string { return b.name }

// Description returns the human-readable board description.
func (b *Board) Description() string { return b.description }

// SpaceAt returns the space at index, wrapping any integer onto the track.
func (b *Board) SpaceAt(index int) Space {
	i := index % Size
	if i < 0 {
		i += Size
	}
	return b.spaces[i]
}

// Spaces returns a copy of the track in index order.
func (b *Board) Spaces() []Space {
	out := make([]Space, Size)
	copy(out, b.spaces[:])
	return out
}

// MarshalJSON exposes the board as {name, description, spaces}.
func (b *Board) MarshalJSON() ([]byte, error) {
	return json.Marshal(file{Name: b.name, Description: b.description, Spaces: b.Spaces()})
}
