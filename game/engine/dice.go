package engine

import (
	"math/rand/v2"
	"sync"
)

// Dice produces the two values of one roll, each in 1..DieFaces.
type Dice interface {
	Roll() (int, int)
}

// RandomDice draws from the math/rand/v2 global source, which is safe for
// concurrent use by any number of sessions.
type RandomDice struct{}

func (RandomDice) Roll() (int, int) {
	return rand.IntN(DieFaces) + 1, rand.IntN(DieFaces) + 1
}

// SequenceDice replays a fixed list of rolls, cycling when exhausted.
type SequenceDice struct {
	mu    sync.Mutex
	rolls [][2]int
	next  int
}

// NewSequenceDice returns dice that yield rolls in order.
func NewSequenceDice(rolls ...[2]int) *SequenceDice {
	if len(rolls) == 0 {
		rolls = [][2]int{{1, 1}}
	}
	return &SequenceDice{rolls: rolls}
}

func (d *SequenceDice) Roll() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.rolls[d.next%len(d.rolls)]
	d.next++
	return r[0], r[1]
}

// Drawn returns how many rolls have been taken.
func (d *SequenceDice) Drawn() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.next
}
