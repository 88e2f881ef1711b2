// Command analyze prints quick, human-readable statistics about board files:
// space counts by kind and color group, and how often each space is landed
// on during the first turns of a game, based on the two-dice distribution.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/wricardo/monopoly-live/game/board"
	"github.com/wricardo/monopoly-live/game/config"
	"github.com/wricardo/monopoly-live/game/engine"
)

// DefaultTurns is the horizon used when none is given.
const DefaultTurns = 20

// twoDice is the probability of each total of two six-sided dice, indexed by
// the total.
var twoDice = func() [13]float64 {
	var p [13]float64
	for a := 1; a <= 6; a++ {
		for b := 1; b <= 6; b++ {
			p[a+b] += 1.0 / 36
		}
	}
	return p
}()

// Odds is the outcome of walking a single token for a number of turns.
type Odds struct {
	Turns int
	// Landings[i] is the expected number of times space i is landed on.
	Landings [board.Size]float64
	// Laps is the expected number of times the token passes GO.
	Laps float64
}

// Analyze walks a token from GO for the given number of turns.
func Analyze(turns int) Odds {
	odds := Odds{Turns: turns}

	var at [board.Size]float64
	at[0] = 1
	for t := 0; t < turns; t++ {
		var next [board.Size]float64
		for from, p := range at {
			if p == 0 {
				continue
			}
			for steps := 2; steps <= 12; steps++ {
				q := p * twoDice[steps]
				to := (from + steps) % board.Size
				next[to] += q
				if to < from {
					odds.Laps += q
				}
			}
		}
		for i, p := range next {
			odds.Landings[i] += p
		}
		at = next
	}
	return odds
}

// GroupStat summarizes a color group or kind.
type GroupStat struct {
	Name     string
	Spaces   int
	Landings float64
}

// Groups aggregates landings per color group; spaces without a group are
// collected under their kind.
func Groups(b *board.Board, odds Odds) []GroupStat {
	byName := make(map[string]*GroupStat)
	for _, s := range b.Spaces() {
		name := s.Group
		if name == "" {
			name = string(s.Kind)
		}
		g, ok := byName[name]
		if !ok {
			g = &GroupStat{Name: name}
			byName[name] = g
		}
		g.Spaces++
		g.Landings += odds.Landings[s.Index]
	}

	stats := make([]GroupStat, 0, len(byName))
	for _, g := range byName {
		stats = append(stats, *g)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Landings != stats[j].Landings {
			return stats[i].Landings > stats[j].Landings
		}
		return stats[i].Name < stats[j].Name
	})
	return stats
}

func report(w io.Writer, b *board.Board, turns int) {
	odds := Analyze(turns)

	fmt.Fprintf(w, "Name: %s\n", b.Name())
	if b.Description() != "" {
		fmt.Fprintf(w, "Description: %s\n", b.Description())
	}

	kinds := make(map[board.Kind]int)
	for _, s := range b.Spaces() {
		kinds[s.Kind]++
	}
	fmt.Fprintf(w, "Properties: %d, Railroads: %d, Utilities: %d, Taxes: %d, Cards: %d\n",
		kinds[board.Property], kinds[board.Railroad], kinds[board.Utility], kinds[board.Tax], kinds[board.Card])

	fmt.Fprintf(w, "Over %d turns a token passes GO %.2f times (+$%.0f expected)\n",
		turns, odds.Laps, odds.Laps*engine.PassGoBonus)

	fmt.Fprintln(w, "Landings by group:")
	for _, g := range Groups(b, odds) {
		fmt.Fprintf(w, "  %-12s %2d space(s) %6.2f\n", g.Name, g.Spaces, g.Landings)
	}

	spaces := b.Spaces()
	sort.SliceStable(spaces, func(i, j int) bool {
		return odds.Landings[spaces[i].Index] > odds.Landings[spaces[j].Index]
	})
	fmt.Fprintln(w, "Most visited spaces:")
	for _, s := range spaces[:5] {
		fmt.Fprintf(w, "  %2d %-24s %.3f\n", s.Index, s.Name, odds.Landings[s.Index])
	}
}

func main() {
	turns := DefaultTurns
	paths := os.Args[1:]
	if len(paths) == 0 {
		fmt.Printf("\n=== Analyzing %s ===\n", config.DefaultBoard)
		report(os.Stdout, board.Classic(), turns)
		return
	}

	failed := 0
	for _, path := range paths {
		fmt.Printf("\n=== Analyzing %s ===\n", path)
		b, err := config.LoadFile(path)
		if err != nil {
			fmt.Printf("Error loading board: %v\n", err)
			failed++
			continue
		}
		report(os.Stdout, b, turns)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
