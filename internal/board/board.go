package board

import (
	"errors"
	"fmt"

	"github.com/MJE43/cant-stop-odds/internal/engine"
)

// StandardLengths is the height of each column on the standard board.
var StandardLengths = map[int]int{
	2: 3, 3: 5, 4: 7, 5: 9, 6: 11, 7: 13, 8: 11, 9: 9, 10: 7, 11: 5, 12: 3,
}

var (
	ErrInvalidPlayer   = errors.New("current player must be 1 or 2")
	ErrInvalidSnapshot = errors.New("invalid game snapshot")
)

// Playability mirrors one entry of pairing_playability. Entries are indexed
// like valid_pairings, not available_pairings.
type Playability struct {
	Sum1Playable bool `json:"sum1_playable"`
	Sum2Playable bool `json:"sum2_playable"`
	NeedsChoice  bool `json:"needs_choice"`
}

// GameState is the rules server's snapshot of a game. Object keys arrive as
// strings; encoding/json decodes them straight into the int-keyed maps.
type GameState struct {
	CurrentPlayer int    `json:"current_player"`
	Player1Name   string `json:"player1_name,omitempty"`
	Player2Name   string `json:"player2_name,omitempty"`

	ActiveRunners    []int           `json:"active_runners"`
	Player1Completed []int           `json:"player1_completed"`
	Player2Completed []int           `json:"player2_completed"`
	Player1Permanent engine.Progress `json:"player1_permanent"`
	Player2Permanent engine.Progress `json:"player2_permanent"`
	TempProgress     engine.Progress `json:"temp_progress"`
	ColumnLengths    map[int]int     `json:"column_lengths,omitempty"`

	CurrentDice        []int         `json:"current_dice"`
	AvailablePairings  [][2]int      `json:"available_pairings,omitempty"`
	ValidPairings      [][2]int      `json:"valid_pairings,omitempty"`
	PairingPlayability []Playability `json:"pairing_playability,omitempty"`
	LastChosenPairing  *int          `json:"last_chosen_pairing_index"`

	IsBust   bool `json:"is_bust"`
	GameOver bool `json:"game_over"`
	Winner   *int `json:"winner"`
	CanUndo  bool `json:"can_undo"`
	CanRedo  bool `json:"can_redo"`
}

// Phase is where the current turn stands.
type Phase string

const (
	PhaseAwaitingRoll   Phase = "awaiting_roll"
	PhaseAwaitingChoice Phase = "awaiting_choice"
	PhaseBusted         Phase = "busted"
	PhaseGameOver       Phase = "game_over"
)

// Phase derives the turn phase from the snapshot flags.
func (g *GameState) Phase() Phase {
	switch {
	case g.GameOver:
		return PhaseGameOver
	case g.IsBust:
		return PhaseBusted
	case len(g.CurrentDice) > 0 && g.LastChosenPairing == nil:
		return PhaseAwaitingChoice
	default:
		return PhaseAwaitingRoll
	}
}

// Lengths returns the column heights, falling back to StandardLengths.
func (g *GameState) Lengths() map[int]int {
	if len(g.ColumnLengths) > 0 {
		return g.ColumnLengths
	}
	return StandardLengths
}

// Permanent returns the committed progress of the current player.
func (g *GameState) Permanent() engine.Progress {
	if g.CurrentPlayer == 2 {
		return g.Player2Permanent
	}
	return g.Player1Permanent
}

// Completed is the union of both players' completed columns. A column
// claimed by either player is closed to everyone.
func (g *GameState) Completed() (engine.ColumnSet, error) {
	all := make([]int, 0, len(g.Player1Completed)+len(g.Player2Completed))
	all = append(all, g.Player1Completed...)
	all = append(all, g.Player2Completed...)
	return engine.NewColumnSet(all...)
}

// Validate fails fast on snapshots the engine cannot reason about.
func (g *GameState) Validate() error {
	if g.CurrentPlayer != 1 && g.CurrentPlayer != 2 {
		return fmt.Errorf("%w: got %d", ErrInvalidPlayer, g.CurrentPlayer)
	}
	if len(g.CurrentDice) != 0 && len(g.CurrentDice) != engine.DiceCount {
		return fmt.Errorf("%w: %d dice", ErrInvalidSnapshot, len(g.CurrentDice))
	}
	if len(g.PairingPlayability) > len(g.ValidPairings) {
		return fmt.Errorf("%w: %d playability entries for %d valid pairings",
			ErrInvalidSnapshot, len(g.PairingPlayability), len(g.ValidPairings))
	}
	for c, n := range g.Lengths() {
		if !engine.ValidColumn(c) || n <= 0 {
			return fmt.Errorf("%w: column %d has length %d", ErrInvalidSnapshot, c, n)
		}
	}
	_, err := g.State()
	return err
}

// State converts the snapshot into the engine's view of the current turn.
// Remaining steps are the column length minus the current player's
// committed and uncommitted progress.
func (g *GameState) State() (engine.State, error) {
	active, err := engine.NewColumnSet(g.ActiveRunners...)
	if err != nil {
		return engine.State{}, fmt.Errorf("active runners: %w", err)
	}
	completed, err := g.Completed()
	if err != nil {
		return engine.State{}, fmt.Errorf("completed columns: %w", err)
	}

	temp := g.TempProgress.Clone()
	perm := g.Permanent()
	remaining := make(engine.Progress, engine.NumColumns)
	for c, length := range g.Lengths() {
		if completed.Has(c) {
			continue
		}
		left := length - perm[c] - temp[c]
		if left < 0 {
			left = 0
		}
		remaining[c] = left
	}

	s := engine.State{
		Active:    active,
		Completed: completed,
		Temp:      temp,
		Remaining: remaining,
	}
	if err := s.Validate(); err != nil {
		return engine.State{}, err
	}
	return s, nil
}

// Dice returns the current roll, if any.
func (g *GameState) Dice() (engine.Dice, bool) {
	var d engine.Dice
	if len(g.CurrentDice) != engine.DiceCount {
		return d, false
	}
	copy(d[:], g.CurrentDice)
	return d, true
}

// Candidates returns the pairings of a roll still waiting for a choice,
// with their playability. Flags reported by the server win; missing ones
// are derived from the dice. It returns nil in every other phase.
func (g *GameState) Candidates() ([]engine.Candidate, error) {
	d, ok := g.Dice()
	if !ok || g.Phase() != PhaseAwaitingChoice {
		return nil, nil
	}
	s, err := g.State()
	if err != nil {
		return nil, err
	}
	cands, err := engine.Candidates(d, s.Active, s.Completed)
	if err != nil {
		return nil, err
	}
	if len(g.PairingPlayability) == 0 {
		return cands, nil
	}

	for i := range cands {
		idx := g.validIndex(cands[i].A, cands[i].B)
		if idx < 0 {
			cands[i].PlayableA, cands[i].PlayableB, cands[i].NeedsChoice = false, false, false
			continue
		}
		if idx >= len(g.PairingPlayability) {
			continue
		}
		p := g.PairingPlayability[idx]
		if g.ValidPairings[idx][0] == cands[i].A {
			cands[i].PlayableA, cands[i].PlayableB = p.Sum1Playable, p.Sum2Playable
		} else {
			cands[i].PlayableA, cands[i].PlayableB = p.Sum2Playable, p.Sum1Playable
		}
		cands[i].NeedsChoice = p.NeedsChoice
	}
	return cands, nil
}

func (g *GameState) validIndex(a, b int) int {
	for i, vp := range g.ValidPairings {
		if (vp[0] == a && vp[1] == b) || (vp[0] == b && vp[1] == a) {
			return i
		}
	}
	return -1
}
