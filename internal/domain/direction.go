package domain

import "fmt"

// Direction is a bettor's prediction for the reference price.
type Direction int

const (
	DirectionUp Direction = iota + 1
	DirectionDown
)

// String devuelve la representación persistida ("UP" / "DOWN").
func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "UP"
	case DirectionDown:
		return "DOWN"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the direction that makes a bettor on d lose.
func (d Direction) Opposite() Direction {
	if d == DirectionUp {
		return DirectionDown
	}
	return DirectionUp
}

// Valid reports whether d is one of the two closed values.
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// ParseDirection parses "UP"/"DOWN" (case-insensitive).
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "UP", "up", "Up":
		return DirectionUp, nil
	case "DOWN", "down", "Down":
		return DirectionDown, nil
	}
	return 0, fmt.Errorf("domain.ParseDirection: unknown direction %q", s)
}

// BetResult is the individual outcome of a settled bet.
type BetResult int

const (
	ResultNone BetResult = iota
	ResultWin
	ResultLose
	ResultDraw
)

func (r BetResult) String() string {
	switch r {
	case ResultWin:
		return "WIN"
	case ResultLose:
		return "LOSE"
	case ResultDraw:
		return "DRAW"
	default:
		return ""
	}
}

// ParseBetResult parses the persisted or CLI form of a result.
func ParseBetResult(s string) (BetResult, error) {
	switch s {
	case "WIN", "win", "Win":
		return ResultWin, nil
	case "LOSE", "lose", "Lose":
		return ResultLose, nil
	case "DRAW", "draw", "Draw":
		return ResultDraw, nil
	case "":
		return ResultNone, nil
	}
	return ResultNone, fmt.Errorf("domain.ParseBetResult: unknown result %q", s)
}
