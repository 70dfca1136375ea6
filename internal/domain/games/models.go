package games

import (
	"fmt"
	"strings"
	"time"
)

// GameStatus mirrors the shared contract for game lifecycle states.
type GameStatus string

const (
	StatusScheduled  GameStatus = "scheduled"
	StatusInProgress GameStatus = "in-progress"
	StatusCompleted  GameStatus = "completed"
	StatusCancelled  GameStatus = "cancelled"
	StatusPostponed  GameStatus = "postponed"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s GameStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled, StatusPostponed:
		return true
	}
	return false
}

// ParseStatus normalizes a raw status string.
func ParseStatus(raw string) (GameStatus, error) {
	s := GameStatus(strings.ToLower(strings.TrimSpace(raw)))
	if s == "in_progress" {
		s = StatusInProgress
	}
	if !s.Valid() {
		return "", fmt.Errorf("unknown game status %q", raw)
	}
	return s, nil
}

// Team identifies one side of a game.
type Team string

const (
	TeamHome Team = "home"
	TeamAway Team = "away"
)

// ParseTeam normalizes a raw team string.
func ParseTeam(raw string) (Team, error) {
	switch Team(strings.ToLower(strings.TrimSpace(raw))) {
	case TeamHome:
		return TeamHome, nil
	case TeamAway:
		return TeamAway, nil
	}
	return "", fmt.Errorf("unknown team %q", raw)
}

// Score captures home and away points.
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// Add returns the score with delta applied to team, floored at zero.
func (s Score) Add(team Team, delta int) Score {
	switch team {
	case TeamHome:
		s.Home = floorZero(s.Home + delta)
	case TeamAway:
		s.Away = floorZero(s.Away + delta)
	}
	return s
}

func (s Score) String() string {
	return fmt.Sprintf("%d-%d", s.Home, s.Away)
}

func floorZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// Game is the unit of live synchronization.
type Game struct {
	ID               string     `json:"id"`
	HomeTeam         string     `json:"homeTeam"`
	AwayTeam         string     `json:"awayTeam"`
	Score            Score      `json:"score"`
	Status           GameStatus `json:"status"`
	Version          int64      `json:"version"`
	LastReconciledAt time.Time  `json:"lastReconciledAt"`
}

// Live reports whether the game belongs to the tracked set.
func (g Game) Live() bool {
	return g.Status == StatusInProgress
}

// IsLive is a predicate suitable for store listings.
func IsLive(g Game) bool {
	return g.Live()
}
