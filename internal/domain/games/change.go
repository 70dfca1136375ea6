package games

import "time"

// ChangeType is the kind of row change reported by the change channel.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Patch is a partial game as carried by a change event. Nil fields were not sent.
type Patch struct {
	ID        string      `json:"id"`
	HomeTeam  *string     `json:"homeTeam,omitempty"`
	AwayTeam  *string     `json:"awayTeam,omitempty"`
	HomeScore *int        `json:"homeScore,omitempty"`
	AwayScore *int        `json:"awayScore,omitempty"`
	Status    *GameStatus `json:"status,omitempty"`
	Version   int64       `json:"version,omitempty"`
}

// PatchFrom builds a patch carrying every field of g.
func PatchFrom(g Game) Patch {
	home, away := g.Score.Home, g.Score.Away
	homeTeam, awayTeam := g.HomeTeam, g.AwayTeam
	status := g.Status
	return Patch{
		ID:        g.ID,
		HomeTeam:  &homeTeam,
		AwayTeam:  &awayTeam,
		HomeScore: &home,
		AwayScore: &away,
		Status:    &status,
		Version:   g.Version,
	}
}

// Apply merges the fields present in p over g. Fields the patch does not carry are preserved.
func (p Patch) Apply(g Game) Game {
	if g.ID == "" {
		g.ID = p.ID
	}
	if p.HomeTeam != nil {
		g.HomeTeam = *p.HomeTeam
	}
	if p.AwayTeam != nil {
		g.AwayTeam = *p.AwayTeam
	}
	if p.HomeScore != nil {
		g.Score.Home = floorZero(*p.HomeScore)
	}
	if p.AwayScore != nil {
		g.Score.Away = floorZero(*p.AwayScore)
	}
	if p.Status != nil {
		g.Status = *p.Status
	}
	if p.Version > g.Version {
		g.Version = p.Version
	}
	return g
}

// StatusOr returns the patched status, or fallback when the patch carries none.
func (p Patch) StatusOr(fallback GameStatus) GameStatus {
	if p.Status == nil {
		return fallback
	}
	return *p.Status
}

// Change is one notification from the change channel.
type Change struct {
	Type       ChangeType `json:"type"`
	Patch      Patch      `json:"patch"`
	CommitTime time.Time  `json:"commitTime,omitempty"`
}
