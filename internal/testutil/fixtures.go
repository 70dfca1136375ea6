package testutil

import (
	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
)

// LiveGame returns an in-progress game fixture with the given score.
func LiveGame(id string, home, away int) domaingames.Game {
	return domaingames.Game{
		ID:       id,
		HomeTeam: "Home " + id,
		AwayTeam: "Away " + id,
		Score:    domaingames.Score{Home: home, Away: away},
		Status:   domaingames.StatusInProgress,
		Version:  1,
	}
}

// ScoreChange builds an update change carrying both scores at version.
func ScoreChange(id string, home, away int, version int64) domaingames.Change {
	return domaingames.Change{
		Type: domaingames.ChangeUpdate,
		Patch: domaingames.Patch{
			ID:        id,
			HomeScore: &home,
			AwayScore: &away,
			Version:   version,
		},
	}
}

// StatusChange builds an update change carrying only a status.
func StatusChange(id string, status domaingames.GameStatus, version int64) domaingames.Change {
	return domaingames.Change{
		Type:  domaingames.ChangeUpdate,
		Patch: domaingames.Patch{ID: id, Status: &status, Version: version},
	}
}
