package changefeed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
)

// notifyPayload is the JSON body published by the games_notify trigger.
type notifyPayload struct {
	Op       string       `json:"op"`
	CommitTS time.Time    `json:"commit_ts"`
	Record   notifyRecord `json:"record"`
}

type notifyRecord struct {
	ID        recordID `json:"id"`
	HomeTeam  *string  `json:"home_team"`
	AwayTeam  *string  `json:"away_team"`
	HomeScore *int     `json:"home_score"`
	AwayScore *int     `json:"away_score"`
	Status    *string  `json:"status"`
	Version   int64    `json:"version"`
}

// recordID accepts text or numeric primary keys.
type recordID string

func (r *recordID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = recordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("record id: %w", err)
	}
	*r = recordID(n.String())
	return nil
}

// DecodePayload turns a NOTIFY payload into a Change.
func DecodePayload(raw string) (domaingames.Change, error) {
	var p notifyPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domaingames.Change{}, fmt.Errorf("decode notify payload: %w", err)
	}

	var ct domaingames.ChangeType
	switch strings.ToUpper(p.Op) {
	case "INSERT":
		ct = domaingames.ChangeInsert
	case "UPDATE":
		ct = domaingames.ChangeUpdate
	case "DELETE":
		ct = domaingames.ChangeDelete
	default:
		return domaingames.Change{}, fmt.Errorf("unknown notify op %q", p.Op)
	}

	id := string(p.Record.ID)
	if id == "" {
		return domaingames.Change{}, fmt.Errorf("notify payload missing record id")
	}

	patch := domaingames.Patch{
		ID:        id,
		HomeTeam:  p.Record.HomeTeam,
		AwayTeam:  p.Record.AwayTeam,
		HomeScore: p.Record.HomeScore,
		AwayScore: p.Record.AwayScore,
		Version:   p.Record.Version,
	}
	if p.Record.Status != nil {
		status, err := domaingames.ParseStatus(*p.Record.Status)
		if err != nil {
			return domaingames.Change{}, fmt.Errorf("notify payload for %s: %w", id, err)
		}
		patch.Status = &status
	}

	return domaingames.Change{Type: ct, Patch: patch, CommitTime: p.CommitTS}, nil
}
