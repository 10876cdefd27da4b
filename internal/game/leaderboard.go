package game

import "sort"

// LeaderboardEntry ranks one player inside a world.
type LeaderboardEntry struct {
	Rank   int     `json:"rank"`
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Cells  int     `json:"cells"`
	Radius float64 `json:"radius"`
}

// BuildLeaderboard ranks the snapshot's players by score, breaking ties by
// id so repeated calls over the same snapshot agree. limit <= 0 returns the
// full ranking.
func BuildLeaderboard(snap Snapshot, limit int) []LeaderboardEntry {
	cells := make(map[string]int, len(snap.Players))
	largest := make(map[string]float64, len(snap.Players))
	for _, cell := range snap.Cells {
		cells[cell.PlayerID]++
		if cell.Radius > largest[cell.PlayerID] {
			largest[cell.PlayerID] = cell.Radius
		}
	}

	entries := make([]LeaderboardEntry, 0, len(snap.Players))
	for _, player := range snap.Players {
		entries = append(entries, LeaderboardEntry{
			ID:     player.ID,
			Name:   player.Name,
			Score:  player.Score,
			Cells:  cells[player.ID],
			Radius: largest[player.ID],
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].ID < entries[j].ID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
