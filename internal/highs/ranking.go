package highs

import (
	"math"
	"sort"
	"time"
)

// RankingEntry is one row of a proximity ranking.
type RankingEntry struct {
	Symbol            string  `json:"symbol"`
	CurrentPrice      float64 `json:"currentPrice"`
	HighPrice         float64 `json:"highPrice"`
	HighTimestamp     int64   `json:"highTimestamp"`
	DistancePercent   float64 `json:"distancePercent"`
	NeededGainPercent float64 `json:"neededGainPercent"`
}

// HighTime returns HighTimestamp as a time.
func (e RankingEntry) HighTime() time.Time {
	return time.UnixMilli(e.HighTimestamp).UTC()
}

func entryFromRecord(r Record) RankingEntry {
	return RankingEntry{
		Symbol:            r.Symbol,
		CurrentPrice:      r.CurrentPrice,
		HighPrice:         r.HighPrice,
		HighTimestamp:     r.HighTimestamp,
		DistancePercent:   r.DistancePercent,
		NeededGainPercent: r.NeededGainPercent,
	}
}

// Rank orders the records of tf by ascending abs(distance), closest to the
// high first. limit <= 0 returns every entry.
func (s *Store) Rank(tf Timeframe, limit int) []RankingEntry {
	entries := s.entries(tf)
	sort.Slice(entries, func(i, j int) bool {
		di, dj := math.Abs(entries[i].DistancePercent), math.Abs(entries[j].DistancePercent)
		if di != dj {
			return di < dj
		}
		return entries[i].Symbol < entries[j].Symbol
	})
	return truncate(entries, limit)
}

// RankFurthest orders the records of tf by descending abs(distance).
func (s *Store) RankFurthest(tf Timeframe, limit int) []RankingEntry {
	entries := s.entries(tf)
	sort.Slice(entries, func(i, j int) bool {
		di, dj := math.Abs(entries[i].DistancePercent), math.Abs(entries[j].DistancePercent)
		if di != dj {
			return di > dj
		}
		return entries[i].Symbol < entries[j].Symbol
	})
	return truncate(entries, limit)
}

// AboveHigh lists entries whose cached price already exceeds the high,
// highest distance first.
func (s *Store) AboveHigh(tf Timeframe) []RankingEntry {
	var out []RankingEntry
	for _, entry := range s.entries(tf) {
		if entry.DistancePercent > 0 {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistancePercent != out[j].DistancePercent {
			return out[i].DistancePercent > out[j].DistancePercent
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func (s *Store) entries(tf Timeframe) []RankingEntry {
	records := s.Records(tf)
	entries := make([]RankingEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, entryFromRecord(record))
	}
	return entries
}

func truncate(entries []RankingEntry, limit int) []RankingEntry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
