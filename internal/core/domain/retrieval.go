package domain

import "sort"

// SortRetrieved orders results by ascending distance, then ordinal, then
// chunk ID, so equal scores always come back in the same order.
func SortRetrieved(results []RetrievedChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.Ordinal != b.Ordinal {
			return a.Ordinal < b.Ordinal
		}
		return a.ChunkID < b.ChunkID
	})
}
