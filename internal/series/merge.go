package series

import "sort"

// Merge combines freshly measured points with an existing series.
//
// With force, or without an existing series, the result is newPoints sorted
// by time and any previous data is discarded. Otherwise only points later
// than the existing series' last time are appended, so a rerun never
// duplicates or recomputes a day; the result is sorted. meta always comes
// from the current run. Inputs are not modified.
func Merge(existing *Series, newPoints []DataPoint, meta Meta, force bool) Series {
	var data []DataPoint

	if force || existing == nil {
		data = make([]DataPoint, 0, len(newPoints))
		data = append(data, newPoints...)
	} else {
		lastTime := existing.LastTime()
		data = make([]DataPoint, 0, len(existing.Data)+len(newPoints))
		data = append(data, existing.Data...)
		for _, p := range newPoints {
			if p.Time > lastTime {
				data = append(data, p)
			}
		}
	}

	sort.SliceStable(data, func(i, j int) bool {
		return data[i].Time < data[j].Time
	})

	return Series{Meta: meta, Data: data}
}
