// Package db stores output batches in PostgreSQL or SQLite, one row per
// region, versioned per (dataset, path).
package db

import (
	"encoding/json"
	"time"

	"github.com/humanimpact/hii-stats/services/stats/internal/models"
)

// StatRow is the stored form of one region's statistics.
type StatRow struct {
	RegionID   string
	RegionName string
	SliceDate  *time.Time
	Mean       *float64
	Min        *float64
	Max        *float64
	StdDev     *float64
	SumPerArea *float64
	Error      *string
	Properties []byte
}

// BuildStatRows flattens a batch into rows.
func BuildStatRows(batch models.OutputBatch) ([]StatRow, error) {
	rows := make([]StatRow, 0, len(batch.Records))
	for _, rec := range batch.Records {
		props, err := json.Marshal(rec.Region.Properties)
		if err != nil {
			return nil, err
		}
		row := StatRow{
			RegionID:   rec.Region.ID,
			RegionName: rec.Region.Name,
			SliceDate:  rec.SliceDate,
			Mean:       rec.Stats.Mean,
			Min:        rec.Stats.Min,
			Max:        rec.Stats.Max,
			StdDev:     rec.Stats.StdDev,
			SumPerArea: rec.Stats.SumPerArea,
			Properties: props,
		}
		if rec.Error != "" {
			e := rec.Error
			row.Error = &e
		}
		rows = append(rows, row)
	}
	return rows, nil
}
