package sink

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/humanimpact/hii-stats/services/stats/internal/models"
)

// Format is an output encoding for file and object sinks.
type Format string

const (
	FormatGeoJSON Format = "geojson"
	FormatCSV     Format = "csv"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatGeoJSON, "":
		return FormatGeoJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// Ext is the file extension of the format.
func (f Format) Ext() string {
	if f == FormatCSV {
		return ".csv"
	}
	return ".geojson"
}

// ContentType is the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/geo+json"
}

// Encode serializes a batch in the given format.
func Encode(f Format, batch models.OutputBatch) ([]byte, error) {
	if f == FormatCSV {
		return encodeCSV(batch)
	}
	return encodeGeoJSON(batch)
}

// statsProperty is the per-feature statistics object.
func statsProperty(s models.StatRecord) map[string]any {
	return map[string]any{
		"mean":         s.Mean,
		"min":          s.Min,
		"max":          s.Max,
		"std_dev":      s.StdDev,
		"sum_per_area": s.SumPerArea,
	}
}

func encodeGeoJSON(batch models.OutputBatch) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, rec := range batch.Records {
		f := geojson.NewFeature(rec.Region.Geometry)
		f.ID = rec.Region.ID
		for k, v := range rec.Region.Properties {
			f.Properties[k] = v
		}
		f.Properties["id"] = rec.Region.ID
		f.Properties["name"] = rec.Region.Name
		f.Properties["stats"] = statsProperty(rec.Stats)
		if rec.SliceDate != nil {
			f.Properties["slice_date"] = rec.SliceDate.Format(models.DateLayout)
		}
		if rec.Error != "" {
			f.Properties["error"] = rec.Error
		}
		fc.Append(f)
	}
	fc.ExtraMembers = geojson.Properties{
		"task_date": batch.TaskDate.Format(models.DateLayout),
		"scope":     string(batch.Scope),
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode geojson: %w", err)
	}
	return data, nil
}

var csvHeader = []string{"id", "name", "slice_date", "mean", "min", "max", "std_dev", "sum_per_area", "error"}

func encodeCSV(batch models.OutputBatch) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, err
	}

	for _, rec := range batch.Records {
		sliceDate := ""
		if rec.SliceDate != nil {
			sliceDate = rec.SliceDate.Format(models.DateLayout)
		}
		row := []string{
			rec.Region.ID,
			rec.Region.Name,
			sliceDate,
			csvValue(rec.Stats.Mean),
			csvValue(rec.Stats.Min),
			csvValue(rec.Stats.Max),
			csvValue(rec.Stats.StdDev),
			csvValue(rec.Stats.SumPerArea),
			rec.Error,
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	return buf.Bytes(), writer.Error()
}

// csvValue writes absent values as empty cells.
func csvValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
