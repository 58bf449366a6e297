package influxdb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/accuracy"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/measurement"
)

// MeasurementName is the InfluxDB measurement comparison records are written to.
const MeasurementName = "ct_accuracy"

// ComparisonPoint converts a comparison record into a point.
//
// Tags carry the identity of the record (wandler, base type, folder, phase,
// level, device, reference and mode); fields carry the statistics and the
// ratio error. When class is a supported accuracy class the point also gets
// limit_pct and within.
func ComparisonPoint(r measurement.ComparisonRecord, class float64, at time.Time) *write.Point {
	tags := map[string]string{
		"wandler_key":     r.WandlerKey,
		"base_type":       r.BaseType,
		"folder":          r.Folder,
		"phase":           r.Phase,
		"level":           strconv.Itoa(r.TargetLoad),
		"dut":             r.DUTName,
		"ref":             r.RefName,
		"comparison_mode": string(r.Mode),
		"source_file":     r.SourceFile,
	}
	if r.Manufacturer != "" {
		tags["manufacturer"] = r.Manufacturer
	}
	if r.Burden != "" {
		tags["burden"] = r.Burden
	}

	fields := map[string]interface{}{
		"dut_mean":      r.DUTMean,
		"dut_std":       r.DUTStd,
		"ref_mean":      r.RefMean,
		"ref_std":       r.RefStd,
		"rated_current": r.RatedCurrent,
	}
	if class > 0 {
		res := accuracy.Evaluate(r, class)
		if res.OK {
			fields["error_pct"] = res.ErrorPct
			fields["limit_pct"] = res.LimitPct
			fields["within"] = res.Within
		}
	}
	if _, ok := fields["error_pct"]; !ok {
		if e, ok := accuracy.RatioError(r.DUTMean, r.RefMean); ok {
			fields["error_pct"] = e
		}
	}

	return write.NewPoint(MeasurementName, tags, fields, at)
}

// Export writes one point per record stamped with at and flushes the batch.
//
// Delivery errors surface asynchronously through SetOnError; Export itself
// fails only when the client is not connected or ctx is cancelled.
func (c *Client) Export(ctx context.Context, records []measurement.ComparisonRecord, at time.Time) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.RLock()
	class := c.class
	c.mu.RUnlock()

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("exporting records: %w", err)
		}
		c.writeAPI.WritePoint(ComparisonPoint(r, class, at))
	}
	c.Flush()
	return nil
}
