package report

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"
)

// ZipBundler writes the analysis report archive: a JSON document with the
// job summary and full per-pair results, plus a flat CSV of the pairs for
// spreadsheet consumers.
type ZipBundler struct{}

func NewZipBundler() *ZipBundler {
	return &ZipBundler{}
}

type reportDocument struct {
	JobID         string                        `json:"job_id"`
	MediaKey      string                        `json:"media_key"`
	FrameCount    int                           `json:"frame_count"`
	PairCount     int                           `json:"pair_count"`
	MovementPairs int                           `json:"movement_pairs"`
	Undetermined  int                           `json:"undetermined_pairs"`
	MaxScore      float64                       `json:"max_score"`
	MeanScore     float64                       `json:"mean_score"`
	MediaDuration float64                       `json:"media_duration_seconds"`
	Results       []entity.ClassificationResult `json:"results"`
}

func (b *ZipBundler) Bundle(ctx context.Context, job *entity.AnalysisJob, results []entity.ClassificationResult, outputPath string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	zipFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer zipFile.Close()

	zw := zip.NewWriter(zipFile)
	defer zw.Close()

	if err := b.writeJSON(zw, job, results); err != nil {
		return err
	}
	if err := b.writeCSV(zw, results); err != nil {
		return err
	}
	return nil
}

func (b *ZipBundler) writeJSON(zw *zip.Writer, job *entity.AnalysisJob, results []entity.ClassificationResult) error {
	w, err := zw.Create("report.json")
	if err != nil {
		return fmt.Errorf("create report.json: %w", err)
	}

	doc := reportDocument{
		JobID:         job.ID.String(),
		MediaKey:      job.MediaKey,
		FrameCount:    job.Summary.FrameCount,
		PairCount:     job.Summary.PairCount,
		MovementPairs: job.Summary.MovementPairs,
		Undetermined:  job.Summary.Undetermined,
		MaxScore:      job.Summary.MaxScore,
		MeanScore:     job.Summary.MeanScore,
		MediaDuration: job.Summary.MediaDuration,
		Results:       results,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode report.json: %w", err)
	}
	return nil
}

func (b *ZipBundler) writeCSV(zw *zip.Writer, results []entity.ClassificationResult) error {
	w, err := zw.Create("pairs.csv")
	if err != nil {
		return fmt.Errorf("create pairs.csv: %w", err)
	}

	cw := csv.NewWriter(w)
	header := []string{"pair_index", "score", "translation", "rotation", "scale_deviation", "significant", "confidence", "matches", "inliers", "reason"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, res := range results {
		row := make([]string, 0, len(header))
		row = append(row, strconv.Itoa(res.PairIndex))
		if res.Score != nil {
			row = append(row,
				formatFloat(res.Score.Value),
				formatFloat(res.Score.Translation),
				formatFloat(res.Score.Rotation),
				formatFloat(res.Score.ScaleDeviation),
			)
		} else {
			row = append(row, "", "", "", "")
		}
		if res.Significant != nil {
			row = append(row, strconv.FormatBool(*res.Significant))
		} else {
			row = append(row, "")
		}
		row = append(row,
			formatFloat(res.Confidence),
			strconv.Itoa(res.Matches),
			strconv.Itoa(res.Inliers),
			string(res.Reason),
		)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
