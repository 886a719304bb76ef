package report

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"
)

func sampleJob() *entity.AnalysisJob {
	job := entity.NewAnalysisJob("user-1", "user-1/clip.gif", 1024, 3)
	job.Summary = entity.AnalysisSummary{
		FrameCount:    4,
		PairCount:     3,
		MovementPairs: 1,
		Undetermined:  1,
		MaxScore:      71.5,
		MeanScore:     38.2,
		MediaDuration: 0.4,
	}
	return job
}

func sampleResults() []entity.ClassificationResult {
	yes, no := true, false
	return []entity.ClassificationResult{
		{
			PairIndex:   0,
			Score:       &entity.MovementScore{Value: 4.9, Translation: 0.0002},
			Significant: &no,
			Confidence:  0.91,
			Matches:     120,
			Inliers:     109,
		},
		{
			PairIndex:   1,
			Score:       &entity.MovementScore{Value: 71.5, Translation: 0.04, Rotation: 0.01},
			Significant: &yes,
			Confidence:  0.84,
			Matches:     95,
			Inliers:     80,
		},
		{
			PairIndex: 2,
			Matches:   3,
			Reason:    entity.ReasonInsufficientMatches,
		},
	}
}

func TestBundleProducesArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.zip")
	job := sampleJob()

	err := NewZipBundler().Bundle(context.Background(), job, sampleResults(), path)
	require.NoError(t, err)

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	entries := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		entries[f.Name] = data
	}
	require.Contains(t, entries, "report.json")
	require.Contains(t, entries, "pairs.csv")

	var doc reportDocument
	require.NoError(t, json.Unmarshal(entries["report.json"], &doc))
	assert.Equal(t, job.ID.String(), doc.JobID)
	assert.Equal(t, "user-1/clip.gif", doc.MediaKey)
	assert.Equal(t, 3, doc.PairCount)
	assert.Equal(t, 1, doc.MovementPairs)
	require.Len(t, doc.Results, 3)
	assert.Equal(t, entity.ReasonInsufficientMatches, doc.Results[2].Reason)

	rows, err := csv.NewReader(bytes.NewReader(entries["pairs.csv"])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4) // header + 3 pairs
	assert.Equal(t, "pair_index", rows[0][0])
	assert.Equal(t, "false", rows[1][5])
	assert.Equal(t, "true", rows[2][5])
	// Undetermined pairs leave score columns blank and carry the reason.
	assert.Equal(t, "", rows[3][1])
	assert.Equal(t, "insufficient_matches", rows[3][9])
}

func TestBundleCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "report.zip")
	err := NewZipBundler().Bundle(ctx, sampleJob(), nil, path)
	require.ErrorIs(t, err, context.Canceled)
}
