package entity

import "github.com/google/uuid"

// MovementAnalysisMessage is the inbound message from the motion.analysis
// queue requesting analysis of an uploaded media object.
type MovementAnalysisMessage struct {
	JobID     uuid.UUID `json:"job_id"`
	UserID    string    `json:"user_id"`
	MediaKey  string    `json:"media_key"`
	FileSize  int64     `json:"file_size"`
	UserEmail string    `json:"user_email"`
}

// MovementStatusMessage is the outbound message published to the
// motion.status queue after each attempt.
type MovementStatusMessage struct {
	JobID         uuid.UUID `json:"job_id"`
	UserID        string    `json:"user_id"`
	Status        JobStatus `json:"status"`
	MediaKey      string    `json:"media_key"`
	ReportKey     string    `json:"report_key,omitempty"`
	FrameCount    int       `json:"frame_count,omitempty"`
	PairCount     int       `json:"pair_count,omitempty"`
	MovementPairs int       `json:"movement_pairs,omitempty"`
	Undetermined  int       `json:"undetermined_pairs,omitempty"`
	MaxScore      float64   `json:"max_score,omitempty"`
	MeanScore     float64   `json:"mean_score,omitempty"`
	Duration      float64   `json:"duration_seconds,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Attempt       int       `json:"attempt"`
	MaxAttempts   int       `json:"max_attempts"`
}
