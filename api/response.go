package api

import "encoding/json"

// SubmitResponse acknowledges an enqueued submission. The verdict
// arrives later through the callback or the result endpoint.
type SubmitResponse struct {
	Exercise     ExerciseRef `json:"exercise"`
	SubmissionID string      `json:"submission_id"`
	JobID        string      `json:"job_id"`
}

type ExistsResponse struct {
	Exercise ExerciseRef `json:"exercise"`
	Exists   bool        `json:"exists"`
}

type UploadResponse struct {
	Exercise ExerciseRef `json:"exercise"`
	Version  string      `json:"schema_version"`
}

// ResultResponse carries the stored verdict payload of a submission.
type ResultResponse struct {
	SubmissionID string          `json:"submission_id"`
	Result       json.RawMessage `json:"result"`
}
