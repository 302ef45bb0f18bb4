// Package api defines the wire types of the judge's HTTP surface and
// of the verdict payload delivered to the submission tracker.
package api

// Multipart form fields of the submit and upload endpoints.
const (
	FieldAgency      = "agency_name"
	FieldDepartment  = "agency_department_name"
	FieldExercise    = "exercise_name"
	FieldVersion     = "exercise_version"
	FieldContentHash = "exercise_content_hash"

	FieldSubmissionID = "submission_id"
	FieldToken        = "token"
	FieldFile         = "file"
)

// ExerciseRef names one immutable exercise definition.
type ExerciseRef struct {
	Agency      string `json:"agency_name"`
	Department  string `json:"agency_department_name"`
	Name        string `json:"exercise_name"`
	Version     string `json:"exercise_version"`
	ContentHash string `json:"exercise_content_hash"`
}
