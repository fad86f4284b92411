package queue

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

const jobColumns = "id, pass, position, source_path, definition_path, derived, status, intermediate_path, chrom_path, result_path, error_message, progress_stage, progress_percent, progress_message, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              int64
		pass            int
		position        int
		sourcePath      string
		definitionPath  string
		derived         int64
		statusStr       string
		intermediate    sql.NullString
		chrom           sql.NullString
		result          sql.NullString
		errorMessage    sql.NullString
		progressStage   sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&pass,
		&position,
		&sourcePath,
		&definitionPath,
		&derived,
		&statusStr,
		&intermediate,
		&chrom,
		&result,
		&errorMessage,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:               id,
		Pass:             pass,
		Position:         position,
		SourcePath:       sourcePath,
		DefinitionPath:   definitionPath,
		Derived:          derived != 0,
		Status:           Status(statusStr),
		IntermediatePath: intermediate.String,
		ChromPath:        chrom.String,
		ResultPath:       result.String,
		ErrorMessage:     errorMessage.String,
		ProgressStage:    progressStage.String,
		ProgressPercent:  progressPercent.Float64,
		ProgressMessage:  progressMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

// makePlaceholders returns "?,?,..." for an IN clause of count values.
func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
