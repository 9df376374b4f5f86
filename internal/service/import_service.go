package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/campusdesk-api/internal/dto"
)

const (
	scheduleColumns   = 10
	scheduleDate      = "01/02/06"
	scheduleClock     = "15:04"
	maxImportBytes    = 5 * 1024 * 1024
	maxCourseNumber   = 16
	maxScheduleName   = 128
	headerFirstColumn = "date"
)

// ImportService loads schedules and equipment in bulk through the same
// services used for manual entry.
type ImportService interface {
	ImportSchedule(ctx context.Context, file io.Reader, dryRun bool, actor ActivityActor) (dto.ScheduleImportResult, error)
	ImportEquipment(ctx context.Context, req dto.EquipmentImportRequest, actor ActivityActor) (dto.EquipmentImportResult, error)
}

type importService struct {
	courses   CourseService
	equipment EquipmentService
	location  *time.Location
	validator *validator.Validate
	activity  ActivityRecorder
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewImportService constructs the import layer.
func NewImportService(courses CourseService, equipment EquipmentService, location *time.Location, validator *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) ImportService {
	if location == nil {
		location = time.UTC
	}
	return &importService{
		courses:   courses,
		equipment: equipment,
		location:  location,
		validator: validator,
		activity:  activity,
		logger:    logger.With().Str("component", "import_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/campusdesk-api/internal/service/import"),
	}
}

type scheduleRow struct {
	line         int
	startsAt     time.Time
	endsAt       *time.Time
	section      string
	scheduleName string
	courseNumber string
	room         string
}

func (s *importService) ImportSchedule(ctx context.Context, file io.Reader, dryRun bool, actor ActivityActor) (dto.ScheduleImportResult, error) {
	ctx, span := s.tracer.Start(ctx, "import.schedule")
	defer span.End()
	span.SetAttributes(attribute.Bool("import.dry_run", dryRun))

	result := dto.ScheduleImportResult{DryRun: dryRun, Errors: []dto.ImportRowError{}}

	data, err := io.ReadAll(io.LimitReader(file, maxImportBytes+1))
	if err != nil {
		return result, fmt.Errorf("read schedule: %w", err)
	}
	if len(data) > maxImportBytes {
		return result, ErrUploadTooLarge
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return result, ErrInvalidImport
	}
	if !isText(mimetype.Detect(data)) {
		return result, ErrUploadTypeNotAllowed
	}

	rows, rowErrors, err := s.parseSchedule(data)
	if err != nil {
		return result, err
	}
	result.RowsRead = len(rows) + len(rowErrors)
	if len(rowErrors) > 0 {
		result.Errors = rowErrors
		span.SetStatus(codes.Error, "invalid rows")
		s.logger.Warn().Int("rows", result.RowsRead).Int("errors", len(rowErrors)).Msg("schedule import rejected")
		return result, ErrInvalidImport
	}
	if dryRun {
		return result, nil
	}

	// Rows are written one at a time through the course service. A failure
	// stops the import and reports what was already written; rerunning the
	// file skips those sessions.
	stop := func(row scheduleRow, err error) (dto.ScheduleImportResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "import incomplete")
		result.Incomplete = true
		result.Errors = append(result.Errors, dto.ImportRowError{Row: row.line, Message: err.Error()})
		s.logger.Error().Err(err).
			Int("row", row.line).
			Int("sessions_created", result.SessionsCreated).
			Msg("schedule import stopped")
		s.recordScheduleImport(ctx, actor, result)
		return result, fmt.Errorf("%w at row %d: %w", ErrImportIncomplete, row.line, err)
	}

	for _, row := range rows {
		course, created, err := s.courses.EnsureCourse(ctx, row.courseNumber, row.scheduleName, actor)
		if err != nil {
			return stop(row, err)
		}
		if created {
			result.CoursesCreated++
		}

		exists, err := s.courses.SessionExists(ctx, course.ID, row.startsAt, row.section)
		if err != nil {
			return stop(row, err)
		}
		if exists {
			result.SessionsSkipped++
			continue
		}

		_, err = s.courses.CreateSession(ctx, dto.SessionCreateRequest{
			CourseID: course.ID,
			Section:  row.section,
			Room:     row.room,
			StartsAt: row.startsAt,
			EndsAt:   row.endsAt,
		}, actor)
		switch {
		case errors.Is(err, ErrDuplicateSession):
			result.SessionsSkipped++
		case err != nil:
			return stop(row, err)
		default:
			result.SessionsCreated++
		}
	}

	span.SetAttributes(attribute.Int("import.sessions_created", result.SessionsCreated))
	s.logger.Info().
		Int("rows", result.RowsRead).
		Int("courses_created", result.CoursesCreated).
		Int("sessions_created", result.SessionsCreated).
		Int("sessions_skipped", result.SessionsSkipped).
		Msg("schedule imported")
	s.recordScheduleImport(ctx, actor, result)
	return result, nil
}

func (s *importService) recordScheduleImport(ctx context.Context, actor ActivityActor, result dto.ScheduleImportResult) {
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "import.schedule",
		EntityType: "import",
		Metadata: map[string]interface{}{
			"rows":             result.RowsRead,
			"sessions_created": result.SessionsCreated,
			"sessions_skipped": result.SessionsSkipped,
			"incomplete":       result.Incomplete,
		},
	})
}

// parseSchedule reads every row before anything is written. Rows are numbered
// from 1 in file order, header included.
func (s *importService) parseSchedule(data []byte) ([]scheduleRow, []dto.ImportRowError, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		rows   []scheduleRow
		errs   []dto.ImportRowError
		line   int
		header = true
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				errs = append(errs, dto.ImportRowError{Row: line, Message: parseErr.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("read schedule: %w", err)
		}

		if header {
			header = false
			if len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), headerFirstColumn) {
				continue
			}
		}
		if isBlankRecord(record) {
			continue
		}

		row, err := s.parseScheduleRow(line, record)
		if err != nil {
			errs = append(errs, dto.ImportRowError{Row: line, Message: err.Error()})
			continue
		}
		rows = append(rows, row)
	}
	return rows, errs, nil
}

func (s *importService) parseScheduleRow(line int, record []string) (scheduleRow, error) {
	if len(record) != scheduleColumns {
		return scheduleRow{}, fmt.Errorf("expected %d columns, found %d", scheduleColumns, len(record))
	}
	field := func(i int) string { return strings.TrimSpace(record[i]) }

	day, err := time.ParseInLocation(scheduleDate, field(0), s.location)
	if err != nil {
		return scheduleRow{}, fmt.Errorf("invalid date %q, expected MM/DD/YY", field(0))
	}
	startsAt, err := atClock(day, field(2))
	if err != nil {
		return scheduleRow{}, fmt.Errorf("invalid time_start %q, expected HH:MM", field(2))
	}

	row := scheduleRow{
		line:         line,
		startsAt:     startsAt.UTC(),
		section:      field(4),
		scheduleName: cleanText(field(5)),
		courseNumber: strings.ToUpper(field(6)),
		room:         cleanText(field(9)),
	}

	if raw := field(3); raw != "" {
		endsAt, err := atClock(day, raw)
		if err != nil {
			return scheduleRow{}, fmt.Errorf("invalid time_end %q, expected HH:MM", raw)
		}
		if !endsAt.After(startsAt) {
			return scheduleRow{}, fmt.Errorf("time_end %s is not after time_start %s", raw, field(2))
		}
		utc := endsAt.UTC()
		row.endsAt = &utc
	}

	switch {
	case row.courseNumber == "":
		return scheduleRow{}, fmt.Errorf("course_number is required")
	case len(row.courseNumber) > maxCourseNumber:
		return scheduleRow{}, fmt.Errorf("course_number %q exceeds %d characters", row.courseNumber, maxCourseNumber)
	case row.scheduleName == "":
		return scheduleRow{}, fmt.Errorf("schedule_name is required")
	case len(row.scheduleName) > maxScheduleName:
		return scheduleRow{}, fmt.Errorf("schedule_name exceeds %d characters", maxScheduleName)
	}
	return row, nil
}

func atClock(day time.Time, clock string) (time.Time, error) {
	parsed, err := time.Parse(scheduleClock, clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, day.Location()), nil
}

func isBlankRecord(record []string) bool {
	for _, value := range record {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

func isText(detected *mimetype.MIME) bool {
	for mime := detected; mime != nil; mime = mime.Parent() {
		if mime.Is("text/plain") {
			return true
		}
	}
	return false
}

func (s *importService) ImportEquipment(ctx context.Context, req dto.EquipmentImportRequest, actor ActivityActor) (dto.EquipmentImportResult, error) {
	ctx, span := s.tracer.Start(ctx, "import.equipment")
	defer span.End()

	result := dto.EquipmentImportResult{DryRun: req.DryRun, Created: []string{}, Duplicates: []string{}}
	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return result, err
	}

	numbers := uniqueNumbers(req.Numbers)
	if len(numbers) == 0 {
		return result, validationError("Numbers", "required")
	}
	span.SetAttributes(attribute.Int("import.numbers", len(numbers)))

	if req.ItemTypeID != nil {
		types, err := s.equipment.ListItemTypes(ctx)
		if err != nil {
			return result, err
		}
		found := false
		for _, itemType := range types {
			if itemType.ID == *req.ItemTypeID {
				found = true
				break
			}
		}
		if !found {
			return result, ErrItemTypeNotFound
		}
	}

	existing, err := s.equipment.ExistingNumbers(ctx, numbers)
	if err != nil {
		return result, err
	}
	if len(existing) > 0 {
		result.Duplicates = existing
		span.SetStatus(codes.Error, "duplicate numbers")
		return result, ErrDuplicateItem
	}

	if req.DryRun {
		result.Created = numbers
		return result, nil
	}

	for _, number := range numbers {
		if _, err := s.equipment.CreateItem(ctx, dto.EquipmentItemCreateRequest{
			Number:      number,
			Description: req.Description,
			ItemTypeID:  req.ItemTypeID,
		}, actor); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "create item failed")
			return result, fmt.Errorf("item %s: %w", number, err)
		}
		result.Created = append(result.Created, number)
	}

	s.logger.Info().Int("created", len(result.Created)).Msg("equipment imported")
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "import.equipment",
		EntityType: "import",
		Metadata:   map[string]interface{}{"created": len(result.Created)},
	})
	return result, nil
}
