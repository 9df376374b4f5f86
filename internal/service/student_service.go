package service

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/campusdesk-api/internal/dto"
	"github.com/noah-isme/campusdesk-api/internal/models"
	"github.com/noah-isme/campusdesk-api/internal/repository"
)

const dateLayout = "2006-01-02"

// StudentLookup is the outcome of resolving a scanned identifier. Found is
// false when no student carries the identifier.
type StudentLookup struct {
	Student models.Student
	Found   bool
}

// StudentService manages student records.
type StudentService interface {
	Create(ctx context.Context, req dto.StudentCreateRequest, actor ActivityActor) (dto.StudentResponse, error)
	Get(ctx context.Context, id uint) (dto.StudentResponse, error)
	GetByIDNumber(ctx context.Context, idNumber string) (dto.StudentResponse, error)
	Lookup(ctx context.Context, identifier string) (StudentLookup, error)
	List(ctx context.Context, req dto.StudentListRequest) (dto.StudentListResponse, error)
	Update(ctx context.Context, id uint, req dto.StudentUpdateRequest, actor ActivityActor) (dto.StudentResponse, error)
	UploadPhoto(ctx context.Context, id uint, file *multipart.FileHeader, actor ActivityActor) (dto.StudentResponse, error)
}

type studentService struct {
	repo      repository.StudentRepository
	photos    PhotoUploader
	validator *validator.Validate
	activity  ActivityRecorder
	location  *time.Location
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewStudentService constructs the student service.
func NewStudentService(repo repository.StudentRepository, photos PhotoUploader, validator *validator.Validate, activity ActivityRecorder, location *time.Location, logger zerolog.Logger) StudentService {
	if location == nil {
		location = time.UTC
	}
	return &studentService{
		repo:      repo,
		photos:    photos,
		validator: validator,
		activity:  activity,
		location:  location,
		logger:    logger.With().Str("component", "student_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/campusdesk-api/internal/service/student"),
	}
}

func (s *studentService) Create(ctx context.Context, req dto.StudentCreateRequest, actor ActivityActor) (dto.StudentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "student.create")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.StudentResponse{}, err
	}

	idNumber := normalizeIdentifier(req.IDNumber)
	if idNumber == "" {
		return dto.StudentResponse{}, validationError("IDNumber", "required")
	}

	student := models.Student{
		IDNumber:      idNumber,
		FirstName:     cleanText(req.FirstName),
		PreferredName: cleanText(req.PreferredName),
		LastName:      cleanText(req.LastName),
		Email:         strings.ToLower(strings.TrimSpace(req.Email)),
		Status:        models.StudentStatusActive,
	}

	if req.EnrolledUntil != "" {
		until, err := s.parseDate(req.EnrolledUntil)
		if err != nil {
			return dto.StudentResponse{}, err
		}
		student.EnrolledUntil = &until
	}

	if err := s.repo.Create(ctx, &student); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.StudentResponse{}, ErrDuplicateStudent
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		s.logger.Error().Err(err).Str("id_number", idNumber).Msg("failed to create student")
		return dto.StudentResponse{}, err
	}

	span.SetAttributes(attribute.Int("student.id", int(student.ID)))
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "student.created",
		EntityType: "student",
		EntityID:   &student.ID,
		Metadata:   map[string]interface{}{"id_number": student.IDNumber},
	})

	return dto.NewStudentResponse(student), nil
}

func (s *studentService) Get(ctx context.Context, id uint) (dto.StudentResponse, error) {
	student, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return dto.StudentResponse{}, mapStudentError(err)
	}
	return dto.NewStudentResponse(student), nil
}

func (s *studentService) GetByIDNumber(ctx context.Context, idNumber string) (dto.StudentResponse, error) {
	student, err := s.repo.GetByIDNumber(ctx, normalizeIdentifier(idNumber))
	if err != nil {
		return dto.StudentResponse{}, mapStudentError(err)
	}
	return dto.NewStudentResponse(student), nil
}

func (s *studentService) Lookup(ctx context.Context, identifier string) (StudentLookup, error) {
	idNumber := normalizeIdentifier(identifier)
	if idNumber == "" {
		return StudentLookup{}, nil
	}

	student, err := s.repo.GetByIDNumber(ctx, idNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StudentLookup{}, nil
		}
		return StudentLookup{}, err
	}
	return StudentLookup{Student: student, Found: true}, nil
}

func (s *studentService) List(ctx context.Context, req dto.StudentListRequest) (dto.StudentListResponse, error) {
	filter := repository.StudentFilter{
		Page:   repository.Page{Page: req.Page, PageSize: req.PageSize},
		Search: strings.TrimSpace(req.Search),
		Status: strings.TrimSpace(req.Status),
	}

	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.StudentListResponse{}, err
	}

	items := make([]dto.StudentResponse, 0, len(students))
	for _, student := range students {
		items = append(items, dto.NewStudentResponse(student))
	}

	return dto.StudentListResponse{
		Items:      items,
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
	}, nil
}

func (s *studentService) Update(ctx context.Context, id uint, req dto.StudentUpdateRequest, actor ActivityActor) (dto.StudentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "student.update")
	defer span.End()
	span.SetAttributes(attribute.Int("student.id", int(id)))

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.StudentResponse{}, err
	}

	updates := map[string]interface{}{}
	if req.FirstName != nil {
		updates["first_name"] = cleanText(*req.FirstName)
	}
	if req.PreferredName != nil {
		updates["preferred_name"] = cleanText(*req.PreferredName)
	}
	if req.LastName != nil {
		updates["last_name"] = cleanText(*req.LastName)
	}
	if req.Email != nil {
		updates["email"] = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.EnrolledUntil != nil {
		if *req.EnrolledUntil == "" {
			updates["enrolled_until"] = nil
		} else {
			until, err := s.parseDate(*req.EnrolledUntil)
			if err != nil {
				return dto.StudentResponse{}, err
			}
			updates["enrolled_until"] = until
		}
	}

	student, err := s.repo.Update(ctx, id, updates)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "update failed")
		}
		return dto.StudentResponse{}, mapStudentError(err)
	}

	fields := make([]string, 0, len(updates))
	for key := range updates {
		fields = append(fields, key)
	}
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "student.updated",
		EntityType: "student",
		EntityID:   &student.ID,
		Metadata:   map[string]interface{}{"fields": fields},
	})

	return dto.NewStudentResponse(student), nil
}

func (s *studentService) UploadPhoto(ctx context.Context, id uint, file *multipart.FileHeader, actor ActivityActor) (dto.StudentResponse, error) {
	student, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return dto.StudentResponse{}, mapStudentError(err)
	}

	if s.photos == nil {
		return dto.StudentResponse{}, ErrStorageUnavailable
	}

	url, err := s.photos.Upload(ctx, file, student.IDNumber)
	if err != nil {
		return dto.StudentResponse{}, err
	}

	updated, err := s.repo.Update(ctx, id, map[string]interface{}{"photo_url": url})
	if err != nil {
		return dto.StudentResponse{}, mapStudentError(err)
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "student.photo_uploaded",
		EntityType: "student",
		EntityID:   &updated.ID,
	})

	return dto.NewStudentResponse(updated), nil
}

// parseDate reads a calendar date as midnight in the school's time zone.
func (s *studentService) parseDate(value string) (time.Time, error) {
	parsed, err := time.ParseInLocation(dateLayout, strings.TrimSpace(value), s.location)
	if err != nil {
		return time.Time{}, validationError("EnrolledUntil", "datetime")
	}
	return parsed.UTC(), nil
}

func mapStudentError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrStudentNotFound
	}
	return err
}
