package service

import (
	"context"
	"errors"
	"strconv"
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
	"github.com/noah-isme/campusdesk-api/internal/observability"
	"github.com/noah-isme/campusdesk-api/internal/policy"
	"github.com/noah-isme/campusdesk-api/internal/repository"
)

// LoanService lends equipment to students and takes it back.
type LoanService interface {
	Checkout(ctx context.Context, req dto.CheckoutRequest, actor ActivityActor) (dto.LoanResponse, error)
	Return(ctx context.Context, loanID uint, req dto.ReturnRequest, actor ActivityActor) (dto.LoanResponse, error)
	ReturnByNumber(ctx context.Context, req dto.ReturnByNumberRequest, actor ActivityActor) (dto.LoanResponse, error)
	Extend(ctx context.Context, loanID uint, req dto.ExtendLoanRequest, actor ActivityActor) (dto.LoanResponse, error)
	Get(ctx context.Context, loanID uint) (dto.LoanResponse, error)
	ListForStudent(ctx context.Context, idNumber string, openOnly bool) ([]dto.LoanResponse, error)
}

type loanService struct {
	students  StudentFinder
	items     repository.EquipmentRepository
	kits      repository.KitRepository
	loans     repository.LoanRepository
	due       policy.DuePolicy
	rate      policy.RatePolicy
	validator *validator.Validate
	publisher EventPublisher
	activity  ActivityRecorder
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewLoanService constructs the loan engine.
func NewLoanService(
	students StudentFinder,
	items repository.EquipmentRepository,
	kits repository.KitRepository,
	loans repository.LoanRepository,
	due policy.DuePolicy,
	rate policy.RatePolicy,
	validator *validator.Validate,
	publisher EventPublisher,
	activity ActivityRecorder,
	logger zerolog.Logger,
) LoanService {
	return &loanService{
		students:  students,
		items:     items,
		kits:      kits,
		loans:     loans,
		due:       due,
		rate:      rate,
		validator: validator,
		publisher: publisher,
		activity:  activity,
		logger:    logger.With().Str("component", "loan_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/campusdesk-api/internal/service/loan"),
		now:       time.Now,
	}
}

func (s *loanService) Checkout(ctx context.Context, req dto.CheckoutRequest, actor ActivityActor) (dto.LoanResponse, error) {
	ctx, span := s.tracer.Start(ctx, "loan.checkout")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.LoanResponse{}, err
	}

	now := s.now()

	lookup, err := s.students.Lookup(ctx, req.BorrowerIDNumber)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return dto.LoanResponse{}, err
	}
	if !lookup.Found {
		span.SetStatus(codes.Error, "unknown borrower")
		return dto.LoanResponse{}, ErrUnknownStudent
	}
	borrower := lookup.Student
	if !borrower.ActiveOn(now) {
		span.SetStatus(codes.Error, "inactive borrower")
		return dto.LoanResponse{}, ErrBorrowerInactive
	}
	span.SetAttributes(attribute.Int("student.id", int(borrower.ID)))

	numbers := uniqueNumbers(req.ItemNumbers)
	var kitID *uint
	if req.KitCode != "" {
		kit, err := s.kits.GetByCode(ctx, normalizeNumber(req.KitCode))
		if err != nil {
			return dto.LoanResponse{}, mapKitError(err)
		}
		if len(kit.Items) == 0 {
			return dto.LoanResponse{}, ErrKitEmpty
		}
		kitID = &kit.ID
		for _, item := range kit.Items {
			numbers = append(numbers, item.Number)
		}
		numbers = uniqueNumbers(numbers)
	}
	if len(numbers) == 0 {
		return dto.LoanResponse{}, ErrEmptyCheckout
	}
	span.SetAttributes(attribute.Int("loan.items", len(numbers)))

	items, err := s.availableItems(ctx, numbers)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return dto.LoanResponse{}, err
	}

	dueAt, err := s.dueAt(now, req)
	if err != nil {
		return dto.LoanResponse{}, err
	}

	loan := models.Loan{
		StudentID:    borrower.ID,
		KitID:        kitID,
		CheckedOutAt: now.UTC(),
		DueAt:        dueAt.UTC(),
		Note:         cleanText(req.Note),
	}
	if actor.ID != 0 {
		loan.CheckedOutBy = &actor.ID
	}
	numberByID := make(map[uint]string, len(items))
	for _, item := range items {
		loan.Items = append(loan.Items, models.LoanItem{ItemID: item.ID})
		numberByID[item.ID] = item.Number
	}

	if err := s.loans.Create(ctx, &loan); err != nil {
		var onLoan *repository.ItemOnLoanError
		if errors.As(err, &onLoan) {
			span.SetStatus(codes.Error, "item on loan")
			return dto.LoanResponse{}, &ItemUnavailableError{Number: numberByID[onLoan.ItemID], Reason: "on loan"}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		s.logger.Error().Err(err).Str("borrower", borrower.IDNumber).Msg("failed to create loan")
		return dto.LoanResponse{}, err
	}

	observability.LoansCheckedOut().Inc()
	s.logger.Info().
		Uint("loan_id", loan.ID).
		Str("borrower", borrower.IDNumber).
		Int("items", len(loan.Items)).
		Time("due_at", loan.DueAt).
		Msg("loan checked out")
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "loan.checked_out",
		EntityType: "loan",
		EntityID:   &loan.ID,
		Metadata:   map[string]interface{}{"borrower": borrower.IDNumber, "items": numbers},
	})

	response := dto.NewLoanResponse(loan)
	s.publish(ctx, EventLoanCheckedOut, response)
	return response, nil
}

// availableItems resolves numbers to items that are neither in repair nor on loan.
func (s *loanService) availableItems(ctx context.Context, numbers []string) ([]models.EquipmentItem, error) {
	found, err := s.items.ListItemsByNumbers(ctx, numbers)
	if err != nil {
		return nil, err
	}
	byNumber := make(map[string]models.EquipmentItem, len(found))
	ids := make([]uint, 0, len(found))
	for _, item := range found {
		byNumber[item.Number] = item
		ids = append(ids, item.ID)
	}

	open, err := s.loans.OpenLoanIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]models.EquipmentItem, 0, len(numbers))
	for _, number := range numbers {
		item, ok := byNumber[number]
		if !ok {
			return nil, &ItemNotFoundError{Number: number}
		}
		if _, onLoan := open[item.ID]; onLoan {
			return nil, &ItemUnavailableError{Number: number, Reason: "on loan"}
		}
		if item.InRepair {
			return nil, &ItemUnavailableError{Number: number, Reason: "in repair"}
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *loanService) dueAt(checkout time.Time, req dto.CheckoutRequest) (time.Time, error) {
	if req.DueAt != nil {
		if !req.DueAt.After(checkout) {
			return time.Time{}, ErrInvalidDueDate
		}
		return *req.DueAt, nil
	}

	due := s.due
	if override := req.DuePolicy; override != nil {
		if override.Days != nil {
			due.Days = *override.Days
		}
		if override.ExtendForWeekends != nil {
			due.ExtendForWeekends = *override.ExtendForWeekends
		}
		if override.DueTime != nil {
			due.DueTime = *override.DueTime
		}
	}

	dueAt, err := due.DueAt(checkout)
	if err != nil {
		if errors.Is(err, policy.ErrInvalidDueTime) {
			return time.Time{}, validationError("DueTime", "datetime")
		}
		return time.Time{}, validationError("Days", "min")
	}
	if !dueAt.After(checkout) {
		return time.Time{}, ErrInvalidDueDate
	}
	return dueAt, nil
}

func (s *loanService) Return(ctx context.Context, loanID uint, req dto.ReturnRequest, actor ActivityActor) (dto.LoanResponse, error) {
	ctx, span := s.tracer.Start(ctx, "loan.return")
	defer span.End()
	span.SetAttributes(attribute.Int("loan.id", int(loanID)))

	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return dto.LoanResponse{}, mapLoanError(err)
	}
	return s.close(ctx, span, loan, req.ReturnedAt, actor)
}

func (s *loanService) ReturnByNumber(ctx context.Context, req dto.ReturnByNumberRequest, actor ActivityActor) (dto.LoanResponse, error) {
	ctx, span := s.tracer.Start(ctx, "loan.return_by_number")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.LoanResponse{}, err
	}

	number := normalizeNumber(req.Number)
	span.SetAttributes(attribute.String("loan.scanned", number))

	loan, err := s.openLoanFor(ctx, number)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return dto.LoanResponse{}, err
	}
	span.SetAttributes(attribute.Int("loan.id", int(loan.ID)))
	return s.close(ctx, span, loan, req.ReturnedAt, actor)
}

// openLoanFor finds the open loan holding an item number or any member of a kit code.
func (s *loanService) openLoanFor(ctx context.Context, number string) (models.Loan, error) {
	item, err := s.items.GetItemByNumber(ctx, number)
	switch {
	case err == nil:
		loan, err := s.loans.OpenLoanForItem(ctx, item.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.Loan{}, ErrNoOpenLoan
			}
			return models.Loan{}, err
		}
		return loan, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return models.Loan{}, err
	}

	kit, err := s.kits.GetByCode(ctx, number)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Loan{}, &ItemNotFoundError{Number: number}
		}
		return models.Loan{}, err
	}
	for _, member := range kit.Items {
		loan, err := s.loans.OpenLoanForItem(ctx, member.ID)
		if err == nil {
			return loan, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Loan{}, err
		}
	}
	return models.Loan{}, ErrNoOpenLoan
}

func (s *loanService) close(ctx context.Context, span trace.Span, loan models.Loan, returnedAt *time.Time, actor ActivityActor) (dto.LoanResponse, error) {
	if !loan.IsOpen() {
		span.SetStatus(codes.Error, "already returned")
		return dto.LoanResponse{}, ErrAlreadyReturned
	}

	at := s.now()
	if returnedAt != nil {
		at = *returnedAt
	}
	if at.Before(loan.CheckedOutAt) {
		span.SetStatus(codes.Error, "return precedes checkout")
		return dto.LoanResponse{}, ErrInvalidReturnTime
	}

	// The due date may move under an extension, so the penalty is assessed
	// against the row locked by the close.
	ret := repository.LoanReturn{
		ReturnedAt: at.UTC(),
		Assess: func(dueAt time.Time) (int, int64) {
			return s.rate.DaysOverdue(dueAt, at), s.rate.Penalty(dueAt, at)
		},
	}
	if actor.ID != 0 {
		ret.ReturnedBy = &actor.ID
	}

	closed, err := s.loans.Close(ctx, loan.ID, ret)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrLoanClosed):
			return dto.LoanResponse{}, ErrAlreadyReturned
		case errors.Is(err, gorm.ErrRecordNotFound):
			return dto.LoanResponse{}, ErrLoanNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "close failed")
		s.logger.Error().Err(err).Uint("loan_id", loan.ID).Msg("failed to close loan")
		return dto.LoanResponse{}, err
	}

	late := closed.DaysOverdue > 0
	observability.LoansReturned().WithLabelValues(strconv.FormatBool(late)).Inc()
	if closed.PenaltyCents > 0 {
		observability.PenaltyCents().Add(float64(closed.PenaltyCents))
	}
	span.SetAttributes(
		attribute.Int("loan.days_overdue", closed.DaysOverdue),
		attribute.Int64("loan.penalty_cents", closed.PenaltyCents),
	)
	s.logger.Info().
		Uint("loan_id", closed.ID).
		Int("days_overdue", closed.DaysOverdue).
		Int64("penalty_cents", closed.PenaltyCents).
		Msg("loan returned")
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "loan.returned",
		EntityType: "loan",
		EntityID:   &closed.ID,
		Metadata:   map[string]interface{}{"days_overdue": closed.DaysOverdue, "penalty_cents": closed.PenaltyCents},
	})

	response := dto.NewLoanResponse(closed)
	s.publish(ctx, EventLoanReturned, response)
	return response, nil
}

func (s *loanService) Extend(ctx context.Context, loanID uint, req dto.ExtendLoanRequest, actor ActivityActor) (dto.LoanResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.LoanResponse{}, err
	}

	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return dto.LoanResponse{}, mapLoanError(err)
	}
	if !loan.IsOpen() {
		return dto.LoanResponse{}, ErrAlreadyReturned
	}
	if !req.DueAt.After(loan.CheckedOutAt) {
		return dto.LoanResponse{}, ErrInvalidDueDate
	}

	updated, err := s.loans.UpdateDue(ctx, loanID, req.DueAt)
	if err != nil {
		if errors.Is(err, repository.ErrLoanClosed) {
			return dto.LoanResponse{}, ErrAlreadyReturned
		}
		return dto.LoanResponse{}, mapLoanError(err)
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "loan.extended",
		EntityType: "loan",
		EntityID:   &updated.ID,
		Metadata:   map[string]interface{}{"previous_due_at": loan.DueAt, "due_at": updated.DueAt},
	})
	return dto.NewLoanResponse(updated), nil
}

func (s *loanService) Get(ctx context.Context, loanID uint) (dto.LoanResponse, error) {
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return dto.LoanResponse{}, mapLoanError(err)
	}
	return dto.NewLoanResponse(loan), nil
}

func (s *loanService) ListForStudent(ctx context.Context, idNumber string, openOnly bool) ([]dto.LoanResponse, error) {
	lookup, err := s.students.Lookup(ctx, idNumber)
	if err != nil {
		return nil, err
	}
	if !lookup.Found {
		return nil, ErrStudentNotFound
	}

	loans, err := s.loans.ListByStudent(ctx, lookup.Student.ID, openOnly)
	if err != nil {
		return nil, err
	}
	return dto.NewLoanResponseSlice(loans), nil
}

func (s *loanService) publish(ctx context.Context, eventType string, loan dto.LoanResponse) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, LoansTopic, eventType, loan); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish loan event")
	}
}

func mapLoanError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrLoanNotFound
	}
	return err
}
