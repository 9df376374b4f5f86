package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/campusdesk-api/internal/dto"
	"github.com/noah-isme/campusdesk-api/internal/models"
	"github.com/noah-isme/campusdesk-api/internal/policy"
	"github.com/noah-isme/campusdesk-api/internal/repository"
)

var newYear = time.Date(2010, time.January, 1, 10, 0, 0, 0, time.UTC)

type loanFixture struct {
	db        *gorm.DB
	svc       *loanService
	clock     *time.Time
	publisher *recordingPublisher
	activity  *stubActivityRecorder
}

func setupLoanService(t *testing.T) *loanFixture {
	t.Helper()
	db := setupServiceDB(t)
	publisher := &recordingPublisher{}
	activity := &stubActivityRecorder{}

	students := NewStudentService(repository.NewStudentRepository(db), nil, testValidator(), activity, time.UTC, testLogger())
	svc := NewLoanService(
		students,
		repository.NewEquipmentRepository(db),
		repository.NewKitRepository(db),
		repository.NewLoanRepository(db),
		policy.DuePolicy{Days: 3, ExtendForWeekends: true},
		policy.RatePolicy{PerDayCents: 500},
		testValidator(),
		publisher,
		activity,
		testLogger(),
	).(*loanService)

	clock := newYear
	svc.now = func() time.Time { return clock }

	return &loanFixture{db: db, svc: svc, clock: &clock, publisher: publisher, activity: activity}
}

func (f *loanFixture) setNow(now time.Time) {
	*f.clock = now
}

func TestLoanCheckoutAndLateReturnScenario(t *testing.T) {
	f := setupLoanService(t)
	seedStudent(t, f.db, "1234")
	seedStudent(t, f.db, "5678")
	seedItem(t, f.db, "CAM-07")
	ctx := context.Background()

	loan, err := f.svc.Checkout(ctx, dto.CheckoutRequest{BorrowerIDNumber: "1234", ItemNumbers: []string{"cam-07"}}, ActivityActor{ID: 9, Role: "staff"})
	require.NoError(t, err)
	require.True(t, loan.Open)
	require.Equal(t, "1234", loan.Borrower.IDNumber)
	require.Len(t, loan.Items, 1)
	require.Equal(t, "CAM-07", loan.Items[0].Number)
	require.True(t, loan.DueAt.Equal(time.Date(2010, time.January, 4, 10, 0, 0, 0, time.UTC)))

	_, err = f.svc.Checkout(ctx, dto.CheckoutRequest{BorrowerIDNumber: "5678", ItemNumbers: []string{"CAM-07"}}, ActivityActor{})
	var unavailable *ItemUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Equal(t, "CAM-07", unavailable.Number)
	require.ErrorIs(t, err, ErrItemUnavailable)

	f.setNow(time.Date(2010, time.January, 6, 10, 0, 0, 0, time.UTC))
	returned, err := f.svc.Return(ctx, loan.ID, dto.ReturnRequest{}, ActivityActor{ID: 9, Role: "staff"})
	require.NoError(t, err)
	require.False(t, returned.Open)
	require.Equal(t, 2, returned.DaysOverdue)
	require.Equal(t, int64(1000), returned.PenaltyCents)

	_, err = f.svc.Return(ctx, loan.ID, dto.ReturnRequest{}, ActivityActor{})
	require.ErrorIs(t, err, ErrAlreadyReturned)

	again, err := f.svc.Checkout(ctx, dto.CheckoutRequest{BorrowerIDNumber: "5678", ItemNumbers: []string{"CAM-07"}}, ActivityActor{})
	require.NoError(t, err)
	require.True(t, again.Open)

	require.Equal(t, []string{EventLoanCheckedOut, EventLoanReturned, EventLoanCheckedOut}, f.publisher.types())
	require.Contains(t, f.activity.actions(), "loan.returned")
}

func TestLoanReturnOnTimeHasNoPenalty(t *testing.T) {
	f := setupLoanService(t)
	seedStudent(t, f.db, "1234")
	seedItem(t, f.db, "CAM-07")
	ctx := context.Background()

	loan, err := f.svc.Checkout(ctx, dto.CheckoutRequest{BorrowerIDNumber: "1234", ItemNumbers: []string{"CAM-07"}}, ActivityActor{})
	require.NoError(t, err)

	at := time.Date(2010, time.January, 3, 9, 0, 0, 0, time.UTC)
	returned, err := f.svc.Return(ctx, loan.ID, dto.ReturnRequest{ReturnedAt: &at}, ActivityActor{})
	require.NoError(t, err)
	require.Zero(t, returned.DaysOverdue)
	require.Zero(t, returned.PenaltyCents)
	require.NotNil(t, returned.ReturnedAt)
	require.True(t, returned.ReturnedAt.Equal(at))
}

func TestLoanReturnBeforeCheckoutRejected(t *testing.T) {
	f := setupLoanService(t)
	seedStudent(t, f.db, "1234")
	seedItem(t, f.db, "CAM-07")

	loan, err := f.svc.Checkout(context.Background(), dto.CheckoutRequest{BorrowerIDNumber: "1234", ItemNumbers: []string{"CAM-07"}}, ActivityActor{})
	require.NoError(t, err)

	at := newYear.Add(-time.Minute)
	_, err = f.svc.Return(context.Background(), loan.ID, dto.ReturnRequest{ReturnedAt: &at}, ActivityActor{})
	require.ErrorIs(t, err, ErrInvalidReturnTime)
}

// extendBeforeClose moves the due date between the service's read and the
// repository close, the way a concurrent extension would.
type extendBeforeClose struct {
	repository.LoanRepository
	dueAt time.Time
}

func (r extendBeforeClose) Close(ctx context.Context, loanID uint, ret repository.LoanReturn) (models.Loan, error) {
	if _, err := r.UpdateDue(ctx, loanID, r.dueAt); err != nil {
		return models.Loan{}, err
	}
	return r.LoanRepository.Close(ctx, loanID, ret)
}

func TestLoanReturnAssessesPenaltyAgainstCurrentDueDate(t *testing.T) {
	f := setupLoanService(t)
	seedStudent(t, f.db, "1234")
	seedItem(t, f.db, "CAM-07")
	ctx := context.Background()

	loan, err := f.svc.Checkout(ctx, dto.CheckoutRequest{BorrowerIDNumber: "1234", ItemNumbers: []string{"CAM-07"}}, ActivityActor{})
	require.NoError(t, err)

	f.svc.loans = extendBeforeClose{
		LoanRepository: f.svc.loans,
		dueAt:          time.Date(2010, time.January, 7, 10, 0, 0, 0, time.UTC),
	}
	f.setNow(time.Date(2010, time.January, 6, 10, 0, 0, 0, time.UTC))

	returned, err := f.svc.Return(ctx, loan.ID, dto.ReturnRequest{}, ActivityActor{})
	require.NoError(t, err)
	require.Zero(t, returned.DaysOverdue)
	require.Zero(t, returned.PenaltyCents)
}

func TestLoanCheckoutRejections(t *testing.T) {
	f := setupLoanService(t)
	seedStudent(t, f.db, "1234")
	withdrawn := models.Student{IDNumber: "9999", FirstName: "Grace", LastName: "Hopper", Status: models.StudentStatusWithdrawn}
	require.NoError(t, f.db.Create(&withdrawn).Error)
	seedItem(t, f.db, "CAM-07")
	repair := seedItem(t, f.db, "CAM-08")
	require.NoError(t, f.db.Model(&repair).Update("in_repair", true).Error)
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, dto.CheckoutRequest{BorrowerIDNumber: "0000", ItemNumbers: []string{"CAM-07"}}, ActivityActor{})
	require.ErrorIs(t, err, ErrUnknownStudent)

	_, err = f.svc.Checkout(ctx, dto.CheckoutRequest{BorrowerIDNumber: "9999", ItemNumbers: []string{"CAM-07"}}, ActivityActor{})
	require.ErrorIs(t, err, ErrBorrowerInactive)

	_, err = f.svc.Checkout(ctx, dto.CheckoutRequest{BorrowerIDNumber: "1234", ItemNumbers: []string{" "}}, ActivityActor{})
	require.ErrorIs(t, err, ErrEmptyCheckout)

	_, err = f.svc.Checkout(ctx, dto.CheckoutRequest{BorrowerIDNumber: "1234", ItemNumbers: []string{"CAM-07", "CAM-99"}}, ActivityActor{})
	var missing *ItemNotFoundError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "CAM-99", missing.Number)

	_, err = f.svc.Checkout(ctx, dto.CheckoutRequest{BorrowerIDNumber: "1234", ItemNumbers: []string{"CAM-07", "CAM-08"}}, ActivityActor{})
	var unavailable *ItemUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Equal(t, "CAM-08", unavailable.Number)
	require.Equal(t, "in repair", unavailable.Reason)

	past := newYear.Add(-time.Hour)
	_, err = f.svc.Checkout(ctx, dto.CheckoutRequest{BorrowerIDNumber: "1234", ItemNumbers: []string{"CAM-07"}, DueAt: &past}, ActivityActor{})
	require.ErrorIs(t, err, ErrInvalidDueDate)

	var open int64
	require.NoError(t, f.db.Model(&models.Loan{}).Count(&open).Error)
	require.Zero(t, open)
}

func TestLoanCheckoutDuePolicyOverride(t *testing.T) {
	f := setupLoanService(t)
	seedStudent(t, f.db, "1234")
	seedItem(t, f.db, "CAM-07")
	seedItem(t, f.db, "CAM-08")
	ctx := context.Background()

	// Friday checkout, one day later lands on Saturday.
	f.setNow(time.Date(2010, time.January, 8, 15, 0, 0, 0, time.UTC))
	days := 1
	dueTime := "17:30"
	loan, err := f.svc.Checkout(ctx, dto.CheckoutRequest{
		BorrowerIDNumber: "1234",
		ItemNumbers:      []string{"CAM-07"},
		DuePolicy:        &dto.DuePolicyOverride{Days: &days, DueTime: &dueTime},
	}, ActivityActor{})
	require.NoError(t, err)
	require.True(t, loan.DueAt.Equal(time.Date(2010, time.January, 11, 17, 30, 0, 0, time.UTC)))

	noExtend := false
	loan, err = f.svc.Checkout(ctx, dto.CheckoutRequest{
		BorrowerIDNumber: "1234",
		ItemNumbers:      []string{"CAM-08"},
		DuePolicy:        &dto.DuePolicyOverride{Days: &days, ExtendForWeekends: &noExtend},
	}, ActivityActor{})
	require.NoError(t, err)
	require.Equal(t, time.Saturday, loan.DueAt.Weekday())
}

func TestLoanCheckoutKitAndReturnByNumber(t *testing.T) {
	f := setupLoanService(t)
	seedStudent(t, f.db, "1234")
	camera := seedItem(t, f.db, "CAM-07")
	tripod := seedItem(t, f.db, "TRI-01")
	kit := models.Kit{Code: "KIT-A", Name: "Studio kit"}
	require.NoError(t, f.db.Create(&kit).Error)
	require.NoError(t, f.db.Model(&camera).Update("kit_id", kit.ID).Error)
	require.NoError(t, f.db.Model(&tripod).Update("kit_id", kit.ID).Error)
	ctx := context.Background()

	loan, err := f.svc.Checkout(ctx, dto.CheckoutRequest{BorrowerIDNumber: "1234", KitCode: "kit-a", ItemNumbers: []string{"CAM-07"}}, ActivityActor{})
	require.NoError(t, err)
	require.Equal(t, "KIT-A", loan.KitCode)
	require.Len(t, loan.Items, 2)

	_, err = f.svc.ReturnByNumber(ctx, dto.ReturnByNumberRequest{Number: "LENS-01"}, ActivityActor{})
	require.ErrorIs(t, err, ErrItemNotFound)

	returned, err := f.svc.ReturnByNumber(ctx, dto.ReturnByNumberRequest{Number: "*kit-a*"}, ActivityActor{})
	require.NoError(t, err)
	require.Equal(t, loan.ID, returned.ID)
	require.False(t, returned.Open)

	_, err = f.svc.ReturnByNumber(ctx, dto.ReturnByNumberRequest{Number: "TRI-01"}, ActivityActor{})
	require.ErrorIs(t, err, ErrNoOpenLoan)

	empty := models.Kit{Code: "KIT-B", Name: "Empty"}
	require.NoError(t, f.db.Create(&empty).Error)
	_, err = f.svc.Checkout(ctx, dto.CheckoutRequest{BorrowerIDNumber: "1234", KitCode: "KIT-B"}, ActivityActor{})
	require.ErrorIs(t, err, ErrKitEmpty)

	_, err = f.svc.Checkout(ctx, dto.CheckoutRequest{BorrowerIDNumber: "1234", KitCode: "KIT-Z"}, ActivityActor{})
	require.ErrorIs(t, err, ErrKitNotFound)
}

func TestLoanConcurrentCheckoutSingleWinner(t *testing.T) {
	f := setupLoanService(t)
	for _, id := range []string{"1001", "1002", "1003", "1004", "1005", "1006"} {
		seedStudent(t, f.db, id)
	}
	seedItem(t, f.db, "CAM-07")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for _, id := range []string{"1001", "1002", "1003", "1004", "1005", "1006"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.Checkout(context.Background(), dto.CheckoutRequest{BorrowerIDNumber: id, ItemNumbers: []string{"CAM-07"}}, ActivityActor{})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrItemUnavailable) {
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	require.Equal(t, 1, succeeded)
}

func TestLoanExtendAndList(t *testing.T) {
	f := setupLoanService(t)
	seedStudent(t, f.db, "1234")
	seedItem(t, f.db, "CAM-07")
	ctx := context.Background()

	loan, err := f.svc.Checkout(ctx, dto.CheckoutRequest{BorrowerIDNumber: "1234", ItemNumbers: []string{"CAM-07"}}, ActivityActor{})
	require.NoError(t, err)

	_, err = f.svc.Extend(ctx, loan.ID, dto.ExtendLoanRequest{DueAt: newYear.Add(-time.Hour)}, ActivityActor{})
	require.ErrorIs(t, err, ErrInvalidDueDate)

	later := time.Date(2010, time.January, 10, 10, 0, 0, 0, time.UTC)
	extended, err := f.svc.Extend(ctx, loan.ID, dto.ExtendLoanRequest{DueAt: later}, ActivityActor{})
	require.NoError(t, err)
	require.True(t, extended.DueAt.Equal(later))

	_, err = f.svc.Extend(ctx, 999, dto.ExtendLoanRequest{DueAt: later}, ActivityActor{})
	require.ErrorIs(t, err, ErrLoanNotFound)

	open, err := f.svc.ListForStudent(ctx, "1234", true)
	require.NoError(t, err)
	require.Len(t, open, 1)

	_, err = f.svc.Return(ctx, loan.ID, dto.ReturnRequest{}, ActivityActor{})
	require.NoError(t, err)

	open, err = f.svc.ListForStudent(ctx, "1234", true)
	require.NoError(t, err)
	require.Empty(t, open)

	all, err := f.svc.ListForStudent(ctx, "1234", false)
	require.NoError(t, err)
	require.Len(t, all, 1)

	_, err = f.svc.Extend(ctx, loan.ID, dto.ExtendLoanRequest{DueAt: later}, ActivityActor{})
	require.ErrorIs(t, err, ErrAlreadyReturned)

	_, err = f.svc.ListForStudent(ctx, "0000", false)
	require.ErrorIs(t, err, ErrStudentNotFound)
}
