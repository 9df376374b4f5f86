package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campusdesk-api/internal/dto"
	"github.com/noah-isme/campusdesk-api/internal/handler"
	"github.com/noah-isme/campusdesk-api/internal/service"
)

type stubReportService struct {
	service.ReportService
	asOf        time.Time
	overdueOnly bool
	from, to    time.Time
}

func (s *stubReportService) SessionAttendance(_ context.Context, sessionID uint) (dto.SessionAttendanceReport, error) {
	if sessionID != 4 {
		return dto.SessionAttendanceReport{}, service.ErrSessionNotFound
	}
	ada := dto.StudentSummary{ID: 3, IDNumber: "20391", Name: "Ada Park"}
	return dto.SessionAttendanceReport{
		Session: dto.SessionResponse{
			ID:           4,
			CourseID:     2,
			CourseNumber: "CS101",
			StartsAt:     time.Date(2010, 1, 4, 9, 0, 0, 0, time.UTC),
			EndsAt:       time.Date(2010, 1, 4, 10, 0, 0, 0, time.UTC),
			SignInState:  "closed",
		},
		Records: []dto.AttendanceRecordResponse{{
			ID:         1,
			Student:    ada,
			SessionID:  4,
			RecordedAt: time.Date(2010, 1, 4, 9, 2, 0, 0, time.UTC),
			Source:     "scanned",
		}},
		Present:      []dto.StudentSummary{ada},
		Absent:       []dto.StudentSummary{{ID: 5, IDNumber: "20392", Name: "Ben Ortiz"}},
		PresentCount: 1,
		AbsentCount:  1,
	}, nil
}

func (s *stubReportService) Loans(_ context.Context, asOf time.Time, overdueOnly bool) (dto.LoanReport, error) {
	s.asOf = asOf
	s.overdueOnly = overdueOnly
	return dto.LoanReport{
		AsOf: asOf,
		Loans: []dto.LoanReportRow{{
			Loan: dto.LoanResponse{
				ID:           1,
				Borrower:     dto.StudentSummary{ID: 3, IDNumber: "20391", Name: "Ada Park"},
				Items:        []dto.LoanItemResponse{{ItemID: 7, Number: "CAM-07"}},
				CheckedOutAt: time.Date(2010, 1, 1, 10, 0, 0, 0, time.UTC),
				DueAt:        time.Date(2010, 1, 4, 10, 0, 0, 0, time.UTC),
				Open:         true,
			},
			Overdue:             true,
			DaysOverdue:         2,
			AccruedPenaltyCents: 1000,
		}},
		TotalAccruedCents: 1000,
		OverdueCount:      1,
		OpenCount:         1,
		RatePerDayCents:   500,
	}, nil
}

func (s *stubReportService) PenaltySummary(_ context.Context, from, to time.Time) (dto.PenaltySummaryReport, error) {
	s.from, s.to = from, to
	return dto.PenaltySummaryReport{From: from, To: to}, nil
}

func setupReportApp(reports service.ReportService, location *time.Location) *fiber.App {
	app := fiber.New()
	handler.NewReportHandler(reports, location, testLogger).Register(app.Group("/api/v1/reports"))
	return app
}

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	schemaPath, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)

	schema, err := jsonschema.NewCompiler().Compile("file://" + schemaPath)
	require.NoError(t, err)
	return schema
}

func TestLoanReportContract(t *testing.T) {
	schema := compileSchema(t, "loan_report.schema.json")
	reports := &stubReportService{}
	app := setupReportApp(reports, time.UTC)

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/api/v1/reports/loans?as_of=2010-01-06T10:00:00Z&overdue=true", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, reports.overdueOnly)
	require.True(t, reports.asOf.Equal(time.Date(2010, 1, 6, 10, 0, 0, 0, time.UTC)))

	var payload interface{}
	decodeResponse(t, resp, &payload)
	require.NoError(t, schema.Validate(payload))
}

func TestSessionAttendanceReportContract(t *testing.T) {
	schema := compileSchema(t, "session_attendance.schema.json")
	app := setupReportApp(&stubReportService{}, time.UTC)

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/api/v1/reports/sessions/4/attendance", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload interface{}
	decodeResponse(t, resp, &payload)
	require.NoError(t, schema.Validate(payload))

	resp, err = app.Test(jsonRequest(t, http.MethodGet, "/api/v1/reports/sessions/5/attendance", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestPenaltyReportReadsDatesInSchoolTime(t *testing.T) {
	location, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	reports := &stubReportService{}
	app := setupReportApp(reports, location)

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/api/v1/reports/penalties?from=2010-01-01&to=2010-02-01", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, reports.from.Equal(time.Date(2010, 1, 1, 8, 0, 0, 0, time.UTC)))
	require.True(t, reports.to.Equal(time.Date(2010, 2, 1, 8, 0, 0, 0, time.UTC)))

	var payload envelope
	decodeResponse(t, resp, &payload)

	var report dto.PenaltySummaryReport
	require.NoError(t, json.Unmarshal(payload.Data, &report))
	require.True(t, report.From.Equal(reports.from))

	resp, err = app.Test(jsonRequest(t, http.MethodGet, "/api/v1/reports/penalties?from=2010-01-01", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
