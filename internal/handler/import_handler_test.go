package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campusdesk-api/internal/dto"
	"github.com/noah-isme/campusdesk-api/internal/handler"
	"github.com/noah-isme/campusdesk-api/internal/service"
)

type stubImportService struct {
	service.ImportService
	body   string
	dryRun bool
}

func (s *stubImportService) ImportSchedule(_ context.Context, file io.Reader, dryRun bool, _ service.ActivityActor) (dto.ScheduleImportResult, error) {
	raw, err := io.ReadAll(file)
	if err != nil {
		return dto.ScheduleImportResult{}, err
	}
	s.body = string(raw)
	s.dryRun = dryRun

	if bytes.Contains(raw, []byte("LOCKED")) {
		return dto.ScheduleImportResult{
			RowsRead:        3,
			SessionsCreated: 2,
			Incomplete:      true,
			Errors:          []dto.ImportRowError{{Row: 4, Message: "database is locked"}},
		}, fmt.Errorf("%w at row 4: database is locked", service.ErrImportIncomplete)
	}
	if bytes.Contains(raw, []byte("13/45/10")) {
		return dto.ScheduleImportResult{
			RowsRead: 2,
			Errors:   []dto.ImportRowError{{Row: 2, Message: "invalid date"}},
		}, service.ErrInvalidImport
	}
	return dto.ScheduleImportResult{DryRun: dryRun, RowsRead: 2, CoursesCreated: 1, SessionsCreated: 1}, nil
}

func (s *stubImportService) ImportEquipment(_ context.Context, req dto.EquipmentImportRequest, _ service.ActivityActor) (dto.EquipmentImportResult, error) {
	if len(req.Numbers) > 0 && req.Numbers[0] == "CAM-01" {
		return dto.EquipmentImportResult{Duplicates: []string{"CAM-01"}}, service.ErrDuplicateItem
	}
	return dto.EquipmentImportResult{Created: req.Numbers}, nil
}

func scheduleUpload(t *testing.T, target, content string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "schedule.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set(fiber.HeaderContentType, writer.FormDataContentType())
	return req
}

func setupImportApp(imports service.ImportService) *fiber.App {
	app := fiber.New()
	handler.NewImportHandler(imports, testLogger).Register(app.Group("/api/v1/imports"))
	return app
}

func TestScheduleImportUploadsFile(t *testing.T) {
	imports := &stubImportService{}
	app := setupImportApp(imports)

	content := "date,time_start,time_end,section,schedule_name,course_number\n01/05/10,13:30,,01,Spring,CS101,,,Lab 2\n"
	resp, err := app.Test(scheduleUpload(t, "/api/v1/imports/schedule?dry_run=true", content), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, content, imports.body)
	require.True(t, imports.dryRun)

	var payload envelope
	decodeResponse(t, resp, &payload)

	var result dto.ScheduleImportResult
	require.NoError(t, json.Unmarshal(payload.Data, &result))
	require.True(t, result.DryRun)
	require.Equal(t, 2, result.RowsRead)
}

func TestScheduleImportReportsRowErrors(t *testing.T) {
	app := setupImportApp(&stubImportService{})

	resp, err := app.Test(scheduleUpload(t, "/api/v1/imports/schedule", "13/45/10,25:00\n"), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	var payload envelope
	decodeResponse(t, resp, &payload)
	require.False(t, payload.Success)

	var result dto.ScheduleImportResult
	require.NoError(t, json.Unmarshal(payload.Details, &result))
	require.Len(t, result.Errors, 1)
	require.Equal(t, 2, result.Errors[0].Row)
}

func TestScheduleImportReportsPartialWrites(t *testing.T) {
	app := setupImportApp(&stubImportService{})

	resp, err := app.Test(scheduleUpload(t, "/api/v1/imports/schedule", "01/04/10,LOCKED\n"), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	var payload envelope
	decodeResponse(t, resp, &payload)
	require.False(t, payload.Success)

	var result dto.ScheduleImportResult
	require.NoError(t, json.Unmarshal(payload.Details, &result))
	require.True(t, result.Incomplete)
	require.Equal(t, 2, result.SessionsCreated)
	require.Equal(t, 4, result.Errors[0].Row)
}

func TestScheduleImportRequiresFile(t *testing.T) {
	app := setupImportApp(&stubImportService{})

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/imports/schedule", fiber.Map{}), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestEquipmentImportConflictListsDuplicates(t *testing.T) {
	app := setupImportApp(&stubImportService{})

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/imports/equipment", fiber.Map{
		"item_type_id": 1,
		"numbers":      []string{"CAM-01", "CAM-02"},
	}), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	var payload envelope
	decodeResponse(t, resp, &payload)

	var result dto.EquipmentImportResult
	require.NoError(t, json.Unmarshal(payload.Details, &result))
	require.Equal(t, []string{"CAM-01"}, result.Duplicates)
}
