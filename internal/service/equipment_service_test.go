package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/campusdesk-api/internal/dto"
	"github.com/noah-isme/campusdesk-api/internal/models"
	"github.com/noah-isme/campusdesk-api/internal/repository"
)

func setupEquipmentService(t *testing.T) (*gorm.DB, EquipmentService, repository.LoanRepository) {
	t.Helper()
	db := setupServiceDB(t)
	loans := repository.NewLoanRepository(db)
	svc := NewEquipmentService(
		repository.NewEquipmentRepository(db),
		repository.NewKitRepository(db),
		loans,
		testValidator(),
		&stubActivityRecorder{},
		testLogger(),
	)
	return db, svc, loans
}

func openLoan(t *testing.T, loans repository.LoanRepository, student models.Student, items ...models.EquipmentItem) models.Loan {
	t.Helper()
	checkout := time.Date(2010, time.January, 1, 10, 0, 0, 0, time.UTC)
	loan := models.Loan{StudentID: student.ID, CheckedOutAt: checkout, DueAt: checkout.Add(72 * time.Hour)}
	for _, item := range items {
		loan.Items = append(loan.Items, models.LoanItem{ItemID: item.ID})
	}
	require.NoError(t, loans.Create(context.Background(), &loan))
	return loan
}

func TestEquipmentServiceCreateItem(t *testing.T) {
	_, svc, _ := setupEquipmentService(t)
	ctx := context.Background()

	itemType, err := svc.CreateItemType(ctx, dto.ItemTypeCreateRequest{Manufacturer: "Canon", ModelName: "EOS 5D"}, ActivityActor{})
	require.NoError(t, err)

	item, err := svc.CreateItem(ctx, dto.EquipmentItemCreateRequest{Number: " cam-07 ", Description: "Camera body", ItemTypeID: &itemType.ID}, ActivityActor{})
	require.NoError(t, err)
	require.Equal(t, "CAM-07", item.Number)
	require.Equal(t, "available", item.Availability)
	require.NotNil(t, item.ItemType)
	require.Equal(t, "Canon", item.ItemType.Manufacturer)

	_, err = svc.CreateItem(ctx, dto.EquipmentItemCreateRequest{Number: "CAM-07"}, ActivityActor{})
	require.ErrorIs(t, err, ErrDuplicateItem)

	missing := uint(404)
	_, err = svc.CreateItem(ctx, dto.EquipmentItemCreateRequest{Number: "CAM-08", ItemTypeID: &missing}, ActivityActor{})
	require.ErrorIs(t, err, ErrItemTypeNotFound)

	_, err = svc.CreateItemType(ctx, dto.ItemTypeCreateRequest{Manufacturer: "Canon", ModelName: "EOS 5D"}, ActivityActor{})
	require.ErrorIs(t, err, ErrDuplicateItemType)
}

func TestEquipmentServiceAvailabilityAndHistory(t *testing.T) {
	db, svc, loans := setupEquipmentService(t)
	ctx := context.Background()

	student := seedStudent(t, db, "1234")
	camera := seedItem(t, db, "CAM-07")
	seedItem(t, db, "TRI-02")
	loan := openLoan(t, loans, student, camera)

	detail, err := svc.GetItemByNumber(ctx, "cam-07")
	require.NoError(t, err)
	require.Equal(t, "on_loan", detail.Item.Availability)
	require.NotNil(t, detail.Item.CurrentLoanID)
	require.Equal(t, loan.ID, *detail.Item.CurrentLoanID)
	require.Len(t, detail.History, 1)
	require.Equal(t, "1234", detail.History[0].Borrower.IDNumber)

	available, err := svc.ListItems(ctx, dto.EquipmentListRequest{Availability: "available"})
	require.NoError(t, err)
	require.Len(t, available.Items, 1)
	require.Equal(t, "TRI-02", available.Items[0].Number)

	_, err = svc.GetItemByNumber(ctx, "NOPE-1")
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestEquipmentServiceRepairRejectedWhileOnLoan(t *testing.T) {
	db, svc, loans := setupEquipmentService(t)
	ctx := context.Background()

	student := seedStudent(t, db, "1234")
	camera := seedItem(t, db, "CAM-07")
	tripod := seedItem(t, db, "TRI-02")
	openLoan(t, loans, student, camera)

	_, err := svc.SetRepair(ctx, camera.ID, dto.EquipmentRepairRequest{InRepair: true}, ActivityActor{})
	require.ErrorIs(t, err, ErrItemUnavailable)

	repaired, err := svc.SetRepair(ctx, tripod.ID, dto.EquipmentRepairRequest{InRepair: true, Note: "bent leg"}, ActivityActor{})
	require.NoError(t, err)
	require.Equal(t, "in_repair", repaired.Availability)
	require.Equal(t, "bent leg", repaired.Note)

	back, err := svc.SetRepair(ctx, tripod.ID, dto.EquipmentRepairRequest{InRepair: false}, ActivityActor{})
	require.NoError(t, err)
	require.Equal(t, "available", back.Availability)
}

func TestEquipmentServiceKitMembershipRules(t *testing.T) {
	db, svc, loans := setupEquipmentService(t)
	ctx := context.Background()

	student := seedStudent(t, db, "1234")
	seedItem(t, db, "CAM-07")
	seedItem(t, db, "LENS-1")
	tripod := seedItem(t, db, "TRI-02")
	flash := seedItem(t, db, "FLASH-1")

	kit, err := svc.CreateKit(ctx, dto.KitCreateRequest{Code: "kit-a", Name: "Camera kit", ItemNumbers: []string{"CAM-07", "lens-1"}}, ActivityActor{})
	require.NoError(t, err)
	require.Equal(t, "KIT-A", kit.Code)
	require.Len(t, kit.Items, 2)
	require.Equal(t, "available", kit.Availability)

	_, err = svc.CreateKit(ctx, dto.KitCreateRequest{Code: "KIT-B", Name: "Second", ItemNumbers: []string{"CAM-07"}}, ActivityActor{})
	require.ErrorIs(t, err, ErrKitMembership)

	_, err = svc.CreateKit(ctx, dto.KitCreateRequest{Code: "KIT-A", Name: "Duplicate"}, ActivityActor{})
	require.ErrorIs(t, err, ErrDuplicateKit)

	openLoan(t, loans, student, tripod)
	_, err = svc.AddKitMember(ctx, kit.ID, "TRI-02", ActivityActor{})
	require.ErrorIs(t, err, ErrKitMembership)

	updated, err := svc.AddKitMember(ctx, kit.ID, "flash-1", ActivityActor{})
	require.NoError(t, err)
	require.Len(t, updated.Items, 3)

	removed, err := svc.RemoveKitMember(ctx, kit.ID, flash.ID, ActivityActor{})
	require.NoError(t, err)
	require.Len(t, removed.Items, 2)

	_, err = svc.RemoveKitMember(ctx, kit.ID, tripod.ID, ActivityActor{})
	require.ErrorIs(t, err, ErrKitMembership)

	_, err = svc.AddKitMember(ctx, kit.ID, "NOPE-1", ActivityActor{})
	require.ErrorIs(t, err, ErrItemNotFound)

	_, err = svc.GetKitByCode(ctx, "missing")
	require.ErrorIs(t, err, ErrKitNotFound)
}

func TestEquipmentServiceKitOnLoanBlocksMembershipChanges(t *testing.T) {
	db, svc, loans := setupEquipmentService(t)
	ctx := context.Background()

	student := seedStudent(t, db, "1234")
	camera := seedItem(t, db, "CAM-07")
	seedItem(t, db, "FLASH-1")

	kit, err := svc.CreateKit(ctx, dto.KitCreateRequest{Code: "KIT-A", Name: "Camera kit", ItemNumbers: []string{"CAM-07"}}, ActivityActor{})
	require.NoError(t, err)
	openLoan(t, loans, student, camera)

	current, err := svc.GetKit(ctx, kit.ID)
	require.NoError(t, err)
	require.Equal(t, "on_loan", current.Availability)

	_, err = svc.AddKitMember(ctx, kit.ID, "FLASH-1", ActivityActor{})
	require.ErrorIs(t, err, ErrKitMembership)

	_, err = svc.RemoveKitMember(ctx, kit.ID, camera.ID, ActivityActor{})
	require.ErrorIs(t, err, ErrKitMembership)
}
