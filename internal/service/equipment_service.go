package service

import (
	"context"
	"errors"

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

const itemHistoryLimit = 20

// Kit availability values beyond the item ones.
const kitAvailabilityEmpty = "empty"

// EquipmentService manages item types, equipment items and kits.
type EquipmentService interface {
	CreateItemType(ctx context.Context, req dto.ItemTypeCreateRequest, actor ActivityActor) (dto.ItemTypeResponse, error)
	ListItemTypes(ctx context.Context) ([]dto.ItemTypeResponse, error)

	CreateItem(ctx context.Context, req dto.EquipmentItemCreateRequest, actor ActivityActor) (dto.EquipmentItemResponse, error)
	UpdateItem(ctx context.Context, id uint, req dto.EquipmentItemUpdateRequest, actor ActivityActor) (dto.EquipmentItemResponse, error)
	SetRepair(ctx context.Context, id uint, req dto.EquipmentRepairRequest, actor ActivityActor) (dto.EquipmentItemResponse, error)
	GetItem(ctx context.Context, id uint) (dto.EquipmentItemDetailResponse, error)
	GetItemByNumber(ctx context.Context, number string) (dto.EquipmentItemDetailResponse, error)
	ListItems(ctx context.Context, req dto.EquipmentListRequest) (dto.EquipmentListResponse, error)
	// ExistingNumbers returns which of the normalised numbers are already registered.
	ExistingNumbers(ctx context.Context, numbers []string) ([]string, error)

	CreateKit(ctx context.Context, req dto.KitCreateRequest, actor ActivityActor) (dto.KitResponse, error)
	GetKit(ctx context.Context, id uint) (dto.KitResponse, error)
	GetKitByCode(ctx context.Context, code string) (dto.KitResponse, error)
	ListKits(ctx context.Context) ([]dto.KitResponse, error)
	AddKitMember(ctx context.Context, kitID uint, itemNumber string, actor ActivityActor) (dto.KitResponse, error)
	RemoveKitMember(ctx context.Context, kitID, itemID uint, actor ActivityActor) (dto.KitResponse, error)
}

type equipmentService struct {
	items     repository.EquipmentRepository
	kits      repository.KitRepository
	loans     repository.LoanRepository
	validator *validator.Validate
	activity  ActivityRecorder
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewEquipmentService constructs the equipment service.
func NewEquipmentService(
	items repository.EquipmentRepository,
	kits repository.KitRepository,
	loans repository.LoanRepository,
	validator *validator.Validate,
	activity ActivityRecorder,
	logger zerolog.Logger,
) EquipmentService {
	return &equipmentService{
		items:     items,
		kits:      kits,
		loans:     loans,
		validator: validator,
		activity:  activity,
		logger:    logger.With().Str("component", "equipment_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/campusdesk-api/internal/service/equipment"),
	}
}

func (s *equipmentService) CreateItemType(ctx context.Context, req dto.ItemTypeCreateRequest, actor ActivityActor) (dto.ItemTypeResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ItemTypeResponse{}, err
	}

	itemType := models.ItemType{
		Manufacturer: cleanText(req.Manufacturer),
		ModelName:    cleanText(req.ModelName),
		Note:         cleanText(req.Note),
	}
	if err := s.items.CreateItemType(ctx, &itemType); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.ItemTypeResponse{}, ErrDuplicateItemType
		}
		return dto.ItemTypeResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "item_type.created",
		EntityType: "item_type",
		EntityID:   &itemType.ID,
	})
	return dto.NewItemTypeResponse(itemType), nil
}

func (s *equipmentService) ListItemTypes(ctx context.Context) ([]dto.ItemTypeResponse, error) {
	types, err := s.items.ListItemTypes(ctx)
	if err != nil {
		return nil, err
	}
	responses := make([]dto.ItemTypeResponse, 0, len(types))
	for _, itemType := range types {
		responses = append(responses, dto.NewItemTypeResponse(itemType))
	}
	return responses, nil
}

func (s *equipmentService) CreateItem(ctx context.Context, req dto.EquipmentItemCreateRequest, actor ActivityActor) (dto.EquipmentItemResponse, error) {
	ctx, span := s.tracer.Start(ctx, "equipment.create_item")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.EquipmentItemResponse{}, err
	}

	number := normalizeNumber(req.Number)
	if number == "" {
		return dto.EquipmentItemResponse{}, validationError("Number", "required")
	}
	span.SetAttributes(attribute.String("item.number", number))

	if req.ItemTypeID != nil {
		if _, err := s.items.GetItemType(ctx, *req.ItemTypeID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return dto.EquipmentItemResponse{}, ErrItemTypeNotFound
			}
			return dto.EquipmentItemResponse{}, err
		}
	}

	item := models.EquipmentItem{
		Number:       number,
		SerialNumber: cleanText(req.SerialNumber),
		Description:  cleanText(req.Description),
		ItemTypeID:   req.ItemTypeID,
		Note:         cleanText(req.Note),
	}
	if err := s.items.CreateItem(ctx, &item); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.EquipmentItemResponse{}, ErrDuplicateItem
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return dto.EquipmentItemResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "item.created",
		EntityType: "item",
		EntityID:   &item.ID,
		Metadata:   map[string]interface{}{"number": item.Number},
	})
	return dto.NewEquipmentItemResponse(item, nil), nil
}

func (s *equipmentService) UpdateItem(ctx context.Context, id uint, req dto.EquipmentItemUpdateRequest, actor ActivityActor) (dto.EquipmentItemResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.EquipmentItemResponse{}, err
	}

	updates := map[string]interface{}{}
	if req.SerialNumber != nil {
		updates["serial_number"] = cleanText(*req.SerialNumber)
	}
	if req.Description != nil {
		updates["description"] = cleanText(*req.Description)
	}
	if req.Note != nil {
		updates["note"] = cleanText(*req.Note)
	}
	if req.ItemTypeID != nil {
		if _, err := s.items.GetItemType(ctx, *req.ItemTypeID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return dto.EquipmentItemResponse{}, ErrItemTypeNotFound
			}
			return dto.EquipmentItemResponse{}, err
		}
		updates["item_type_id"] = *req.ItemTypeID
	}

	item, err := s.items.UpdateItem(ctx, id, updates)
	if err != nil {
		return dto.EquipmentItemResponse{}, mapItemError(err)
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "item.updated",
		EntityType: "item",
		EntityID:   &item.ID,
	})
	return s.itemResponse(ctx, item)
}

func (s *equipmentService) SetRepair(ctx context.Context, id uint, req dto.EquipmentRepairRequest, actor ActivityActor) (dto.EquipmentItemResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.EquipmentItemResponse{}, err
	}

	item, err := s.items.GetItemByID(ctx, id)
	if err != nil {
		return dto.EquipmentItemResponse{}, mapItemError(err)
	}

	if req.InRepair {
		open, err := s.loans.OpenLoanIDs(ctx, []uint{item.ID})
		if err != nil {
			return dto.EquipmentItemResponse{}, err
		}
		if _, onLoan := open[item.ID]; onLoan {
			return dto.EquipmentItemResponse{}, &ItemUnavailableError{Number: item.Number, Reason: "on loan"}
		}
	}

	updates := map[string]interface{}{"in_repair": req.InRepair}
	if note := cleanText(req.Note); note != "" {
		updates["note"] = note
	}
	updated, err := s.items.UpdateItem(ctx, id, updates)
	if err != nil {
		return dto.EquipmentItemResponse{}, mapItemError(err)
	}

	action := "item.repair_finished"
	if req.InRepair {
		action = "item.sent_to_repair"
	}
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "item",
		EntityID:   &updated.ID,
		Metadata:   map[string]interface{}{"number": updated.Number},
	})
	return s.itemResponse(ctx, updated)
}

func (s *equipmentService) GetItem(ctx context.Context, id uint) (dto.EquipmentItemDetailResponse, error) {
	item, err := s.items.GetItemByID(ctx, id)
	if err != nil {
		return dto.EquipmentItemDetailResponse{}, mapItemError(err)
	}
	return s.itemDetail(ctx, item)
}

func (s *equipmentService) GetItemByNumber(ctx context.Context, number string) (dto.EquipmentItemDetailResponse, error) {
	normalized := normalizeNumber(number)
	item, err := s.items.GetItemByNumber(ctx, normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EquipmentItemDetailResponse{}, &ItemNotFoundError{Number: normalized}
		}
		return dto.EquipmentItemDetailResponse{}, err
	}
	return s.itemDetail(ctx, item)
}

func (s *equipmentService) itemDetail(ctx context.Context, item models.EquipmentItem) (dto.EquipmentItemDetailResponse, error) {
	response, err := s.itemResponse(ctx, item)
	if err != nil {
		return dto.EquipmentItemDetailResponse{}, err
	}

	history, err := s.loans.ListByItem(ctx, item.ID, itemHistoryLimit)
	if err != nil {
		return dto.EquipmentItemDetailResponse{}, err
	}

	return dto.EquipmentItemDetailResponse{
		Item:    response,
		History: dto.NewLoanResponseSlice(history),
	}, nil
}

func (s *equipmentService) itemResponse(ctx context.Context, item models.EquipmentItem) (dto.EquipmentItemResponse, error) {
	open, err := s.loans.OpenLoanIDs(ctx, []uint{item.ID})
	if err != nil {
		return dto.EquipmentItemResponse{}, err
	}
	return dto.NewEquipmentItemResponse(item, openLoanRef(open, item.ID)), nil
}

func (s *equipmentService) ListItems(ctx context.Context, req dto.EquipmentListRequest) (dto.EquipmentListResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.EquipmentListResponse{}, err
	}

	items, total, err := s.items.ListItems(ctx, repository.EquipmentFilter{
		Page:         repository.Page{Page: req.Page, PageSize: req.PageSize},
		Search:       req.Search,
		ItemTypeID:   req.ItemTypeID,
		Availability: req.Availability,
	})
	if err != nil {
		return dto.EquipmentListResponse{}, err
	}

	responses, err := s.itemResponses(ctx, items)
	if err != nil {
		return dto.EquipmentListResponse{}, err
	}

	return dto.EquipmentListResponse{
		Items:      responses,
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
	}, nil
}

func (s *equipmentService) itemResponses(ctx context.Context, items []models.EquipmentItem) ([]dto.EquipmentItemResponse, error) {
	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	open, err := s.loans.OpenLoanIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.EquipmentItemResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, dto.NewEquipmentItemResponse(item, openLoanRef(open, item.ID)))
	}
	return responses, nil
}

func (s *equipmentService) ExistingNumbers(ctx context.Context, numbers []string) ([]string, error) {
	return s.items.ExistingNumbers(ctx, numbers)
}

func (s *equipmentService) CreateKit(ctx context.Context, req dto.KitCreateRequest, actor ActivityActor) (dto.KitResponse, error) {
	ctx, span := s.tracer.Start(ctx, "equipment.create_kit")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.KitResponse{}, err
	}

	code := normalizeNumber(req.Code)
	if code == "" {
		return dto.KitResponse{}, validationError("Code", "required")
	}

	numbers := uniqueNumbers(req.ItemNumbers)
	members, err := s.resolveItems(ctx, numbers)
	if err != nil {
		return dto.KitResponse{}, err
	}
	for _, item := range members {
		if item.KitID != nil {
			return dto.KitResponse{}, ErrKitMembership
		}
	}
	if err := s.ensureNotOnLoan(ctx, members); err != nil {
		return dto.KitResponse{}, err
	}

	kit := models.Kit{Code: code, Name: cleanText(req.Name), Note: cleanText(req.Note)}
	if err := s.kits.Create(ctx, &kit); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.KitResponse{}, ErrDuplicateKit
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return dto.KitResponse{}, err
	}

	for _, item := range members {
		if err := s.kits.SetMembership(ctx, item.ID, &kit.ID); err != nil {
			span.RecordError(err)
			return dto.KitResponse{}, err
		}
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "kit.created",
		EntityType: "kit",
		EntityID:   &kit.ID,
		Metadata:   map[string]interface{}{"code": kit.Code, "items": numbers},
	})
	return s.GetKit(ctx, kit.ID)
}

func (s *equipmentService) GetKit(ctx context.Context, id uint) (dto.KitResponse, error) {
	kit, err := s.kits.GetByID(ctx, id)
	if err != nil {
		return dto.KitResponse{}, mapKitError(err)
	}
	return s.kitResponse(ctx, kit)
}

func (s *equipmentService) GetKitByCode(ctx context.Context, code string) (dto.KitResponse, error) {
	kit, err := s.kits.GetByCode(ctx, normalizeNumber(code))
	if err != nil {
		return dto.KitResponse{}, mapKitError(err)
	}
	return s.kitResponse(ctx, kit)
}

func (s *equipmentService) ListKits(ctx context.Context) ([]dto.KitResponse, error) {
	kits, err := s.kits.List(ctx)
	if err != nil {
		return nil, err
	}
	responses := make([]dto.KitResponse, 0, len(kits))
	for _, kit := range kits {
		response, err := s.kitResponse(ctx, kit)
		if err != nil {
			return nil, err
		}
		responses = append(responses, response)
	}
	return responses, nil
}

func (s *equipmentService) AddKitMember(ctx context.Context, kitID uint, itemNumber string, actor ActivityActor) (dto.KitResponse, error) {
	kit, err := s.kits.GetByID(ctx, kitID)
	if err != nil {
		return dto.KitResponse{}, mapKitError(err)
	}

	number := normalizeNumber(itemNumber)
	item, err := s.items.GetItemByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.KitResponse{}, &ItemNotFoundError{Number: number}
		}
		return dto.KitResponse{}, err
	}

	if item.KitID != nil {
		if *item.KitID == kit.ID {
			return s.kitResponse(ctx, kit)
		}
		return dto.KitResponse{}, ErrKitMembership
	}

	// Membership may not change while the kit or the item is out.
	if err := s.ensureNotOnLoan(ctx, append(kit.Items, item)); err != nil {
		return dto.KitResponse{}, err
	}

	if err := s.kits.SetMembership(ctx, item.ID, &kit.ID); err != nil {
		return dto.KitResponse{}, mapItemError(err)
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "kit.member_added",
		EntityType: "kit",
		EntityID:   &kit.ID,
		Metadata:   map[string]interface{}{"number": item.Number},
	})
	return s.GetKit(ctx, kit.ID)
}

func (s *equipmentService) RemoveKitMember(ctx context.Context, kitID, itemID uint, actor ActivityActor) (dto.KitResponse, error) {
	kit, err := s.kits.GetByID(ctx, kitID)
	if err != nil {
		return dto.KitResponse{}, mapKitError(err)
	}

	item, err := s.items.GetItemByID(ctx, itemID)
	if err != nil {
		return dto.KitResponse{}, mapItemError(err)
	}
	if item.KitID == nil || *item.KitID != kit.ID {
		return dto.KitResponse{}, ErrKitMembership
	}

	if err := s.ensureNotOnLoan(ctx, kit.Items); err != nil {
		return dto.KitResponse{}, err
	}

	if err := s.kits.SetMembership(ctx, item.ID, nil); err != nil {
		return dto.KitResponse{}, mapItemError(err)
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "kit.member_removed",
		EntityType: "kit",
		EntityID:   &kit.ID,
		Metadata:   map[string]interface{}{"number": item.Number},
	})
	return s.GetKit(ctx, kit.ID)
}

func (s *equipmentService) kitResponse(ctx context.Context, kit models.Kit) (dto.KitResponse, error) {
	items, err := s.itemResponses(ctx, kit.Items)
	if err != nil {
		return dto.KitResponse{}, err
	}

	return dto.KitResponse{
		ID:           kit.ID,
		Code:         kit.Code,
		Name:         kit.Name,
		Note:         kit.Note,
		Availability: kitAvailability(items),
		Items:        items,
	}, nil
}

// resolveItems loads items by number, failing on the first unknown number.
func (s *equipmentService) resolveItems(ctx context.Context, numbers []string) ([]models.EquipmentItem, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	found, err := s.items.ListItemsByNumbers(ctx, numbers)
	if err != nil {
		return nil, err
	}

	byNumber := make(map[string]models.EquipmentItem, len(found))
	for _, item := range found {
		byNumber[item.Number] = item
	}

	items := make([]models.EquipmentItem, 0, len(numbers))
	for _, number := range numbers {
		item, ok := byNumber[number]
		if !ok {
			return nil, &ItemNotFoundError{Number: number}
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *equipmentService) ensureNotOnLoan(ctx context.Context, items []models.EquipmentItem) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	open, err := s.loans.OpenLoanIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, item := range items {
		if _, onLoan := open[item.ID]; onLoan {
			return ErrKitMembership
		}
	}
	return nil
}

func kitAvailability(items []dto.EquipmentItemResponse) string {
	if len(items) == 0 {
		return kitAvailabilityEmpty
	}
	state := repository.AvailabilityAvailable
	for _, item := range items {
		switch item.Availability {
		case repository.AvailabilityOnLoan:
			return repository.AvailabilityOnLoan
		case repository.AvailabilityInRepair:
			state = repository.AvailabilityInRepair
		}
	}
	return state
}

func openLoanRef(open map[uint]uint, itemID uint) *uint {
	if loanID, ok := open[itemID]; ok {
		return &loanID
	}
	return nil
}

func mapItemError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrItemNotFound
	}
	return err
}

func mapKitError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrKitNotFound
	}
	return err
}
