package dto

// ImportRowError reports a rejected input row.
type ImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ScheduleImportResult summarises a schedule import.
type ScheduleImportResult struct {
	DryRun          bool `json:"dry_run"`
	RowsRead        int  `json:"rows_read"`
	CoursesCreated  int  `json:"courses_created"`
	SessionsCreated int  `json:"sessions_created"`
	SessionsSkipped int  `json:"sessions_skipped"`
	// Incomplete is set when a write failed part way. The counts cover the
	// rows written before the failing row, which is listed in Errors.
	Incomplete bool             `json:"incomplete"`
	Errors     []ImportRowError `json:"errors"`
}

// EquipmentImportRequest registers a batch of item numbers of one type.
type EquipmentImportRequest struct {
	ItemTypeID  *uint    `json:"item_type_id"`
	Description string   `json:"description" validate:"omitempty,max=255"`
	Numbers     []string `json:"numbers" validate:"required,min=1,max=500,dive,required,max=64"`
	DryRun      bool     `json:"dry_run"`
}

// EquipmentImportResult summarises an equipment import.
type EquipmentImportResult struct {
	DryRun     bool     `json:"dry_run"`
	Created    []string `json:"created"`
	Duplicates []string `json:"duplicates"`
}
