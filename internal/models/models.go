package models

// All lists every persisted entity in dependency order for schema migration.
func All() []interface{} {
	return []interface{}{
		&Student{},
		&Course{},
		&Enrollment{},
		&ClassSession{},
		&AttendanceRecord{},
		&ItemType{},
		&Kit{},
		&EquipmentItem{},
		&Loan{},
		&LoanItem{},
		&ActivityLog{},
	}
}
