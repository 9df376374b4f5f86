package repository

import "gorm.io/gorm"

// Page selects a window of a list query. A zero PageSize returns everything.
type Page struct {
	Page     int
	PageSize int
}

func (p Page) apply(query *gorm.DB) *gorm.DB {
	if p.PageSize <= 0 {
		return query
	}
	page := p.Page
	if page <= 0 {
		page = 1
	}
	return query.Offset((page - 1) * p.PageSize).Limit(p.PageSize)
}

func countAndPage(query *gorm.DB, page Page) (*gorm.DB, int64, error) {
	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	return page.apply(query), total, nil
}
