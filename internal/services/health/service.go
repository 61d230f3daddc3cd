package health

import (
	"context"
	"database/sql"
	"time"

	"docuchat-backend/internal/shared/storage/db"
	"docuchat-backend/internal/shared/storage/object"
)

const checkTimeout = 3 * time.Second

// Service checks the catalog and object store dependencies.
type Service struct {
	DB    *sql.DB
	Store object.Store
}

// NewService constructs a new health service. A nil DB means the in-memory
// catalog is in use and is reported as such.
func NewService(database *sql.DB, store object.Store) *Service {
	return &Service{DB: database, Store: store}
}

// Report is the health payload.
type Report struct {
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks"`
}

// Status runs every check and reports each one as "ok", "memory" or the error
// text.
func (s *Service) Status(ctx context.Context) Report {
	report := Report{OK: true, Checks: map[string]string{}}

	if s.DB == nil {
		report.Checks["catalog"] = "memory"
	} else if err := db.Ping(ctx, s.DB, checkTimeout); err != nil {
		report.OK = false
		report.Checks["catalog"] = err.Error()
	} else {
		report.Checks["catalog"] = "ok"
	}

	if s.Store == nil {
		report.OK = false
		report.Checks["storage"] = "not configured"
	} else {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		if err := s.Store.Check(checkCtx); err != nil {
			report.OK = false
			report.Checks["storage"] = err.Error()
		} else {
			report.Checks["storage"] = "ok"
		}
	}
	return report
}
