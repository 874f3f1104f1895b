package assignments

import (
	"time"

	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/internal/lifecycle"
	"github.com/routepilothq/routepilot-backend/pkg/db/models"
)

// CreateInput is a manager- or scheduler-initiated assignment creation.
type CreateInput struct {
	OrganizationID uuid.UUID
	RouteID        uuid.UUID
	WarehouseID    uuid.UUID
	Date           time.Time
	UserID         *uuid.UUID
	AssignedBy     uuid.UUID
}

// Detail is an assignment read together with the transitions legal right now,
// so clients render exactly what the server will enforce.
type Detail struct {
	Assignment models.Assignment
	Shift      *models.Shift
	Flags      lifecycle.Flags
}

// StartInventoryInput records the parcel count loaded at inventory start.
type StartInventoryInput struct {
	ParcelsStart int
}

// CompleteInput closes out the shift's delivery counts.
type CompleteInput struct {
	ParcelsDelivered int
	ParcelsReturned  int
}

// ShiftEditInput is a manager correction to a shift's recorded data. Nil
// fields are left untouched.
type ShiftEditInput struct {
	ParcelsStart     *int
	ParcelsDelivered *int
	ParcelsReturned  *int
}
