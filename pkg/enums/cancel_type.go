package enums

// CancelType records why a driver left an assignment.
type CancelType string

const (
	CancelTypeDriver   CancelType = "driver_cancel"
	CancelTypeLate     CancelType = "late_cancel"
	CancelTypeAutoDrop CancelType = "auto_drop"
	CancelTypeNoShow   CancelType = "no_show"
	CancelTypeManager  CancelType = "manager"
)

// IsValid checks whether the given type matches the canonical enum.
func (c CancelType) IsValid() bool {
	switch c {
	case CancelTypeDriver, CancelTypeLate, CancelTypeAutoDrop, CancelTypeNoShow, CancelTypeManager:
		return true
	}
	return false
}
