package chart

import (
	"fmt"

	"dentalvoice/internal/models"
)

type InvalidEntryError struct {
	Reason string
}

func (e *InvalidEntryError) Error() string {
	return "invalid chart entry: " + e.Reason
}

func invalid(number int, condition string) string {
	switch {
	case !models.IsToothNumber(number):
		return fmt.Sprintf("tooth %d is not on the chart", number)
	case !models.IsToothCondition(condition):
		return fmt.Sprintf("tooth %d: unknown condition %q", number, condition)
	default:
		return ""
	}
}
