package patient

import (
	"strings"
	"time"
)

// Patient is the registry entry the billing subsystem validates bill
// ownership against. This directory is intentionally thin; clinical data
// lives elsewhere.
type Patient struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (p *Patient) validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return validationf("id", "must not be blank")
	}
	if strings.TrimSpace(p.Name) == "" {
		return validationf("name", "must not be blank")
	}
	return nil
}
