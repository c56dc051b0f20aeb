package billing

import (
	"context"
	"errors"

	"github.com/hms/hms/internal/domain/patient"
)

type patientDirectory struct {
	svc *patient.Service
}

// NewPatientDirectory adapts the patient service into the directory the
// engine consults at bill creation.
func NewPatientDirectory(svc *patient.Service) PatientDirectory {
	return &patientDirectory{svc: svc}
}

func (d *patientDirectory) FindByID(ctx context.Context, id string) error {
	_, err := d.svc.Get(ctx, id)
	var nfe *patient.NotFoundError
	if errors.As(err, &nfe) {
		return notFound("patient", id)
	}
	return err
}
