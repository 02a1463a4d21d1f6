package guard

import (
	"fmt"

	"github.com/ehr/careguard/internal/platform/policy"
)

// projectionQueries select (id, owner_user_id, facility_id, subject_role)
// for one resource. Patient-owned resources take owner and facility from the
// owning patient so clinical data is scoped to where the patient is treated.
// The single parameter is written as ? and rebound per driver.
var projectionQueries = map[policy.ResourceType]string{
	policy.ResourcePatient: `
		SELECT p.id, p.user_id, p.facility_id, ''
		FROM patient p WHERE p.id = ?`,
	policy.ResourceProvider: `
		SELECT pr.id, pr.user_id, pr.facility_id, ''
		FROM provider pr WHERE pr.id = ?`,
	policy.ResourceMedicalRecord: `
		SELECT m.id, p.user_id, p.facility_id, ''
		FROM medical_record m JOIN patient p ON p.id = m.patient_id
		WHERE m.id = ?`,
	policy.ResourceAppointment: `
		SELECT a.id, p.user_id, p.facility_id, ''
		FROM appointment a JOIN patient p ON p.id = a.patient_id
		WHERE a.id = ?`,
	policy.ResourceInsurancePolicy: `
		SELECT ip.id, p.user_id, p.facility_id, ''
		FROM insurance_policy ip JOIN patient p ON p.id = ip.patient_id
		WHERE ip.id = ?`,
	policy.ResourceInsuranceClaim: `
		SELECT c.id, p.user_id, p.facility_id, ''
		FROM insurance_claim c
		JOIN insurance_policy ip ON ip.id = c.policy_id
		JOIN patient p ON p.id = ip.patient_id
		WHERE c.id = ?`,
	policy.ResourceNotification: `
		SELECT n.id, n.recipient_id, u.facility_id, ''
		FROM notification n JOIN app_user u ON u.id = n.recipient_id
		WHERE n.id = ?`,
	policy.ResourceUser: `
		SELECT u.id, u.id, u.facility_id, u.role
		FROM app_user u WHERE u.id = ? AND u.status <> 'DELETED'`,
}

func projectionQuery(rt policy.ResourceType) (string, error) {
	q, ok := projectionQueries[rt]
	if !ok {
		return "", fmt.Errorf("no projection for resource type %q", rt)
	}
	return q, nil
}
