package directory

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/careguard/internal/platform/policy"
)

type UserStatus string

const (
	StatusActive   UserStatus = "ACTIVE"
	StatusInactive UserStatus = "INACTIVE"
	StatusDeleted  UserStatus = "DELETED"
)

type User struct {
	ID         uuid.UUID   `json:"id"`
	Email      string      `json:"email"`
	Phone      *string     `json:"phone,omitempty"`
	FirstName  string      `json:"first_name"`
	LastName   string      `json:"last_name"`
	Role       policy.Role `json:"role"`
	FacilityID *uuid.UUID  `json:"facility_id,omitempty"`
	Status     UserStatus  `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	DeletedAt  *time.Time  `json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "app_user" }

func (u *User) Actor() policy.Actor {
	return policy.Actor{ID: u.ID, Role: u.Role, FacilityID: u.FacilityID}
}

func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

type Patient struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	FacilityID       *uuid.UUID `json:"facility_id,omitempty"`
	MRN              string     `json:"mrn"`
	DateOfBirth      *time.Time `json:"date_of_birth,omitempty"`
	Gender           *string    `json:"gender,omitempty"`
	Address          *string    `json:"address,omitempty"`
	EmergencyContact *string    `json:"emergency_contact,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Patient) TableName() string { return "patient" }

// PatientUpdate carries the editable demographics. Nil fields are left
// unchanged.
type PatientUpdate struct {
	DateOfBirth      *time.Time `json:"date_of_birth"`
	Gender           *string    `json:"gender"`
	Address          *string    `json:"address"`
	EmergencyContact *string    `json:"emergency_contact"`
}

// Provider is a provider profile joined with its user's name and contact.
type Provider struct {
	ID                uuid.UUID  `json:"id"`
	UserID            uuid.UUID  `json:"user_id"`
	FacilityID        *uuid.UUID `json:"facility_id,omitempty"`
	Specialty         string     `json:"specialty"`
	LicenseNumber     string     `json:"license_number"`
	NPI               *string    `json:"npi,omitempty"`
	Bio               *string    `json:"bio,omitempty"`
	AcceptingPatients bool       `json:"accepting_patients"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	FirstName string  `json:"first_name" gorm:"->"`
	LastName  string  `json:"last_name" gorm:"->"`
	Email     string  `json:"email" gorm:"->"`
	Phone     *string `json:"phone,omitempty" gorm:"->"`
}

func (Provider) TableName() string { return "provider" }

func (p *Provider) Projection() policy.Resource {
	return policy.Resource{Type: policy.ResourceProvider, ID: p.ID, OwnerUserID: &p.UserID, FacilityID: p.FacilityID}
}

// ProviderUpdate carries editable profile fields. Nil fields are left
// unchanged.
type ProviderUpdate struct {
	Specialty         *string `json:"specialty"`
	Bio               *string `json:"bio"`
	AcceptingPatients *bool   `json:"accepting_patients"`
	LicenseNumber     *string `json:"license_number"`
	NPI               *string `json:"npi"`
}

type ProviderFilter struct {
	FacilityID        *uuid.UUID
	Specialty         string
	AcceptingPatients *bool
}

// ProviderView is what a caller sees of a provider. Callers allowed to read
// the provider get FullProviderView; everyone else gets PublicProviderView.
type ProviderView interface {
	providerView()
}

type FullProviderView struct {
	View              string     `json:"view"`
	ID                uuid.UUID  `json:"id"`
	UserID            uuid.UUID  `json:"user_id"`
	FacilityID        *uuid.UUID `json:"facility_id,omitempty"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Phone             *string    `json:"phone,omitempty"`
	Specialty         string     `json:"specialty"`
	LicenseNumber     string     `json:"license_number"`
	NPI               *string    `json:"npi,omitempty"`
	Bio               *string    `json:"bio,omitempty"`
	AcceptingPatients bool       `json:"accepting_patients"`
	CanEdit           bool       `json:"can_edit"`
}

type PublicProviderView struct {
	View              string    `json:"view"`
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Specialty         string    `json:"specialty"`
	Bio               *string   `json:"bio,omitempty"`
	AcceptingPatients bool      `json:"accepting_patients"`
}

func (FullProviderView) providerView()   {}
func (PublicProviderView) providerView() {}

func providerName(p *Provider) string {
	u := User{FirstName: p.FirstName, LastName: p.LastName}
	return u.FullName()
}

func fullView(p *Provider, canEdit bool) FullProviderView {
	return FullProviderView{
		View:              "full",
		ID:                p.ID,
		UserID:            p.UserID,
		FacilityID:        p.FacilityID,
		Name:              providerName(p),
		Email:             p.Email,
		Phone:             p.Phone,
		Specialty:         p.Specialty,
		LicenseNumber:     p.LicenseNumber,
		NPI:               p.NPI,
		Bio:               p.Bio,
		AcceptingPatients: p.AcceptingPatients,
		CanEdit:           canEdit,
	}
}

func publicView(p *Provider) PublicProviderView {
	return PublicProviderView{
		View:              "public",
		ID:                p.ID,
		Name:              providerName(p),
		Specialty:         p.Specialty,
		Bio:               p.Bio,
		AcceptingPatients: p.AcceptingPatients,
	}
}
