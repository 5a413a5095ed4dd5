package models

import "time"

// OrganizationStatus is the lifecycle flag of a client organization.
type OrganizationStatus string

const (
	OrganizationActive   OrganizationStatus = "active"
	OrganizationInactive OrganizationStatus = "inactive"
)

// Organization is a client organization using the conversion service.
type Organization struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Email            string             `json:"email"`
	ContactPerson    string             `json:"contactPerson"`
	Phone            string             `json:"phone"`
	Description      string             `json:"description"`
	Status           OrganizationStatus `json:"status"`
	ConversionsCount int                `json:"conversionsCount"`
	LastActivity     time.Time          `json:"lastActivity"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// OrganizationInput holds the editable fields of an organization.
type OrganizationInput struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	ContactPerson string `json:"contactPerson"`
	Phone         string `json:"phone"`
	Description   string `json:"description"`
}
