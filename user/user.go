// Package user holds the end-user/manager directory. Users are created by
// onboarding completion only; addresses are globally unique and always
// stored lower-case.
package user

import "strings"

// Role is the set of principal roles mirrored from the ledger.
type Role string

const (
	RoleEndUser                    Role = "END_USER"
	RoleLicenseManager             Role = "LICENSE_MANAGER"
	RoleResearchInstitutionManager Role = "RESEARCH_INSTITUTION_MANAGER"
)

// Ledger role codes as emitted by the GrantedAccessUser event.
const (
	LedgerRoleEndUser                    = 1
	LedgerRoleLicenseManager             = 3
	LedgerRoleResearchInstitutionManager = 4
)

// Valid reports whether r is one of the three supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleEndUser, RoleLicenseManager, RoleResearchInstitutionManager:
		return true
	}
	return false
}

// RoleFromLedger maps a ledger role code to its Role. ok is false for any
// code outside the supported set.
func RoleFromLedger(code int64) (Role, bool) {
	switch code {
	case LedgerRoleEndUser:
		return RoleEndUser, true
	case LedgerRoleLicenseManager:
		return RoleLicenseManager, true
	case LedgerRoleResearchInstitutionManager:
		return RoleResearchInstitutionManager, true
	}
	return "", false
}

// User is a registered principal.
type User struct {
	Address            string `bson:"address" json:"address"`
	FirstName          string `bson:"firstName" json:"firstName"`
	Surnames           string `bson:"surnames" json:"surnames"`
	Phone              string `bson:"phone,omitempty" json:"phone,omitempty"`
	Email              string `bson:"email,omitempty" json:"email,omitempty"`
	InstitutionName    string `bson:"institutionName,omitempty" json:"institutionName,omitempty"`
	CardID             string `bson:"cardId,omitempty" json:"cardId,omitempty"`
	Role               Role   `bson:"role" json:"role"`
	DataURL            string `bson:"dataUrl,omitempty" json:"dataUrl,omitempty"`
	FirebaseCloudToken string `bson:"firebaseCloudToken,omitempty" json:"-"`
	Unregistered       bool   `bson:"unregistered" json:"unregistered"`
	Asleep             bool   `bson:"asleep" json:"asleep"`
}

// ProfileUpdate carries the mutable profile fields. Nil pointers leave the
// stored value untouched; last write wins.
type ProfileUpdate struct {
	FirstName          *string
	Surnames           *string
	Phone              *string
	Email              *string
	InstitutionName    *string
	CardID             *string
	DataURL            *string
	FirebaseCloudToken *string
	Asleep             *bool
}

// NormalizeAddress lower-cases an on-chain address to the directory's
// storage convention.
func NormalizeAddress(address string) string {
	return strings.ToLower(address)
}
