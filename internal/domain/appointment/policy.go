package appointment

import (
	"github.com/caresync/caresync/internal/platform/apperr"
	"github.com/caresync/caresync/internal/platform/auth"
)

// Visibility is dispatched through a per-scope strategy table rather than a
// chain of role conditionals. Each scope both narrows list queries and
// authorizes single-record reads, so the two paths can never disagree.
type accessScope struct {
	// restrict tightens a list filter to the caller's scope.
	restrict func(p *auth.Principal, f *ListFilter) error
	// allows reports whether the caller may read a single appointment.
	allows func(p *auth.Principal, a *Appointment) bool
}

// Both admin subtypes see their whole hospital; a department admin's
// department only matters for administrative actions elsewhere, not for
// appointment visibility.
var adminScopes = map[auth.AdminType]accessScope{
	auth.SuperAdmin:    unrestrictedScope,
	auth.HospitalAdmin: hospitalScope,
	auth.DeptAdmin:     hospitalScope,
}

var roleScopes = map[auth.Role]accessScope{
	auth.RoleHospital: hospitalScope,
	auth.RoleDoctor:   doctorScope,
	auth.RolePatient:  patientScope,
}

// scopeFor resolves the caller's access scope. Admin subtypes take priority
// over the plain role table.
func scopeFor(p *auth.Principal) (accessScope, error) {
	if p.Role == auth.RoleAdmin {
		scope, ok := adminScopes[p.AdminType]
		if !ok {
			return accessScope{}, apperr.Forbidden("unknown admin scope %q", p.AdminType)
		}
		return scope, nil
	}
	scope, ok := roleScopes[p.Role]
	if !ok {
		return accessScope{}, apperr.Forbidden("role %q has no appointment access", p.Role)
	}
	return scope, nil
}

var unrestrictedScope = accessScope{
	restrict: func(p *auth.Principal, f *ListFilter) error { return nil },
	allows:   func(p *auth.Principal, a *Appointment) bool { return true },
}

var hospitalScope = accessScope{
	restrict: func(p *auth.Principal, f *ListFilter) error {
		if p.HospitalID == nil {
			return apperr.Forbidden("account has no hospital affiliation")
		}
		f.HospitalID = p.HospitalID
		return nil
	},
	allows: func(p *auth.Principal, a *Appointment) bool {
		return p.HospitalID != nil && *p.HospitalID == a.HospitalID
	},
}

var doctorScope = accessScope{
	restrict: func(p *auth.Principal, f *ListFilter) error {
		if p.DoctorID == nil {
			return apperr.Forbidden("account has no doctor affiliation")
		}
		f.DoctorID = p.DoctorID
		return nil
	},
	allows: func(p *auth.Principal, a *Appointment) bool {
		return p.DoctorID != nil && a.DoctorID != nil && *p.DoctorID == *a.DoctorID
	},
}

var patientScope = accessScope{
	restrict: func(p *auth.Principal, f *ListFilter) error {
		if p.PatientID == nil {
			return apperr.Forbidden("account has no patient affiliation")
		}
		f.PatientID = p.PatientID
		return nil
	},
	allows: func(p *auth.Principal, a *Appointment) bool {
		return p.PatientID != nil && *p.PatientID == a.PatientID
	},
}

// applyReadScope narrows a list filter to what the caller may see.
func applyReadScope(p *auth.Principal, f *ListFilter) error {
	scope, err := scopeFor(p)
	if err != nil {
		return err
	}
	return scope.restrict(p, f)
}

// authorizeRead checks single-record visibility.
func authorizeRead(p *auth.Principal, a *Appointment) error {
	scope, err := scopeFor(p)
	if err != nil {
		return err
	}
	if !scope.allows(p, a) {
		return apperr.Forbidden("appointment is outside your scope")
	}
	return nil
}

// authorizeOwnerPatient allows only the literal owning patient. Cancel and
// delete go through here; even a super admin cannot cancel on a patient's
// behalf.
func authorizeOwnerPatient(p *auth.Principal, a *Appointment) error {
	if p.Role != auth.RolePatient || p.PatientID == nil || *p.PatientID != a.PatientID {
		return apperr.Forbidden("only the owning patient may do this")
	}
	return nil
}

// authorizeScheduleChange gates reschedule and doctor assignment: hospital
// accounts and hospital or department admins within their hospital, or a
// super admin.
func authorizeScheduleChange(p *auth.Principal, a *Appointment) error {
	if p.IsSuperAdmin() {
		return nil
	}
	switch {
	case p.Role == auth.RoleHospital,
		p.Role == auth.RoleAdmin && p.AdminType == auth.HospitalAdmin,
		p.Role == auth.RoleAdmin && p.AdminType == auth.DeptAdmin:
		if p.HospitalID == nil {
			return apperr.Forbidden("account has no hospital affiliation")
		}
		if *p.HospitalID != a.HospitalID {
			return apperr.Forbidden("appointment belongs to another hospital")
		}
		return nil
	}
	return apperr.Forbidden("not allowed to change this appointment's schedule")
}

// authorizeStatusChange gates lifecycle updates: everyone who can change the
// schedule, plus the assigned doctor.
func authorizeStatusChange(p *auth.Principal, a *Appointment) error {
	if p.Role == auth.RoleDoctor {
		if p.DoctorID != nil && a.DoctorID != nil && *p.DoctorID == *a.DoctorID {
			return nil
		}
		return apperr.Forbidden("appointment is not assigned to you")
	}
	return authorizeScheduleChange(p, a)
}
