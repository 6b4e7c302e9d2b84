package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

// PrincipalKey is the context key under which the authenticated principal
// is stored.
const PrincipalKey contextKey = "auth_principal"

// Role is the coarse account role carried in the token.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleDoctor   Role = "doctor"
	RoleHospital Role = "hospital"
	RolePatient  Role = "patient"
)

// AdminType narrows RoleAdmin to its administrative scope.
type AdminType string

const (
	SuperAdmin    AdminType = "super_admin"
	HospitalAdmin AdminType = "hospital_admin"
	DeptAdmin     AdminType = "dept_admin"
)

// Claims are the JWT claims this service reads. Affiliation ids are optional
// and depend on the role: hospital accounts and hospital admins carry
// hospital_id, department admins additionally carry department_id, doctors
// carry doctor_id, patients carry patient_id.
type Claims struct {
	jwt.RegisteredClaims
	Role         Role      `json:"role"`
	AdminType    AdminType `json:"admin_type,omitempty"`
	HospitalID   string    `json:"hospital_id,omitempty"`
	DepartmentID string    `json:"department_id,omitempty"`
	DoctorID     string    `json:"doctor_id,omitempty"`
	PatientID    string    `json:"patient_id,omitempty"`
}

// Principal is the authenticated caller as seen by services and policies.
type Principal struct {
	UserID       uuid.UUID
	Role         Role
	AdminType    AdminType
	HospitalID   *uuid.UUID
	DepartmentID *uuid.UUID
	DoctorID     *uuid.UUID
	PatientID    *uuid.UUID
}

// IsSuperAdmin reports whether the principal has unrestricted scope.
func (p *Principal) IsSuperAdmin() bool {
	return p.Role == RoleAdmin && p.AdminType == SuperAdmin
}

// JWTMiddleware validates Bearer tokens signed with the shared HS256 secret
// and stores the resulting Principal in both the echo and request contexts.
func JWTMiddleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return secret, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			principal, err := principalFromClaims(claims)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			setPrincipal(c, principal)
			return next(c)
		}
	}
}

func principalFromClaims(claims *Claims) (*Principal, error) {
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid subject claim")
	}

	switch claims.Role {
	case RoleAdmin, RoleDoctor, RoleHospital, RolePatient:
	default:
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}

	p := &Principal{
		UserID:    userID,
		Role:      claims.Role,
		AdminType: claims.AdminType,
	}

	if p.HospitalID, err = parseOptionalID(claims.HospitalID, "hospital_id"); err != nil {
		return nil, err
	}
	if p.DepartmentID, err = parseOptionalID(claims.DepartmentID, "department_id"); err != nil {
		return nil, err
	}
	if p.DoctorID, err = parseOptionalID(claims.DoctorID, "doctor_id"); err != nil {
		return nil, err
	}
	if p.PatientID, err = parseOptionalID(claims.PatientID, "patient_id"); err != nil {
		return nil, err
	}

	return p, nil
}

func parseOptionalID(raw, name string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s claim", name)
	}
	return &id, nil
}

// DevAuthMiddleware grants every request a super-admin principal. Development
// only; Config.Validate refuses to start without a JWT secret outside of
// ENV=development.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			setPrincipal(c, &Principal{
				UserID:    uuid.New(),
				Role:      RoleAdmin,
				AdminType: SuperAdmin,
			})
			return next(c)
		}
	}
}

func setPrincipal(c echo.Context, p *Principal) {
	c.Set(string(PrincipalKey), p)
	ctx := context.WithValue(c.Request().Context(), PrincipalKey, p)
	c.SetRequest(c.Request().WithContext(ctx))
}

// PrincipalFromContext retrieves the authenticated principal, or nil when the
// request was not authenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(PrincipalKey).(*Principal)
	return p
}

// PrincipalFromEcho retrieves the principal from an echo context.
func PrincipalFromEcho(c echo.Context) *Principal {
	p, _ := c.Get(string(PrincipalKey)).(*Principal)
	return p
}
