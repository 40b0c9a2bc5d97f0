package registration

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/identity"
	"github.com/trezcool/shule/core/profile"
)

var (
	// custom validation tags & texts
	studentFieldsTag  = "student_fields"
	studentFieldsText = "this field is required for student registration"

	teacherFieldsTag  = "teacher_fields"
	teacherFieldsText = "this field is required for teacher registration"
)

// RegisterValidators registers this package's struct-level validators.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(newRegistrationStructValidation, NewRegistration{})
	core.RegisterCustomTranslation(validate, translator, studentFieldsTag, studentFieldsText)
	core.RegisterCustomTranslation(validate, translator, teacherFieldsTag, teacherFieldsText)
}

// newRegistrationStructValidation does NewRegistration's per-role validation.
func newRegistrationStructValidation(sl validator.StructLevel) {
	nr, ok := sl.Current().Interface().(NewRegistration)
	if !ok {
		return
	}
	switch nr.Role {
	case profile.RoleStudent:
		if nr.ClassLevel == "" {
			sl.ReportError(nr.ClassLevel, "class_level", "ClassLevel", studentFieldsTag, "")
		}
		if nr.GuardianName == "" {
			sl.ReportError(nr.GuardianName, "guardian_name", "GuardianName", studentFieldsTag, "")
		}
		if nr.GuardianPhone == "" {
			sl.ReportError(nr.GuardianPhone, "guardian_phone", "GuardianPhone", studentFieldsTag, "")
		}
	case profile.RoleTeacher:
		if nr.Specialization == "" {
			sl.ReportError(nr.Specialization, "specialization", "Specialization", teacherFieldsTag, "")
		}
	}
}

// NewRegistration contains information needed to self-register into the
// platform. Role-specific fields are validated per the Role discriminant.
type NewRegistration struct {
	Role            string `json:"role" validate:"required,oneof=student teacher admin"`
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`

	// student fields
	ClassLevel    string   `json:"class_level,omitempty"`
	GuardianName  string   `json:"guardian_name,omitempty"`
	GuardianPhone string   `json:"guardian_phone,omitempty" validate:"omitempty,phone"`
	Subjects      []string `json:"subjects,omitempty"`
	Batches       []string `json:"batches,omitempty"`

	// teacher fields
	Specialization  string `json:"specialization,omitempty"`
	ExperienceYears int    `json:"experience_years,omitempty" validate:"omitempty,min=0,max=60"`
}

func (nr *NewRegistration) Validate(validate *validator.Validate) error {
	nr.Role = core.CleanString(nr.Role, true /* lower */)
	nr.Name = core.CleanString(nr.Name)
	nr.Email = core.CleanString(nr.Email, true /* lower */)
	nr.ClassLevel = core.CleanString(nr.ClassLevel)
	nr.GuardianName = core.CleanString(nr.GuardianName)
	nr.GuardianPhone = core.CleanString(nr.GuardianPhone)
	nr.Specialization = core.CleanString(nr.Specialization)
	return validate.Struct(nr)
}

// Metadata builds the role/attributes snapshot embedded in the provider
// account at signup time.
func (nr *NewRegistration) Metadata() identity.Metadata {
	return identity.Metadata{
		Role:            nr.Role,
		Name:            nr.Name,
		ClassLevel:      nr.ClassLevel,
		GuardianName:    nr.GuardianName,
		GuardianPhone:   nr.GuardianPhone,
		Subjects:        nr.Subjects,
		Batches:         nr.Batches,
		Specialization:  nr.Specialization,
		ExperienceYears: nr.ExperienceYears,
	}
}

// RegistrationResult is the structured outcome reported to the caller.
type RegistrationResult struct {
	Success              bool   `json:"success"`
	Message              string `json:"message"`
	RequiresConfirmation bool   `json:"requires_confirmation"`
	ProfileID            string `json:"profile_id,omitempty"`
	EnrollmentNo         string `json:"enrollment_no,omitempty"`
}
