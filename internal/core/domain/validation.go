package domain

import "github.com/google/uuid"

// Validate checks the fields a stored record must carry. It returns nil when
// the record is valid and the list of failed fields otherwise.
func (u *User) Validate() []FieldError {
	var errs []FieldError
	if u.Name == "" {
		errs = append(errs, FieldError{Field: "name", Message: "is required"})
	}
	if u.Email == "" {
		errs = append(errs, FieldError{Field: "email", Message: "is required"})
	}
	return errs
}

// ValidationErr wraps the result of Validate as an error, or nil.
func (u *User) ValidationErr() error {
	if fields := u.Validate(); len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// NewID issues a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}

// ParseID normalizes a record identifier, failing with ErrInvalidID when the
// value is not a UUID.
func ParseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, ErrInvalidID
	}
	return parsed, nil
}
