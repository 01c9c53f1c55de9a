package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/shagun/internal/model"
)

type signupInput struct {
	Name     string `json:"name" validate:"required,max=10"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func TestStruct_Valid(t *testing.T) {
	v := New()
	if err := v.Struct(signupInput{Name: "Asha", Email: "a@example.com", Password: "password1"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	v := New()

	err := v.Struct(signupInput{Name: "", Email: "not-an-email", Password: "short"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeValidation {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeValidation)
	}
	for _, want := range []string{"name is required", "email must be a valid email address", "password must be at least 8"} {
		if !strings.Contains(apiErr.Message, want) {
			t.Errorf("message %q should contain %q", apiErr.Message, want)
		}
	}
}
