package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Status   string `json:"status" validate:"omitempty,item_status"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

func TestStructCollectsFieldErrors(t *testing.T) {
	err := Struct(signup{Email: "nope", Password: "short", Status: "melted", Quantity: -1})
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"must be a valid email address"}, verr.Fields["email"])
	assert.Equal(t, []string{"must be at least 8 characters"}, verr.Fields["password"])
	assert.Equal(t, []string{"must be a known item status"}, verr.Fields["status"])
	assert.Equal(t, []string{"must be at least 0"}, verr.Fields["quantity"])
	assert.Contains(t, err.Error(), "email must be a valid email address")
}

func TestStructValid(t *testing.T) {
	assert.NoError(t, Struct(signup{Email: "a@b.co", Password: "longenough", Status: "on_order"}))
}

func TestVar(t *testing.T) {
	err := Var("name", "", "required")
	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"is required"}, verr.Fields["name"])

	assert.NoError(t, Var("name", "Rice", "required"))
}
