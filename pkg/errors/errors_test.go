package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal error", errors.CodeInternal, "unexpected failure"},
		{"artifact missing", errors.ErrCodeArtifactMissing, "model not found"},
		{"invalid input", errors.ErrCodeInvalidInput, "temperature out of range"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)

			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail)
			assert.Nil(t, ae.Cause)
		})
	}
}

func TestError_Format(t *testing.T) {
	ae := errors.New(errors.ErrCodeArtifactMissing, "model artifact not found")
	assert.Equal(t, "[MDL_001] model artifact not found", ae.Error())

	ae = ae.WithDetail("models/chemistry_model_v2.json")
	assert.Equal(t, "[MDL_001] model artifact not found: models/chemistry_model_v2.json", ae.Error())
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, errors.CodeInternal, "ignored"))
}

func TestWrap_PreservesCodeWhenUnknown(t *testing.T) {
	inner := errors.ArtifactMissing("encoders.json")
	outer := errors.Wrap(inner, errors.CodeUnknown, "load failed")

	assert.Equal(t, errors.ErrCodeArtifactMissing, outer.Code)
	assert.True(t, errors.IsArtifactMissing(outer))
	assert.True(t, stderrors.Is(outer, inner))
}

func TestIsCode_TraversesFmtWrapping(t *testing.T) {
	inner := errors.InvalidInput("Temperature must be a number")
	wrapped := fmt.Errorf("form: %w", inner)

	assert.True(t, errors.IsInvalidInput(wrapped))
	assert.False(t, errors.IsUnknownCategory(wrapped))
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(wrapped))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(stderrors.New("plain")))
}

func TestUnknownCategory_CarriesAcceptedValues(t *testing.T) {
	accepted := []string{"Br-", "Cl-", "F-"}
	ae := errors.UnknownCategory("Leaving_Group", "At-", accepted)

	accepted[0] = "mutated"

	assert.Equal(t, errors.ErrCodeUnknownCategory, ae.Code)
	assert.Equal(t, "Leaving_Group", ae.Field)
	assert.Equal(t, []string{"Br-", "Cl-", "F-"}, ae.Accepted)
	assert.Contains(t, ae.Error(), `"At-"`)
	assert.Contains(t, ae.Error(), "expected one of: Br-, Cl-, F-")
}

func TestAsAppError(t *testing.T) {
	ae, ok := errors.AsAppError(fmt.Errorf("x: %w", errors.DatasetInvalid("bad header")))
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeDatasetInvalid, ae.Code)

	_, ok = errors.AsAppError(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestBuilders_NilSafe(t *testing.T) {
	var ae *errors.AppError
	assert.Nil(t, ae.WithDetail("x"))
	assert.Nil(t, ae.WithCause(stderrors.New("x")))
	assert.Nil(t, ae.WithField("x"))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, errors.HTTPStatus(errors.ErrCodeInvalidInput))
	assert.Equal(t, http.StatusUnprocessableEntity, errors.HTTPStatus(errors.ErrCodeUnknownCategory))
	assert.Equal(t, http.StatusServiceUnavailable, errors.HTTPStatus(errors.ErrCodeArtifactMissing))
	assert.Equal(t, http.StatusInternalServerError, errors.HTTPStatus(errors.ErrorCode("nope")))
}

func TestDefaultMessage(t *testing.T) {
	assert.Equal(t, "model artifact not found", errors.DefaultMessage(errors.ErrCodeArtifactMissing))
	assert.Equal(t, "unknown error", errors.DefaultMessage(errors.ErrorCode("nope")))
}
