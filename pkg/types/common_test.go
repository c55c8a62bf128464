package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		input Operation
		want  bool
	}{
		{"Upload", OperationUpload, true},
		{"Download", OperationDownload, true},
		{"Verify", OperationVerify, true},
		{"Unknown", Operation("delete"), false},
		{"Empty", Operation(""), false},
		{"Case sensitive", Operation("Upload"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.input.IsValid())
		})
	}
}

func TestBatchRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"Empty object", `{}`, true},
		{"Missing objects", `{"operation":"upload"}`, true},
		{"Missing operation", `{"objects":[]}`, true},
		{"Missing oid", `{"operation":"upload","objects":[{"size":1}]}`, true},
		{"Missing size", `{"operation":"upload","objects":[{"oid":"a"}]}`, true},
		{"Negative size", `{"operation":"upload","objects":[{"oid":"a","size":-1}]}`, true},
		{"Unknown operation is structurally fine", `{"operation":"nope","objects":[]}`, false},
		{"Valid", `{"operation":"download","objects":[{"oid":"a","size":0}]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req BatchRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			err := req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestObjectResult_OmitsEmptyFields(t *testing.T) {
	res := ObjectResult{Oid: "abc", Size: 3, Error: &ObjectError{Code: 404, Message: "gone"}}
	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"oid":"abc","size":3,"error":{"code":404,"message":"gone"}}`, string(data))
}

func TestVerifyRequest_Validate(t *testing.T) {
	oid := "abc"
	size := int64(0)

	assert.NoError(t, (&VerifyRequest{Oid: &oid, Size: &size}).Validate())
	assert.ErrorIs(t, (&VerifyRequest{Size: &size}).Validate(), ErrInvalidRequest)
	assert.ErrorIs(t, (&VerifyRequest{Oid: &oid}).Validate(), ErrInvalidRequest)

	negative := int64(-1)
	assert.ErrorIs(t, (&VerifyRequest{Oid: &oid, Size: &negative}).Validate(), ErrInvalidRequest)

	empty := ""
	assert.Error(t, (&VerifyRequest{Oid: &empty, Size: &size}).Validate())
}
