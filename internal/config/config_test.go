package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateHost(t *testing.T) {
	assert.NoError(t, ValidateHost("127.0.0.1"))
	assert.NoError(t, ValidateHost("example.com"))
	assert.Error(t, ValidateHost(""))
	assert.Error(t, ValidateHost("not a host!"))
}

func TestValidatePort(t *testing.T) {
	assert.NoError(t, ValidatePort("9090"))
	assert.Error(t, ValidatePort(""))
	assert.Error(t, ValidatePort("not-a-number"))
	assert.Error(t, ValidatePort("0"))
	assert.Error(t, ValidatePort("70000"))
}

func TestValidateFilePath(t *testing.T) {
	assert.NoError(t, ValidateFilePath("./downloads"))
	assert.NoError(t, ValidateFilePath("/tmp/rftp"))
	assert.Error(t, ValidateFilePath(""))
	assert.Error(t, ValidateFilePath("~/evil"))
	assert.Error(t, ValidateFilePath("dst; rm -rf /"))
}

func TestValidateTimeout(t *testing.T) {
	assert.NoError(t, ValidateTimeout("2s"))
	assert.NoError(t, ValidateTimeout("500ms"))
	assert.Error(t, ValidateTimeout(""))
	assert.Error(t, ValidateTimeout("two seconds"))
}

func TestParseProtocol(t *testing.T) {
	proto, err := ParseProtocol("0")
	assert.NoError(t, err)
	assert.Equal(t, StopWait, proto)

	proto, err = ParseProtocol("selective-repeat")
	assert.NoError(t, err)
	assert.Equal(t, SelectiveRepeat, proto)

	_, err = ParseProtocol("bogus")
	assert.Error(t, err)
}
