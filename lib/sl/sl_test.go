package sl

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecret(t *testing.T) {
	assert.Equal(t, "?", Secret("").Value.String())
	assert.Equal(t, "***", Secret("abc").Value.String())
	assert.Equal(t, "12345***", Secret("123456:ABCDEF").Value.String())
}

func TestErr(t *testing.T) {
	assert.Equal(t, "boom", Err(errors.New("boom")).Value.String())
	assert.Equal(t, "", Err(nil).Value.String())
}

func TestShort(t *testing.T) {
	long := strings.Repeat("я", 60)
	got := Short("text", long).Value.String()
	assert.Equal(t, strings.Repeat("я", 50)+"...", got)
	assert.Equal(t, "hi", Short("text", "hi").Value.String())
}
