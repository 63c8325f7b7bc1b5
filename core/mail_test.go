package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmailTemplates(t *testing.T) {
	require.NoError(t, ParseEmailTemplates(&Config{TestMode: true, FrontendBaseURL: "http://school.test"}))

	msg := &EmailMessage{
		TemplateName: "password_reset",
		TemplateData: map[string]string{"Name": "Amina", "UID": "uid", "Token": "tok"},
	}
	require.NoError(t, msg.Render())

	assert.Contains(t, msg.TextContent, "Hello Amina,")
	assert.Contains(t, msg.TextContent, "http://school.test/password-reset/uid/tok")
	assert.Contains(t, msg.TextContent, "Ratiba") // from the _base layout
	assert.Contains(t, msg.HTMLContent, "http://school.test/password-reset/uid/tok")
	assert.True(t, msg.HasContent())
}
