package core

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type welcomeData struct {
	Name     string
	School   string
	Grade    Grade
	Subjects []Subject
}

func TestEmailMessage_Render(t *testing.T) {
	t.Run("template", func(t *testing.T) {
		msg := &EmailMessage{
			To:           []mail.Address{{Name: "Ravi", Address: "ravi@school.test"}},
			Subject:      "Welcome",
			TemplateName: "welcome_teacher",
			TemplateData: welcomeData{Name: "Ravi", School: "Hill School", Grade: Grade9, Subjects: []Subject{SubjectMath, SubjectPhysics}},
		}
		require.NoError(t, msg.Render("https://portal.test/"))

		assert.True(t, msg.HasRecipients())
		assert.True(t, msg.HasContent())
		assert.Contains(t, msg.TextContent, "Hello Ravi,")
		assert.Contains(t, msg.TextContent, "Subjects: math, physics")
		assert.Contains(t, msg.TextContent, "https://portal.test/teacher/dashboard")
		assert.Contains(t, msg.HTMLContent, "<strong>Hill School</strong>")
		assert.Contains(t, msg.HTMLContent, "Grade: 9")
	})

	t.Run("no grade", func(t *testing.T) {
		msg := &EmailMessage{TemplateName: "welcome_teacher", TemplateData: welcomeData{Name: "Ravi"}}
		require.NoError(t, msg.Render(""))
		assert.Contains(t, msg.TextContent, "Grade: not set")
	})

	t.Run("plain body", func(t *testing.T) {
		msg := &EmailMessage{BodyStr: "hello"}
		require.NoError(t, msg.Render(""))
		assert.Equal(t, "hello", msg.TextContent)
		assert.Empty(t, msg.HTMLContent)
		assert.False(t, msg.HasRecipients())
	})

	t.Run("unknown template", func(t *testing.T) {
		msg := &EmailMessage{TemplateName: "nope"}
		assert.Error(t, msg.Render(""))
	})
}
