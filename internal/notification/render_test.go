package notification

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_RendersEveryKind(t *testing.T) {
	r, err := NewRenderer("Northside School Library")
	require.NoError(t, err)

	data := Data{
		RecipientName: "Ada",
		BookTitle:     "The Hobbit",
		DueDate:       time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC),
		DaysOverdue:   3,
		Penalty:       "1.50 USD",
		InactiveDays:  30,
	}
	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			content, err := r.Render(kind, data)
			require.NoError(t, err)
			assert.NotEmpty(t, content.Subject)
			assert.Contains(t, content.HTML, "Hello Ada")
			assert.Contains(t, content.HTML, "Northside School Library")
		})
	}
}

func TestRenderer_OverdueContent(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	content, err := r.Render(KindOverduePenalty, Data{
		RecipientName: "Ben",
		BookTitle:     "Dune",
		DueDate:       time.Date(2025, time.March, 7, 0, 0, 0, 0, time.UTC),
		DaysOverdue:   3,
		Penalty:       "1.50",
	})
	require.NoError(t, err)
	assert.Equal(t, `Overdue: "Dune" (3 days, 1.50)`, content.Subject)
	assert.Contains(t, content.HTML, "3 day(s) overdue")
	assert.Contains(t, content.HTML, "Friday, March 7, 2025")
}

func TestRenderer_EscapesBodyButNotSubject(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	content, err := r.Render(KindDueTomorrow, Data{RecipientName: "C", BookTitle: "Tom & Jerry <3"})
	require.NoError(t, err)
	assert.Contains(t, content.Subject, "Tom & Jerry <3")
	assert.Contains(t, content.HTML, "Tom &amp; Jerry &lt;3")
}

func TestRenderer_UnknownKind(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	_, err = r.Render(Kind("postcard"), Data{})
	assert.Error(t, err)
}

func TestPlainText(t *testing.T) {
	text := PlainText("<p>Hello <strong>Ada</strong></p><p>Bye</p>")
	assert.Contains(t, text, "Hello Ada")
	assert.Contains(t, text, "Bye")
	assert.False(t, strings.Contains(text, "<p>"))
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("due_tomorrow")
	require.NoError(t, err)
	assert.Equal(t, KindDueTomorrow, kind)

	_, err = ParseKind("nope")
	assert.Error(t, err)
}
