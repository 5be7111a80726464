package abandonment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/R3E-Network/storefront/internal/app/domain/abandonment"
)

func TestRenderReminderPerStage(t *testing.T) {
	snapshot := domain.Snapshot{
		{ProductID: "p1", Title: "Desk Lamp", Price: decimal.RequireFromString("24.50"), Quantity: 2, ImageRef: "https://cdn.example.com/lamp.png"},
	}
	seen := map[string]bool{}
	for _, stage := range []domain.Stage{domain.StageFirst, domain.StageSecond, domain.StageFinal} {
		params := newReminderParams(stage, "Grace", "Storefront", "https://shop.example.com/", snapshot)
		subject, body, err := RenderReminder(stage, params)
		require.NoError(t, err)

		assert.NotEmpty(t, subject)
		assert.False(t, seen[subject], "subjects differ per stage")
		seen[subject] = true

		assert.Contains(t, body, "Grace")
		assert.Contains(t, body, "Desk Lamp")
		assert.Contains(t, body, "49.00")
		assert.Contains(t, body, "https://shop.example.com/cart")
		assert.Contains(t, body, "https://cdn.example.com/lamp.png")
		assert.Contains(t, body, reminderCallToAction[stage])
	}
}

func TestRenderReminderEscapesContent(t *testing.T) {
	snapshot := domain.Snapshot{{ProductID: "p1", Title: "<script>x</script>", Price: decimal.NewFromInt(1), Quantity: 1}}
	params := newReminderParams(domain.StageFirst, "", "Storefront", "https://shop.example.com", snapshot)
	_, body, err := RenderReminder(domain.StageFirst, params)
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>x</script>")
	assert.Contains(t, body, "Hi there")
}

func TestRenderReminderUnknownStage(t *testing.T) {
	_, _, err := RenderReminder(domain.StageNone, ReminderParams{})
	assert.Error(t, err)
}
