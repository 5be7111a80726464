package abandonment

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/R3E-Network/storefront/internal/app/domain/abandonment"
)

//go:embed templates/*.html
var templateFS embed.FS

var reminderTemplates = template.Must(template.New("reminders").ParseFS(templateFS, "templates/*.html"))

var reminderSubjects = map[domain.Stage]string{
	domain.StageFirst:  "You left something in your cart",
	domain.StageSecond: "Your cart is still waiting",
	domain.StageFinal:  "Last reminder: your cart is about to expire",
}

var reminderCallToAction = map[domain.Stage]string{
	domain.StageFirst:  "Return to your cart",
	domain.StageSecond: "Complete your order",
	domain.StageFinal:  "Check out now",
}

// ReminderLine is one rendered cart line.
type ReminderLine struct {
	Title    string
	Quantity int
	Subtotal string
	ImageRef string
}

// ReminderParams feeds the reminder templates.
type ReminderParams struct {
	Name         string
	StoreName    string
	CartURL      string
	CallToAction string
	Lines        []ReminderLine
	Total        string
}

// newReminderParams builds template data for snapshot addressed to name.
func newReminderParams(stage domain.Stage, name, storeName, storeURL string, snapshot domain.Snapshot) ReminderParams {
	if strings.TrimSpace(name) == "" {
		name = "there"
	}
	lines := make([]ReminderLine, 0, len(snapshot))
	for _, item := range snapshot {
		lines = append(lines, ReminderLine{
			Title:    item.Title,
			Quantity: item.Quantity,
			Subtotal: item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))).StringFixed(2),
			ImageRef: item.ImageRef,
		})
	}
	return ReminderParams{
		Name:         name,
		StoreName:    storeName,
		CartURL:      strings.TrimRight(storeURL, "/") + "/cart",
		CallToAction: reminderCallToAction[stage],
		Lines:        lines,
		Total:        snapshot.Total().StringFixed(2),
	}
}

// RenderReminder renders the subject and HTML body for stage.
func RenderReminder(stage domain.Stage, p ReminderParams) (string, string, error) {
	subject, ok := reminderSubjects[stage]
	if !ok {
		return "", "", fmt.Errorf("no reminder template for stage %q", stage)
	}
	var b bytes.Buffer
	if err := reminderTemplates.ExecuteTemplate(&b, string(stage), p); err != nil {
		return "", "", fmt.Errorf("render %s reminder: %w", stage, err)
	}
	return subject, b.String(), nil
}
