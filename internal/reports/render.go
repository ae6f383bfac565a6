package reports

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	accent = lipgloss.Color("#2563EB")
	dim    = lipgloss.Color("#6B7280")
	faint  = lipgloss.Color("#3F3F46")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 2)

	labelStyle  = lipgloss.NewStyle().Foreground(dim)
	headerStyle = lipgloss.NewStyle().Bold(true)
	totalStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	ruleStyle   = lipgloss.NewStyle().Foreground(faint)
)

const (
	productWidth = 10
	descWidth    = 24
	unitWidth    = 6
	qtyWidth     = 6
	moneyWidth   = 12
)

// RenderText renders a sales report for a terminal.
func RenderText(report *SalesReport) string {
	if report == nil {
		return ""
	}
	var b strings.Builder

	head := titleStyle.Render("Sales report "+report.OrderID) + "\n" +
		field("Date", report.OrderDate) + "\n" +
		field("Customer", orDash(report.CustomerName)) + "\n" +
		field("Employee", orDash(report.EmployeeName))
	b.WriteString(boxStyle.Render(head))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render(row("Product", "Description", "Unit", "Qty", "Unit price", "Total")))
	b.WriteString("\n")
	rule := ruleStyle.Render(strings.Repeat("─", productWidth+descWidth+unitWidth+qtyWidth+2*moneyWidth+5))
	b.WriteString(rule)
	b.WriteString("\n")
	if len(report.Rows) == 0 {
		b.WriteString(labelStyle.Render("no line items"))
		b.WriteString("\n")
	}
	for _, r := range report.Rows {
		b.WriteString(row(
			r.ProductID,
			r.Description,
			r.Unit,
			fmt.Sprintf("%d", r.Quantity),
			r.UnitPrice.StringFixed(2),
			r.LineTotal.StringFixed(2),
		))
		b.WriteString("\n")
	}
	b.WriteString(rule)
	b.WriteString("\n")
	b.WriteString(totalStyle.Render(fmt.Sprintf("%*s", productWidth+descWidth+unitWidth+qtyWidth+2*moneyWidth+5, "Grand total "+report.GrandTotal.StringFixed(2))))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Charged at order time " + report.ChargedTotal.StringFixed(2)))
	b.WriteString("\n")
	return b.String()
}

// RenderSummary renders the dashboard counters.
func RenderSummary(s *Summary) string {
	if s == nil {
		return ""
	}
	body := titleStyle.Render("Dashboard") + "\n" +
		field("Orders", fmt.Sprintf("%d", s.Orders)) + "\n" +
		field("Active customers", fmt.Sprintf("%d", s.ActiveCustomers)) + "\n" +
		field("Users", fmt.Sprintf("%d", s.Principals)) + "\n" +
		field("Products", fmt.Sprintf("%d", s.Products))
	return boxStyle.Render(body) + "\n"
}

func field(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-17s", label)) + value
}

func row(product, desc, unit, qty, price, total string) string {
	return fmt.Sprintf("%-*s %-*s %-*s %*s %*s %*s",
		productWidth, clip(product, productWidth),
		descWidth, clip(desc, descWidth),
		unitWidth, clip(unit, unitWidth),
		qtyWidth, qty,
		moneyWidth, price,
		moneyWidth, total,
	)
}

func clip(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
