package answer

import (
	"fmt"
	"strings"

	"github.com/docqa/docqa/pkg/models"
)

const askPrompt = `You are an assistant that answers questions about invoices.
Answer ONLY from the invoice text below. Do not make assumptions or invent invoices.
If the information is not in the invoice, reply: "The requested information is not present in this invoice."

- Do not add details that are not in the text.
- If asked for a total amount, return only the number.

Invoice:
%s

User Query:
%s
`

const summaryPrompt = `Summarize the following invoice in 2-3 sentences. Highlight:
- Invoice number
- Supplier and recipient
- Total amount due
- Any key payment details (if available)

Invoice:
%s
`

const extractPrompt = `Extract the following structured fields from the invoice below:

- Invoice number
- Supplier name
- Buyer/Client
- Total amount
- Due date
- Payment status

Return ONLY a raw JSON object, without Markdown, code fences or explanations, in exactly this format:

{
  "Invoice Number": "...",
  "Supplier": "...",
  "Buyer": "...",
  "Amount": "...",
  "Due Date": "...",
  "Status": "Paid/Unpaid/Overdue/Unknown"
}

Use "Unknown" for any field that is not in the invoice. Do not guess.
Do not mark the invoice as paid unless it says so.

Invoice:
%s
`

func joinText(points []models.Point) string {
	parts := make([]string, 0, len(points))
	for _, p := range points {
		parts = append(parts, p.Payload.Text)
	}
	return strings.Join(parts, "\n")
}

func buildAskPrompt(query string, points []models.Point) string {
	return fmt.Sprintf(askPrompt, joinText(points), query)
}

func buildSummaryPrompt(text string) string {
	return fmt.Sprintf(summaryPrompt, text)
}

func buildExtractPrompt(text string) string {
	return fmt.Sprintf(extractPrompt, text)
}
