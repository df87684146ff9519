package llm

import (
	"fmt"
	"strings"

	"github.com/Veraticus/pantry/internal/model"
)

const matchSystemPrompt = "You match abbreviated or OCR-garbled receipt item names to a product catalog. " +
	"You MUST respond with ONLY a valid JSON object. Do not include any explanatory text or markdown."

const extractSystemPrompt = "You extract structured data from photos of Brazilian fiscal receipts. " +
	"You MUST respond with ONLY a valid JSON object. Do not include any explanatory text or markdown."

func buildMatchPrompt(rawName string, catalog []model.Product) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Receipt item: %q\n\n", rawName)
	sb.WriteString("Available products:\n")
	for _, p := range catalog {
		category := p.CategoryName()
		if category == "" {
			category = "none"
		}
		aliases := "none"
		if len(p.Aliases) > 0 {
			aliases = strings.Join(p.Aliases, ", ")
		}
		fmt.Fprintf(&sb, "- ID: %s, Name: %s, Category: %s, Aliases: %s\n", p.ID, p.Name, category, aliases)
	}

	sb.WriteString(`
Task:
1. Identify which product(s) from the list the receipt item refers to.
2. Account for abbreviations, OCR errors, truncated names and synonyms.
3. Only use IDs that appear in the list above.

Examples:
- "qj parm" -> "Queijo Parmesão"
- "batata ing" -> "Batata Inglesa"
- "tom" -> "Tomate"

Respond with exactly:
{"product_ids": ["id1", "id2"]}

If nothing matches, respond with:
{"product_ids": []}`)

	return sb.String()
}

const extractPrompt = `Analyze this receipt image and extract the following as JSON:

{
  "supplier": "store or supplier name",
  "invoice_number": "invoice number or null",
  "date": "YYYY-MM-DD",
  "total": decimal number,
  "items": [
    {
      "name": "product name EXACTLY as printed",
      "quantity": decimal number,
      "unit": "kg, un or L",
      "unit_price": decimal number,
      "total_price": decimal number
    }
  ]
}

Rules:
- Monetary values must be numbers, not strings.
- Dates use the YYYY-MM-DD format.
- Keep each product name EXACTLY as printed (QJ PARM must not become Queijo Parmesão).
- Use null for anything you cannot read.
- Return ONLY the JSON.`
