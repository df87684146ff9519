package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/pantry/internal/common"
	"github.com/Veraticus/pantry/internal/model"
	"github.com/Veraticus/pantry/internal/service"
)

// ReceiptExtractor reads receipt photos through a vision-capable model.
type ReceiptExtractor struct {
	client    Client
	logger    *slog.Logger
	schema    *jsonschema.Schema
	retryOpts service.RetryOptions
	timeout   time.Duration
}

// NewReceiptExtractor creates an extractor backed by the configured provider.
func NewReceiptExtractor(cfg Config, logger *slog.Logger) (*ReceiptExtractor, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return NewReceiptExtractorWithClient(client, cfg, logger)
}

// NewReceiptExtractorWithClient creates an extractor around an existing client.
func NewReceiptExtractorWithClient(client Client, cfg Config, logger *slog.Logger) (*ReceiptExtractor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	schema, err := compileSchema("receipt.json", receiptResponseSchema())
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		// Vision calls are slower than text completions.
		timeout = 2 * defaultHTTPTimeout
	}

	return &ReceiptExtractor{
		client:    client,
		logger:    logger,
		schema:    schema,
		retryOpts: retryOptions(cfg),
		timeout:   timeout,
	}, nil
}

// ExtractReceipt returns the best-effort content of a receipt image. Fields
// that are missing or cannot be parsed are left nil. An error is returned
// only when the oracle fails or replies without any JSON object.
func (e *ReceiptExtractor) ExtractReceipt(ctx context.Context, image []byte, mimeType string) (*model.RawReceipt, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", common.ErrInvalidReceipt)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var content string
	err := common.WithRetry(callCtx, func() error {
		var callErr error
		content, callErr = e.client.Complete(callCtx, Request{
			System:   extractSystemPrompt,
			Prompt:   extractPrompt,
			Image:    image,
			MimeType: mimeType,
		})
		return callErr
	}, e.retryOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrOracleUnavailable, err)
	}

	return e.parseReceipt(content)
}

func (e *ReceiptExtractor) parseReceipt(content string) (*model.RawReceipt, error) {
	raw, err := extractJSONObject(content)
	if err != nil {
		return nil, err
	}

	if err := validateAgainst(e.schema, []byte(raw)); err != nil {
		e.logger.Warn("receipt extraction does not match schema", "error", err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrMalformedResponse, err)
	}

	receipt := &model.RawReceipt{
		Supplier:      lenientString(pick(doc, "supplier", "fornecedor", "supplier_name")),
		InvoiceNumber: lenientString(pick(doc, "invoice_number", "numero_nota")),
		Date:          lenientDate(pick(doc, "date", "data")),
		Total:         lenientDecimal(pick(doc, "total", "valor_total")),
	}

	items, _ := pick(doc, "items", "itens").([]any)
	for _, entry := range items {
		fields, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name := lenientString(pick(fields, "name", "nome", "produto"))
		item := model.RawItem{
			Quantity:   lenientDecimal(pick(fields, "quantity", "quantidade")),
			Unit:       lenientString(pick(fields, "unit", "unidade")),
			UnitPrice:  lenientDecimal(pick(fields, "unit_price", "preco_unitario")),
			TotalPrice: lenientDecimal(pick(fields, "total_price", "preco_total")),
		}
		if name != nil {
			item.Name = *name
		}
		receipt.Items = append(receipt.Items, item)
	}

	return receipt, nil
}

// pick returns the first present value among keys.
func pick(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func lenientString(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return nil
	}
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

// lenientDecimal accepts JSON numbers and strings such as "R$ 1.234,56".
func lenientDecimal(v any) *decimal.Decimal {
	switch t := v.(type) {
	case float64:
		d := decimal.NewFromFloat(t)
		return &d
	case string:
		s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "R$"))
		if s == "" {
			return nil
		}
		if strings.Contains(s, ",") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil
		}
		return &d
	default:
		return nil
	}
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "02/01/06", time.RFC3339}

func lenientDate(v any) *time.Time {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
