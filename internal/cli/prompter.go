package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/pantry/internal/common"
	"github.com/Veraticus/pantry/internal/confirmation"
	"github.com/Veraticus/pantry/internal/model"
	"github.com/Veraticus/pantry/internal/reconcile"
	"github.com/Veraticus/pantry/internal/service"
)

// ErrInputTerminated is returned when input ends while a choice is pending.
var ErrInputTerminated = errors.New("input terminated")

// Reviewer is the confirmation workflow as seen by a front-end.
type Reviewer interface {
	Next(ctx context.Context) (*confirmation.Presentation, error)
	Associate(ctx context.Context, productID string) (*model.ConfirmationResult, error)
	Create(ctx context.Context, name, category, unit string) (*model.ConfirmationResult, error)
	Skip(ctx context.Context) error
	Pending() int
	Stats() service.ReviewStats
}

var _ Reviewer = (*confirmation.Workflow)(nil)

// Prompter implements the line-oriented terminal front-end: receipt header
// approval and item-by-item review.
type Prompter struct {
	startTime time.Time
	writer    io.Writer
	reader    *NonBlockingReader
	reviewed  int
}

// NewCLIPrompter creates a new CLI prompter with the given reader and writer.
func NewCLIPrompter(reader io.Reader, writer io.Writer) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}

	return &Prompter{
		reader:    NewNonBlockingReader(reader),
		writer:    writer,
		startTime: time.Now(),
	}
}

// Review presents pending items until none are left or the user quits.
func (p *Prompter) Review(ctx context.Context, reviewer Reviewer) (service.ReviewStats, error) {
	for {
		presentation, err := reviewer.Next(ctx)
		if errors.Is(err, common.ErrNoPendingItems) {
			break
		}
		if err != nil {
			return reviewer.Stats(), err
		}

		quit, err := p.reviewItem(ctx, reviewer, presentation)
		if err != nil {
			return reviewer.Stats(), err
		}
		if quit {
			break
		}
	}

	stats := reviewer.Stats()
	p.ShowReviewSummary(stats)
	return stats, nil
}

func (p *Prompter) reviewItem(ctx context.Context, reviewer Reviewer, presentation *confirmation.Presentation) (bool, error) {
	p.reviewed++
	if _, err := fmt.Fprintln(p.writer, RenderBox(fmt.Sprintf("Item review #%d", p.reviewed), p.formatPresentation(presentation))); err != nil {
		return false, fmt.Errorf("failed to write item box: %w", err)
	}

	validChoices := []string{"n", "s", "q"}
	for i := range presentation.Candidates {
		validChoices = append(validChoices, strconv.Itoa(i+1))
	}
	if presentation.Suggested != nil {
		validChoices = append(validChoices, "a")
	}

	for {
		if err := p.writeOptions(presentation); err != nil {
			return false, err
		}

		choice, err := p.promptChoice(ctx, "Choice", validChoices)
		if err != nil {
			return false, err
		}

		var result *model.ConfirmationResult
		switch choice {
		case "q":
			if err := reviewer.Skip(ctx); err != nil {
				return false, err
			}
			return true, nil
		case "s":
			if err := reviewer.Skip(ctx); err != nil {
				return false, err
			}
			p.println(FormatWarning("Skipped " + presentation.Item.RawName))
			return false, nil
		case "n":
			name, category, unit, err := p.promptNewProduct(ctx)
			if err != nil {
				return false, err
			}
			result, err = reviewer.Create(ctx, name, category, unit)
			if err != nil && !p.reportUserError(err) {
				return false, err
			}
		case "a":
			result, err = reviewer.Associate(ctx, presentation.Suggested.ID)
			if err != nil && !p.reportUserError(err) {
				return false, err
			}
		default:
			index, _ := strconv.Atoi(choice)
			result, err = reviewer.Associate(ctx, presentation.Candidates[index-1].ID)
			if err != nil && !p.reportUserError(err) {
				return false, err
			}
		}

		if result != nil {
			p.showConfirmation(presentation.Item.RawName, result)
			return false, nil
		}
	}
}

// reportUserError prints err when it is meant for the user and reports
// whether it did.
func (p *Prompter) reportUserError(err error) bool {
	var userErr *common.UserError
	if !errors.As(err, &userErr) {
		return false
	}
	p.println(FormatError(userErr.UserMessage))
	return true
}

func (p *Prompter) formatPresentation(presentation *confirmation.Presentation) string {
	item := presentation.Item

	details := fmt.Sprintf("%s %s\n", ReceiptIcon, BoldStyle.Render(item.RawName)) +
		fmt.Sprintf("  Quantity: %s %s\n", item.Quantity.String(), item.Unit) +
		fmt.Sprintf("  Unit price: %s\n", FormatMoney(item.UnitPrice)) +
		fmt.Sprintf("  Total: %s", FormatMoney(item.TotalPrice))

	if presentation.Suggested != nil {
		details += "\n\n" + SuggestionStyle.Render(fmt.Sprintf("%s Suggested: %s", RobotIcon, presentation.Suggested.Name))
	}
	if len(presentation.Candidates) == 0 {
		details += "\n\n" + StyleSubtle("No catalog product looks like this item.")
	}
	return details
}

func (p *Prompter) writeOptions(presentation *confirmation.Presentation) error {
	if _, err := fmt.Fprintln(p.writer, FormatPrompt("Options:")); err != nil {
		return fmt.Errorf("failed to write options: %w", err)
	}
	if presentation.Suggested != nil {
		if _, err := fmt.Fprintf(p.writer, "  [A] Accept suggestion: %s\n", SuggestionStyle.Render(presentation.Suggested.Name)); err != nil {
			return fmt.Errorf("failed to write suggestion option: %w", err)
		}
	}
	for i, candidate := range presentation.Candidates {
		line := fmt.Sprintf("  [%d] %s", i+1, candidate.Name)
		if category := candidate.CategoryName(); category != "" {
			line += StyleSubtle(" (" + category + ")")
		}
		if _, err := fmt.Fprintln(p.writer, line); err != nil {
			return fmt.Errorf("failed to write candidate: %w", err)
		}
	}
	if _, err := fmt.Fprintf(p.writer, "  [N] %s Create new product\n", NewIcon); err != nil {
		return fmt.Errorf("failed to write create option: %w", err)
	}
	if _, err := fmt.Fprintln(p.writer, "  [S] Skip this item"); err != nil {
		return fmt.Errorf("failed to write skip option: %w", err)
	}
	if _, err := fmt.Fprintln(p.writer, "  [Q] Quit review"); err != nil {
		return fmt.Errorf("failed to write quit option: %w", err)
	}
	return nil
}

func (p *Prompter) showConfirmation(rawName string, result *model.ConfirmationResult) {
	msg := fmt.Sprintf("Linked %q to %s", rawName, result.Product.Name)
	if result.Created {
		msg = fmt.Sprintf("Created %s for %q", result.Product.Name, rawName)
	}
	p.println(FormatSuccess(msg))
	if result.AliasAdded {
		p.println(FormatInfo(fmt.Sprintf("Learned alias %q", result.MappingKey)))
	}
}

func (p *Prompter) promptNewProduct(ctx context.Context) (string, string, string, error) {
	var name string
	for name == "" {
		var err error
		name, err = p.promptText(ctx, "Product name")
		if err != nil {
			return "", "", "", err
		}
		if name == "" {
			p.println(FormatError("Product name cannot be empty. Please try again."))
		}
	}

	category, err := p.promptText(ctx, "Category (blank for "+confirmation.DefaultCategory+")")
	if err != nil {
		return "", "", "", err
	}
	unit, err := p.promptText(ctx, "Unit (blank for "+model.DefaultUnit+")")
	if err != nil {
		return "", "", "", err
	}
	return name, category, unit, nil
}

// ApproveHeader shows an extracted receipt and asks the user to approve,
// correct or discard its header. A discarded receipt returns an approval
// with Approved unset.
func (p *Prompter) ApproveHeader(ctx context.Context, draft *reconcile.Draft) (reconcile.HeaderApproval, error) {
	if _, err := fmt.Fprintln(p.writer, RenderBox("Receipt", p.formatDraft(draft))); err != nil {
		return reconcile.HeaderApproval{}, fmt.Errorf("failed to write receipt box: %w", err)
	}
	if _, err := fmt.Fprintln(p.writer, FormatPrompt("Options:")); err != nil {
		return reconcile.HeaderApproval{}, fmt.Errorf("failed to write options: %w", err)
	}
	if _, err := fmt.Fprintln(p.writer, "  [A] Approve and save\n  [E] Edit header, then save\n  [D] Discard receipt"); err != nil {
		return reconcile.HeaderApproval{}, fmt.Errorf("failed to write options: %w", err)
	}

	choice, err := p.promptChoice(ctx, "Choice", []string{"a", "e", "d"})
	if err != nil {
		return reconcile.HeaderApproval{}, err
	}

	switch choice {
	case "a":
		return reconcile.HeaderApproval{Approved: true}, nil
	case "e":
		return p.editHeader(ctx)
	default:
		return reconcile.HeaderApproval{}, nil
	}
}

func (p *Prompter) editHeader(ctx context.Context) (reconcile.HeaderApproval, error) {
	approval := reconcile.HeaderApproval{Approved: true}

	supplier, err := p.promptText(ctx, "Supplier (blank to keep)")
	if err != nil {
		return approval, err
	}
	if supplier != "" {
		approval.Supplier = &supplier
	}

	for {
		input, err := p.promptText(ctx, "Date, YYYY-MM-DD or DD/MM/YYYY (blank to keep)")
		if err != nil {
			return approval, err
		}
		if input == "" {
			break
		}
		if date, ok := parseDate(input); ok {
			approval.Date = &date
			break
		}
		p.println(FormatError("Unrecognized date. Please try again."))
	}

	for {
		input, err := p.promptText(ctx, "Total (blank to keep)")
		if err != nil {
			return approval, err
		}
		if input == "" {
			break
		}
		if total, ok := parseAmount(input); ok {
			approval.Total = &total
			break
		}
		p.println(FormatError("Unrecognized amount. Please try again."))
	}

	return approval, nil
}

func (p *Prompter) formatDraft(draft *reconcile.Draft) string {
	receipt := draft.Receipt
	supplier := "unknown"
	if receipt.Supplier != nil {
		supplier = *receipt.Supplier
	}
	date := "unknown"
	if receipt.Date != nil {
		date = receipt.Date.Format("2006-01-02")
	}
	total := draft.LinesTotal()
	if receipt.Total != nil {
		total = *receipt.Total
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  Supplier: %s\n", supplier)
	if receipt.InvoiceNumber != nil {
		fmt.Fprintf(&b, "  Invoice: %s\n", *receipt.InvoiceNumber)
	}
	fmt.Fprintf(&b, "  Date: %s\n", date)
	fmt.Fprintf(&b, "  Total: %s\n\n", FormatMoney(total))

	for i, line := range draft.Lines {
		status := SuccessStyle.Render(SuccessIcon + " " + string(line.Resolution.Source))
		if !line.Resolution.IsResolved() {
			status = WarningStyle.Render(fmt.Sprintf("needs review (%d candidates)", len(line.Resolution.Candidates)))
		}
		fmt.Fprintf(&b, "  %2d. %-28s %s %s × %s = %s  %s\n", i+1, line.RawName,
			line.Quantity.String(), line.Unit, line.UnitPrice.StringFixed(2), line.TotalPrice.StringFixed(2), status)
		if line.Recomputed {
			fmt.Fprintf(&b, "      %s\n", StyleSubtle("total recomputed from quantity × unit price"))
		}
	}

	if draft.Dropped > 0 {
		fmt.Fprintf(&b, "  %s\n", FormatWarning(fmt.Sprintf("%d unreadable lines left out", draft.Dropped)))
	}

	stats := draft.Stats()
	fmt.Fprintf(&b, "\n  %s %d items, %d need review", ChartIcon, stats.Total, stats.Unresolved)
	return b.String()
}

// ResolveProgress returns a callback that advances a progress bar as
// receipt items resolve. It is safe for concurrent use.
func (p *Prompter) ResolveProgress(total int) func(int, model.Resolution) {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[green][bold]Resolving items...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(p.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
	return func(int, model.Resolution) {
		if err := bar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}
}

// ShowCommitResult reports a stored purchase.
func (p *Prompter) ShowCommitResult(result *reconcile.Result) {
	p.println(FormatSuccess(fmt.Sprintf("Saved purchase %s: %d items, total %s",
		result.PurchaseID, result.Items, FormatMoney(result.Total))))
	if result.UnresolvedCount > 0 {
		p.println(FormatInfo(fmt.Sprintf("%d items need review. Run: pantry review", result.UnresolvedCount)))
	}
}

// ShowReviewSummary displays what a review session did.
func (p *Prompter) ShowReviewSummary(stats service.ReviewStats) {
	summary := fmt.Sprintf("%s Statistics:\n", ChartIcon) +
		fmt.Sprintf("  • Linked by you: %d\n", stats.Linked) +
		fmt.Sprintf("  • Linked automatically: %d\n", stats.AutoLinked) +
		fmt.Sprintf("  • New products: %d\n", stats.Created) +
		fmt.Sprintf("  • Aliases learned: %d\n", stats.AliasesLearnt) +
		fmt.Sprintf("  • Skipped: %d\n", stats.Skipped) +
		fmt.Sprintf("  • Time taken: %s", time.Since(p.startTime).Round(time.Second))

	if _, err := fmt.Fprintln(p.writer, RenderBox("Review Complete", summary)); err != nil {
		slog.Warn("Failed to write summary box", "error", err)
	}
}

func (p *Prompter) promptChoice(ctx context.Context, prompt string, validChoices []string) (string, error) {
	for {
		input, err := p.promptText(ctx, prompt)
		if err != nil {
			return "", err
		}

		choice := strings.ToLower(input)
		for _, valid := range validChoices {
			if choice == valid {
				return choice, nil
			}
		}

		p.println(FormatError("Invalid choice. Please try again."))
	}
}

func (p *Prompter) promptText(ctx context.Context, prompt string) (string, error) {
	if _, err := fmt.Fprintf(p.writer, "%s ", FormatPrompt(prompt)); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}

	input, err := p.reader.ReadLine(ctx)
	if errors.Is(err, io.EOF) {
		return "", ErrInputTerminated
	}
	if err != nil {
		return "", err
	}
	return input, nil
}

func (p *Prompter) println(msg string) {
	if _, err := fmt.Fprintln(p.writer, msg); err != nil {
		slog.Warn("Failed to write message", "error", err)
	}
}

func parseDate(input string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "02/01/2006", "02/01/06"} {
		if date, err := time.Parse(layout, input); err == nil {
			return date, true
		}
	}
	return time.Time{}, false
}

// parseAmount accepts "12.50", "12,50" and "R$ 1.234,56".
func parseAmount(input string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), "R$"))
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	amount, err := decimal.NewFromString(s)
	if err != nil || amount.IsNegative() {
		return decimal.Zero, false
	}
	return amount, true
}
