package application

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/avika/achexport/internal/payment/domain"
	paymentErrors "github.com/avika/achexport/internal/payment/errors"
	"go.uber.org/zap"
)

const (
	serviceClassDebits = "225"
	entryDescription   = "INVOICE"
	batchSequence      = "100"
	batchCount         = "0001"
	zeroAmount12       = "000000000000"
	defaultPayerName   = "Customer"

	maxRunNumber      = 999
	invoiceFieldWidth = 15
	nameFieldWidth    = 22
	traceFieldWidth   = 15
	maxAccountDigits  = 17
	routingDigits     = 9
)

var entryClassPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// BatchPublisher stores a finished record set for a date and run and returns
// its path. It must never expose a partially written file.
type BatchPublisher interface {
	Publish(date time.Time, run int, records [][]string) (string, error)
}

type BatchBuilderInterface interface {
	Build(ctx context.Context, date time.Time, options BatchOptions) (string, error)
}

type BatchOptions struct {
	// EntryClassCode overrides the configured default when set.
	EntryClassCode string
	RunNumber      int
}

type BatchBuilder struct {
	repo              domain.AuthorizationRepository
	decrypter         domain.Decrypter
	publisher         BatchPublisher
	originatorID      string
	defaultEntryClass string
	logger            *zap.Logger
	now               func() time.Time
}

func NewBatchBuilder(repo domain.AuthorizationRepository, decrypter domain.Decrypter, publisher BatchPublisher,
	originatorID, defaultEntryClass string, logger *zap.Logger) *BatchBuilder {
	return &BatchBuilder{
		repo:              repo,
		decrypter:         decrypter,
		publisher:         publisher,
		originatorID:      originatorID,
		defaultEntryClass: defaultEntryClass,
		logger:            logger,
		now:               time.Now,
	}
}

// Build writes the debit batch for every authorization consented on the UTC
// calendar day of date. Nothing is published unless every row is valid.
func (b *BatchBuilder) Build(ctx context.Context, date time.Time, options BatchOptions) (string, error) {
	entryClass, err := b.validateOptions(options)
	if err != nil {
		return "", err
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	authorizations, err := b.repo.FindConsentedBetween(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return "", fmt.Errorf("could not load payment authorizations: %w", err)
	}
	if len(authorizations) == 0 {
		return "", paymentErrors.ErrEmptyBatch
	}
	count := int64(len(authorizations))
	if _, err := padNumber("transaction_count", count, 4); err != nil {
		return "", err
	}

	ids := make([]string, len(authorizations))
	for i, a := range authorizations {
		ids[i] = a.BankAccountID
	}
	accounts, err := b.repo.FindBankAccountsByIDs(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("could not load bank accounts: %w", err)
	}

	details := make([][]string, 0, len(authorizations))
	var totalDebit int64
	for i, authorization := range authorizations {
		account, ok := accounts[authorization.BankAccountID]
		if !ok {
			return "", fmt.Errorf("bank account %s for authorization %s not found", authorization.BankAccountID, authorization.ID)
		}
		row, err := b.detailRecord(i+1, &authorization, &account)
		if err != nil {
			return "", err
		}
		details = append(details, row)
		totalDebit += authorization.AmountCents
	}

	debit12, err := padNumber("total_debit", totalDebit, 12)
	if err != nil {
		return "", err
	}

	now := b.now().UTC()
	fileRecord := []string{
		"1",
		"A",
		now.Format("060102"),
		now.Format("1504"),
		fmt.Sprintf("%06d", count),
		zeroAmount12,
		debit12,
		batchCount,
	}
	batchHeader := []string{
		"5",
		serviceClassDebits,
		b.originatorID,
		entryClass,
		entryDescription,
		day.Format("060102"),
		zeroAmount12,
		debit12,
		batchSequence,
		fmt.Sprintf("%04d", count),
	}

	records := make([][]string, 0, len(details)+2)
	records = append(records, fileRecord, batchHeader)
	records = append(records, details...)

	path, err := b.publisher.Publish(day, options.RunNumber, records)
	if err != nil {
		return "", err
	}

	b.logger.Info("Batch file built",
		zap.String("date", day.Format("2006-01-02")),
		zap.Int("run", options.RunNumber),
		zap.Int64("count", count),
		zap.Int64("total_debit_cents", totalDebit),
		zap.String("path", path),
	)
	return path, nil
}

func (b *BatchBuilder) validateOptions(options BatchOptions) (string, error) {
	errs := &paymentErrors.ValidationErrors{}
	if options.RunNumber < 1 || options.RunNumber > maxRunNumber {
		errs.Add(paymentErrors.NewValidationError("run", fmt.Sprintf("must be between 1 and %d", maxRunNumber)))
	}
	entryClass := options.EntryClassCode
	if entryClass == "" {
		entryClass = b.defaultEntryClass
	}
	if !entryClassPattern.MatchString(entryClass) {
		errs.Add(paymentErrors.NewValidationError("entry_class_code", "must be 3 uppercase letters"))
	}
	return entryClass, errs.Err()
}

// detailRecord decrypts the bank numbers for one row; the plaintext never
// leaves this function except inside the returned record.
func (b *BatchBuilder) detailRecord(index int, authorization *domain.PaymentAuthorization, account *domain.BankAccount) ([]string, error) {
	amount10, err := padNumber("amount", authorization.AmountCents, 10)
	if err != nil {
		return nil, err
	}

	routing, err := b.decrypter.Decrypt(account.RoutingCipher, account.RoutingNonce)
	if err != nil {
		return nil, fmt.Errorf("could not decrypt routing number of bank account %s: %w", account.ID, err)
	}
	accountNumber, err := b.decrypter.Decrypt(account.AccountCipher, account.AccountNonce)
	if err != nil {
		return nil, fmt.Errorf("could not decrypt account number of bank account %s: %w", account.ID, err)
	}

	if len(routing) != routingDigits || !isDigits(routing) {
		return nil, &paymentErrors.FormatError{Field: "routing_number", Value: redact(routing), Width: routingDigits}
	}
	if len(accountNumber) == 0 || len(accountNumber) > maxAccountDigits || !isDigits(accountNumber) {
		return nil, &paymentErrors.FormatError{Field: "account_number", Value: redact(accountNumber), Width: maxAccountDigits}
	}

	name := authorization.PayerName
	if name == "" {
		name = defaultPayerName
	}

	return []string{
		"6",
		account.TransactionCode(),
		routing,
		accountNumber,
		amount10,
		truncate(authorization.InvoiceNumber, invoiceFieldWidth),
		truncate(name, nameFieldWidth),
		truncate(fmt.Sprintf("%s%011d", batchSequence, index), traceFieldWidth),
		"",
	}, nil
}

func padNumber(field string, value int64, width int) (string, error) {
	s := strconv.FormatInt(value, 10)
	if value < 0 || len(s) > width {
		return "", &paymentErrors.FormatError{Field: field, Value: s, Width: width}
	}
	return fmt.Sprintf("%0*d", width, value), nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
