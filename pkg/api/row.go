package api

// DateLayout is the UTC, millisecond-precision ISO 8601 layout used for ledger dates.
const DateLayout = "2006-01-02T15:04:05.000Z"

// RowHeaders names the columns of a ledger row, in Values order.
var RowHeaders = []string{"Date/Time", "Amount", "Sender", "Receiver", "Category", "Raw Text", "ID"}

// Row is the flat form of a stored transaction sent to remote ledgers and exports.
type Row struct {
	ID       string   `json:"id"`
	Date     string   `json:"date"`
	Amount   *float64 `json:"amount"`
	Sender   *string  `json:"sender"`
	Receiver *string  `json:"receiver"`
	Category string   `json:"category"`
	RawText  string   `json:"raw_text"`
}

// NewRow flattens txn. Missing counterparties stay nil and encode as null.
func NewRow(txn *StoredTransaction) Row {
	row := Row{
		ID:       txn.ID,
		Date:     txn.Timestamp.UTC().Format(DateLayout),
		Sender:   txn.Sender,
		Receiver: txn.Receiver,
		Category: txn.Category,
		RawText:  txn.OriginalText,
	}
	if txn.Amount != nil {
		f := txn.Amount.InexactFloat64()
		row.Amount = &f
	}
	return row
}

// Values returns the row as spreadsheet cells in RowHeaders order.
func (r Row) Values() []any {
	var amount any = ""
	if r.Amount != nil {
		amount = *r.Amount
	}
	return []any{r.Date, amount, Cell(r.Sender), Cell(r.Receiver), r.Category, r.RawText, r.ID}
}

// Cell returns the text of an optional field, empty when missing.
func Cell(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
