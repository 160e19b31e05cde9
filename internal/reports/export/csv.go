package export

import (
	"encoding/csv"
	"io"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/coopledger/coopledger/internal/reports"
)

var amounts = message.NewPrinter(language.English)

// WriteGeneralLedgerCSV serialises the general ledger report to CSV with
// grouped-digit amount formatting.
func WriteGeneralLedgerCSV(w io.Writer, report reports.GeneralLedger) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"Account", "Category", "Root Type", "Debit", "Credit"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range report.Rows {
		record := []string{
			row.AccountName,
			row.CategoryName,
			string(row.RootType),
			formatAmount(row.DebitTotal),
			formatAmount(row.CreditTotal),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	totals := []string{"TOTAL", "", "", formatAmount(report.DebitTotal), formatAmount(report.CreditTotal)}
	if err := writer.Write(totals); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func formatAmount(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return amounts.Sprintf("%.2f", f)
}
