package fiskaly

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/fiskal/internal/fiscal/domain"
)

// defaultVATRate applies when a line item carries no explicit rate.
const defaultVATRate = 19.0

type receiptSchema struct {
	StandardV1 standardV1 `json:"standard_v1"`
}

type standardV1 struct {
	Receipt receipt `json:"receipt"`
}

type receipt struct {
	ReceiptType           string          `json:"receipt_type"`
	AmountsPerVATRate     []vatAmount     `json:"amounts_per_vat_rate"`
	AmountsPerPaymentType []paymentAmount `json:"amounts_per_payment_type"`
}

type vatAmount struct {
	VATRate string `json:"vat_rate"`
	Amount  string `json:"amount"`
}

type paymentAmount struct {
	PaymentType string `json:"payment_type"`
	Amount      string `json:"amount"`
}

// buildReceiptSchema groups items by VAT rate, sums price times quantity
// per group and formats the buckets the way the standard_v1 schema
// expects: rates as rate/100 with 4 decimals, amounts with 2 decimals.
func buildReceiptSchema(total float64, method string, items []domain.SaleItem) *receiptSchema {
	sums := make(map[float64]float64)
	for _, item := range items {
		rate := defaultVATRate
		if item.VATRate != nil {
			rate = *item.VATRate
		}
		sums[rate] += item.Price * item.Quantity
	}

	rates := make([]float64, 0, len(sums))
	for rate := range sums {
		rates = append(rates, rate)
	}
	sort.Float64s(rates)

	vatAmounts := make([]vatAmount, 0, len(rates))
	for _, rate := range rates {
		vatAmounts = append(vatAmounts, vatAmount{
			VATRate: fmt.Sprintf("%.4f", rate/100),
			Amount:  fmt.Sprintf("%.2f", sums[rate]),
		})
	}

	return &receiptSchema{
		StandardV1: standardV1{
			Receipt: receipt{
				ReceiptType:       "RECEIPT",
				AmountsPerVATRate: vatAmounts,
				AmountsPerPaymentType: []paymentAmount{
					{
						PaymentType: paymentType(method),
						Amount:      fmt.Sprintf("%.2f", total),
					},
				},
			},
		},
	}
}

func paymentType(method string) string {
	if strings.EqualFold(strings.TrimSpace(method), domain.PaymentMethodCard) {
		return "CARD"
	}
	return "CASH"
}
