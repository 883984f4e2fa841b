package types

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentCanceled  PaymentStatus = "canceled"
)

type ProductType string

const (
	ProductAskeza     ProductType = "askeza"
	ProductNumerology ProductType = "numerology"
)

func ParseProductType(s string) (ProductType, bool) {
	switch ProductType(s) {
	case ProductAskeza:
		return ProductAskeza, true
	case ProductNumerology:
		return ProductNumerology, true
	default:
		return "", false
	}
}
