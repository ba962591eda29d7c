package domain

import "strings"

type Size string

const (
	SizeXS  Size = "xs"
	SizeS   Size = "s"
	SizeM   Size = "m"
	SizeL   Size = "l"
	SizeXL  Size = "xl"
	SizeXXL Size = "xxl"
)

// NormalizeSize folds case and surrounding space. It does not check that
// the result is a known size.
func NormalizeSize(s string) Size {
	return Size(strings.ToLower(strings.TrimSpace(s)))
}

type CartLine struct {
	ID        int64   `json:"id" db:"id"`
	StudentID int64   `json:"-" db:"student_nim"`
	ProductID int64   `json:"product_id" db:"product_id"`
	Quantity  int     `json:"quantity" db:"quantity"`
	Size      Size    `json:"size" db:"size"`
	Note      *string `json:"information" db:"information"`
}

// CartItem is a cart line joined with its current product, as shown to the
// student before checkout.
type CartItem struct {
	ID       int64   `json:"id"`
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
	Size     Size    `json:"size"`
	Note     *string `json:"information"`
}
