package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction indicates whether money left or entered the account.
type Direction string

// Transaction directions.
const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Category is the fixed spending taxonomy a candidate is slotted into.
type Category string

// Categories recognized by the extractor. Anything it cannot place lands in
// CategoryOther, which is also the low-confidence signal for category review.
const (
	CategoryFood          Category = "Food"
	CategoryGroceries     Category = "Groceries"
	CategoryShopping      Category = "Shopping"
	CategoryTravel        Category = "Travel"
	CategoryFuel          Category = "Fuel"
	CategoryBills         Category = "Bills"
	CategoryEntertainment Category = "Entertainment"
	CategoryHealth        Category = "Health"
	CategoryEducation     Category = "Education"
	CategoryRent          Category = "Rent"
	CategorySalary        Category = "Salary"
	CategoryInvestment    Category = "Investment"
	CategoryTransfer      Category = "Transfer"
	CategoryOther         Category = "Other"
)

// AllCategories lists every recognized category in display order.
func AllCategories() []Category {
	return []Category{
		CategoryFood, CategoryGroceries, CategoryShopping, CategoryTravel,
		CategoryFuel, CategoryBills, CategoryEntertainment, CategoryHealth,
		CategoryEducation, CategoryRent, CategorySalary, CategoryInvestment,
		CategoryTransfer, CategoryOther,
	}
}

// ParseCategory maps free-form extractor output onto the fixed taxonomy,
// falling back to CategoryOther.
func ParseCategory(s string) Category {
	for _, c := range AllCategories() {
		if string(c) == s {
			return c
		}
	}
	return CategoryOther
}

// Candidate is the extractor's structured guess about a raw message. It is
// not a recorded transaction until it survives dedup and submission.
type Candidate struct {
	OccurredAt    time.Time
	Name          string
	PaymentMethod string
	ReferenceID   string
	Institution   string
	RawText       string
	Category      Category
	Direction     Direction
	Amount        decimal.Decimal
	Confidence    float64
}

// Valid reports whether the candidate describes a real transaction. A
// candidate without a positive amount never reaches submission or queueing.
func (c *Candidate) Valid() bool {
	return c != nil && c.Amount.IsPositive()
}

// NeedsCategoryReview reports whether a human should confirm the category.
func (c *Candidate) NeedsCategoryReview(confidenceFloor float64) bool {
	return c.Category == CategoryOther || c.Confidence < confidenceFloor
}

// Payload builds the remote creation payload for this candidate.
func (c *Candidate) Payload() TransactionPayload {
	return TransactionPayload{
		Amount:        c.Amount,
		Name:          c.Name,
		Category:      c.Category,
		Direction:     c.Direction,
		PaymentMethod: c.PaymentMethod,
		ReferenceID:   c.ReferenceID,
		OccurredAt:    c.OccurredAt,
		Institution:   c.Institution,
		Source:        "sms",
	}
}
